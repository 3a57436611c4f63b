package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LotStatus string

const (
	LotStatusPending    LotStatus = "PENDING"
	LotStatusInProgress LotStatus = "IN_PROGRESS"
	LotStatusCompleted  LotStatus = "COMPLETED"
	LotStatusDelivered  LotStatus = "DELIVERED"
)

var lotStatusRank = map[LotStatus]int{
	LotStatusPending:    0,
	LotStatusInProgress: 1,
	LotStatusCompleted:  2,
	LotStatusDelivered:  3,
}

func (s LotStatus) IsValid() bool {
	_, ok := lotStatusRank[s]
	return ok
}

func ParseLotStatus(raw string) (LotStatus, error) {
	s := LotStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLotStatus, raw)
	}
	return s, nil
}

// LotField names the lot columns that may be edited after creation.
type LotField string

const (
	LotFieldBillNumber   LotField = "bill_number"
	LotFieldActualPieces LotField = "actual_pieces"
	LotFieldDeliveryDate LotField = "delivery_date"
	LotFieldLotDate      LotField = "lot_date"
	LotFieldLotNumber    LotField = "lot_number"
)

func (f LotField) IsEditable() bool {
	switch f {
	case LotFieldBillNumber, LotFieldActualPieces, LotFieldDeliveryDate, LotFieldLotDate, LotFieldLotNumber:
		return true
	}
	return false
}

// Lot is a production batch. PartyId/QualityId are copied from the orders of its lines
// and stay 0 when the lines span more than one party or quality.
// TotalPieces is recomputed from the beam-piece rows on every read.
type Lot struct {
	ID           int                   `gorm:"primary_key" json:"id"`
	LotNumber    string                `gorm:"size:50;not null;uniqueIndex" json:"lot_number"`
	LotDate      time.Time             `gorm:"not null" json:"lot_date"`
	PartyId      int                   `gorm:"index;not null;default:0" json:"party_id"`
	QualityId    int                   `gorm:"index;not null;default:0" json:"quality_id"`
	BillNumber   *string               `gorm:"size:100" json:"bill_number"`
	ActualPieces *int                  `json:"actual_pieces"`
	DeliveryDate *time.Time            `json:"delivery_date"`
	Status       LotStatus             `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	Notes        string                `gorm:"type:text" json:"notes"`
	TotalPieces  int                   `gorm:"-" json:"total_pieces"`
	Allocations  []LotDesignAllocation `gorm:"foreignKey:LotId" json:"allocations"`
	CreatedAt    time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// LotDesignAllocation is one slice of a ledger entry taken by a lot. Immutable once created.
type LotDesignAllocation struct {
	ID            int            `gorm:"primary_key" json:"id"`
	LotId         int            `gorm:"not null;index:uniq_lot_design,unique" json:"lot_id"`
	OrderId       int            `gorm:"not null;index:uniq_lot_design,unique;index:idx_lot_allocation_order" json:"order_id"`
	DesignNumber  string         `gorm:"size:50;not null;index:uniq_lot_design,unique" json:"design_number"`
	AllocatedSets int            `gorm:"not null" json:"allocated_sets"`
	BeamPieces    []LotBeamPiece `gorm:"foreignKey:AllocationId" json:"beam_pieces"`
	TotalPieces   int            `gorm:"-" json:"total_pieces"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// LotBeamPiece stores allocated_sets x beam multiplier for one beam color of an allocation.
type LotBeamPiece struct {
	ID             int `gorm:"primary_key" json:"id"`
	AllocationId   int `gorm:"index;not null" json:"allocation_id"`
	BeamColorId    int `gorm:"not null" json:"beam_color_id"`
	BeamMultiplier int `gorm:"not null" json:"beam_multiplier"`
	Pieces         int `gorm:"not null" json:"pieces"`
}

type NewLotAllocation struct {
	OrderId      int    `json:"order_id" binding:"required,gt=0"`
	DesignNumber string `json:"design_number" binding:"required,max=50"`
	Sets         int    `json:"sets"`
}

type NewLot struct {
	LotNumber    string             `json:"lot_number" binding:"required,max=50"`
	LotDate      string             `json:"lot_date" binding:"required,datetime=2006-01-02"`
	BillNumber   *string            `json:"bill_number" binding:"omitempty,max=100"`
	ActualPieces *int               `json:"actual_pieces" binding:"omitempty,gte=0"`
	DeliveryDate *string            `json:"delivery_date" binding:"omitempty,datetime=2006-01-02"`
	Notes        string             `json:"notes"`
	Lines        []NewLotAllocation `json:"lines" binding:"dive"`
}

type LotFilter struct {
	PartyId   *int
	QualityId *int
	Status    *LotStatus
}

func (a NewLotAllocation) key() ledgerKey {
	return ledgerKey{OrderId: a.OrderId, DesignNumber: a.DesignNumber}
}

func (l *Lot) computeTotals() {
	l.TotalPieces = 0
	for i := range l.Allocations {
		total := 0
		for _, p := range l.Allocations[i].BeamPieces {
			total += p.Pieces
		}
		l.Allocations[i].TotalPieces = total
		l.TotalPieces += total
	}
}

func (input *NewLot) validate() (lotDate time.Time, deliveryDate *time.Time, err error) {
	input.LotNumber = strings.TrimSpace(input.LotNumber)
	if err = utils.ValidateStruct(input); err != nil {
		return
	}
	if len(input.Lines) == 0 {
		err = ErrEmptyAllocation
		return
	}
	seen := make(map[ledgerKey]struct{}, len(input.Lines))
	for i := range input.Lines {
		line := &input.Lines[i]
		line.DesignNumber = strings.ToUpper(strings.TrimSpace(line.DesignNumber))
		if line.Sets <= 0 {
			err = fmt.Errorf("%w: order %d design %s", ErrInvalidAllocationSets, line.OrderId, line.DesignNumber)
			return
		}
		if _, dup := seen[line.key()]; dup {
			err = fmt.Errorf("%w: order %d design %s", ErrDuplicateAllocationLine, line.OrderId, line.DesignNumber)
			return
		}
		seen[line.key()] = struct{}{}
	}
	if lotDate, err = utils.ParseDate(input.LotDate); err != nil {
		return
	}
	if input.DeliveryDate != nil && strings.TrimSpace(*input.DeliveryDate) != "" {
		var d time.Time
		if d, err = utils.ParseDate(*input.DeliveryDate); err != nil {
			return
		}
		deliveryDate = &d
	}
	if input.BillNumber != nil {
		if b := strings.TrimSpace(*input.BillNumber); b == "" {
			input.BillNumber = nil
		} else {
			input.BillNumber = &b
		}
	}
	return
}

func ensureLotNumberFree(tx *gorm.DB, lotNumber string, excludeLotId int) error {
	var count int64
	q := tx.Model(&Lot{}).Where("lot_number = ?", lotNumber)
	if excludeLotId > 0 {
		q = q.Where("id <> ?", excludeLotId)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateLotNumber
	}
	return nil
}

// commonPartyQuality returns the party and quality shared by all orders, 0 where they differ.
func commonPartyQuality(orders []Order) (partyId int, qualityId int) {
	for i, o := range orders {
		if i == 0 {
			partyId, qualityId = o.PartyId, o.QualityId
			continue
		}
		if o.PartyId != partyId {
			partyId = 0
		}
		if o.QualityId != qualityId {
			qualityId = 0
		}
	}
	return
}

func isLotInputErr(err error) bool {
	var unknown *UnknownAllocationTargetError
	var insufficient *InsufficientAvailabilityError
	return errors.Is(err, ErrDuplicateLotNumber) ||
		errors.Is(err, ErrLotNotFound) ||
		errors.As(err, &unknown) ||
		errors.As(err, &insufficient)
}

// CreateLot validates every line against the ledger and only then writes the lot,
// its allocations with their beam pieces, and the ledger debits. Any failure rolls
// back the whole transaction: no partial lots.
func CreateLot(ctx context.Context, input *NewLot) (*Lot, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	lotDate, deliveryDate, err := input.validate()
	if err != nil {
		return nil, err
	}

	release := utils.LedgerLock(ctx, ledgerLockKey, "models/lot.go", "CreateLot")
	defer release()

	lot := Lot{
		LotNumber:    input.LotNumber,
		LotDate:      lotDate,
		BillNumber:   input.BillNumber,
		ActualPieces: input.ActualPieces,
		DeliveryDate: deliveryDate,
		Status:       LotStatusPending,
		Notes:        input.Notes,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureLotNumberFree(tx, lot.LotNumber, 0); err != nil {
			return err
		}

		keys := make([]ledgerKey, 0, len(input.Lines))
		orderIds := make([]int, 0, len(input.Lines))
		for _, line := range input.Lines {
			keys = append(keys, line.key())
			orderIds = append(orderIds, line.OrderId)
		}
		orderIds = utils.UniqueSlice(orderIds)

		entries, err := lockLedgerEntries(tx, keys)
		if err != nil {
			return err
		}

		// validate every line before touching anything
		for _, line := range input.Lines {
			entry, ok := entries[line.key()]
			if !ok {
				return &UnknownAllocationTargetError{OrderId: line.OrderId, DesignNumber: line.DesignNumber}
			}
			if line.Sets > entry.RemainingSets {
				return &InsufficientAvailabilityError{
					OrderId:      line.OrderId,
					DesignNumber: line.DesignNumber,
					Requested:    line.Sets,
					Remaining:    entry.RemainingSets,
				}
			}
		}

		var orders []Order
		if err := tx.Select("id", "party_id", "quality_id").Where("id IN ?", orderIds).Order("id").Find(&orders).Error; err != nil {
			return err
		}
		lot.PartyId, lot.QualityId = commonPartyQuality(orders)

		beamConfigs, err := loadBeamConfigs(tx, orderIds)
		if err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(&lot).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrDuplicateLotNumber
			}
			return err
		}

		for _, line := range input.Lines {
			allocation := LotDesignAllocation{
				LotId:         lot.ID,
				OrderId:       line.OrderId,
				DesignNumber:  line.DesignNumber,
				AllocatedSets: line.Sets,
			}
			if err := tx.Omit(clause.Associations).Create(&allocation).Error; err != nil {
				return err
			}
			pieces := beamPiecesFor(beamConfigs[line.key()], line.Sets)
			if len(pieces) > 0 {
				rows := make([]LotBeamPiece, 0, len(pieces))
				for _, p := range pieces {
					rows = append(rows, LotBeamPiece{
						AllocationId:   allocation.ID,
						BeamColorId:    p.BeamColorId,
						BeamMultiplier: p.BeamMultiplier,
						Pieces:         p.Pieces,
					})
				}
				if err := tx.Create(&rows).Error; err != nil {
					return err
				}
				allocation.BeamPieces = rows
			}
			lot.Allocations = append(lot.Allocations, allocation)

			if err := allocateLedgerSets(tx, line.key(), line.Sets); err != nil {
				return err
			}
		}
		lot.computeTotals()

		return recordLedgerEvent(ctx, tx, LedgerEventLotCreated, LedgerReferenceLot, lot.ID, lot)
	})
	if err != nil {
		if !isLotInputErr(err) {
			config.LogError(logger, "models/lot.go", "CreateLot", "create lot transaction", input, err)
		}
		return nil, err
	}
	invalidateLedgerReports()

	logger.WithFields(logrus.Fields{
		"field":        "CreateLot",
		"lot_id":       lot.ID,
		"lot_number":   lot.LotNumber,
		"lines":        len(input.Lines),
		"total_pieces": lot.TotalPieces,
	}).Info("lot created")

	return GetLot(ctx, lot.ID)
}

func preloadLotAllocations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Allocations.BeamPieces", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func GetLot(ctx context.Context, id int) (*Lot, error) {
	db := config.GetDB()
	var lot Lot
	err := preloadLotAllocations(db.WithContext(ctx)).First(&lot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLotNotFound
	}
	if err != nil {
		return nil, err
	}
	lot.computeTotals()
	return &lot, nil
}

func ListLots(ctx context.Context, filter *LotFilter) ([]*Lot, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&Lot{})
	if filter != nil {
		if filter.PartyId != nil {
			q = q.Where("party_id = ?", *filter.PartyId)
		}
		if filter.QualityId != nil {
			q = q.Where("quality_id = ?", *filter.QualityId)
		}
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
	}
	var lots []*Lot
	if err := preloadLotAllocations(q).Order("lot_date DESC, id DESC").Find(&lots).Error; err != nil {
		return nil, err
	}
	for _, lot := range lots {
		lot.computeTotals()
	}
	return lots, nil
}

// parseLotFieldValue converts the raw edit value into what gets stored; nil clears the column.
func parseLotFieldValue(field LotField, value string) (interface{}, error) {
	value = strings.TrimSpace(value)
	switch field {
	case LotFieldBillNumber:
		if value == "" {
			return nil, nil
		}
		if utf8.RuneCountInString(value) > 100 {
			return nil, fmt.Errorf("%w: bill_number is longer than 100 characters", ErrInvalidFieldValue)
		}
		return value, nil
	case LotFieldActualPieces:
		if value == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: actual_pieces must be a non-negative integer", ErrInvalidFieldValue)
		}
		return n, nil
	case LotFieldDeliveryDate:
		if value == "" {
			return nil, nil
		}
		d, err := utils.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFieldValue, err)
		}
		return d, nil
	case LotFieldLotDate:
		d, err := utils.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFieldValue, err)
		}
		return d, nil
	case LotFieldLotNumber:
		if value == "" || utf8.RuneCountInString(value) > 50 {
			return nil, fmt.Errorf("%w: lot_number must be 1 to 50 characters", ErrInvalidFieldValue)
		}
		return value, nil
	}
	return nil, ErrLotFieldNotEditable
}

// EditLotField updates one scalar lot column. It never touches the ledger.
func EditLotField(ctx context.Context, id int, field LotField, value string) (*Lot, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if !field.IsEditable() {
		return nil, fmt.Errorf("%w: %q", ErrLotFieldNotEditable, field)
	}
	newValue, err := parseLotFieldValue(field, value)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot Lot
		err := tx.Select("id").First(&lot, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLotNotFound
		}
		if err != nil {
			return err
		}
		if field == LotFieldLotNumber {
			if err := ensureLotNumberFree(tx, newValue.(string), id); err != nil {
				return err
			}
		}
		if err := tx.Model(&Lot{}).Where("id = ?", id).Update(string(field), newValue).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrDuplicateLotNumber
			}
			return err
		}
		return recordLedgerEvent(ctx, tx, LedgerEventLotUpdated, LedgerReferenceLot, id, map[string]interface{}{
			"field": field,
			"value": newValue,
		})
	})
	if err != nil {
		if !isLotInputErr(err) {
			config.LogError(logger, "models/lot.go", "EditLotField", "edit lot field transaction", map[string]interface{}{"lot_id": id, "field": field}, err)
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"field":     "EditLotField",
		"lot_id":    id,
		"lot_field": field,
	}).Info("lot field updated")

	return GetLot(ctx, id)
}

// UpdateLotStatus stores a new status. Any member of the enum is accepted; backward moves are
// rejected only under STRICT_LOT_STATUS_TRANSITIONS and otherwise logged.
func UpdateLotStatus(ctx context.Context, id int, rawStatus string) (*Lot, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	status, err := ParseLotStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	var previous LotStatus
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lot Lot
		err := tx.Select("id", "status").First(&lot, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLotNotFound
		}
		if err != nil {
			return err
		}
		previous = lot.Status
		if previous == status {
			return nil
		}
		if lotStatusRank[status] < lotStatusRank[previous] {
			if config.StrictLotStatusTransitions() {
				return fmt.Errorf("%w: %s -> %s", ErrLotStatusBackward, previous, status)
			}
			logger.WithFields(logrus.Fields{
				"field":       "UpdateLotStatus",
				"lot_id":      id,
				"from_status": previous,
				"to_status":   status,
			}).Warn("lot status moved backwards")
		}
		if err := tx.Model(&Lot{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			return err
		}
		return recordLedgerEvent(ctx, tx, LedgerEventLotStatusChanged, LedgerReferenceLot, id, map[string]interface{}{
			"from_status": previous,
			"to_status":   status,
		})
	})
	if err != nil {
		if !errors.Is(err, ErrLotNotFound) && !errors.Is(err, ErrLotStatusBackward) {
			config.LogError(logger, "models/lot.go", "UpdateLotStatus", "update lot status transaction", id, err)
		}
		return nil, err
	}
	if previous != status {
		invalidateLedgerReports()
	}

	return GetLot(ctx, id)
}

// DeleteLot credits every allocation back to its ledger entry before removing
// the beam pieces, the allocations and the lot.
func DeleteLot(ctx context.Context, id int) (*Lot, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	release := utils.LedgerLock(ctx, ledgerLockKey, "models/lot.go", "DeleteLot")
	defer release()

	var lot Lot
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := preloadLotAllocations(tx).First(&lot, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLotNotFound
		}
		if err != nil {
			return err
		}
		lot.computeTotals()

		allocations := make([]LotDesignAllocation, len(lot.Allocations))
		copy(allocations, lot.Allocations)
		sort.Slice(allocations, func(i, j int) bool {
			if allocations[i].OrderId != allocations[j].OrderId {
				return allocations[i].OrderId < allocations[j].OrderId
			}
			return allocations[i].DesignNumber < allocations[j].DesignNumber
		})

		keys := make([]ledgerKey, 0, len(allocations))
		allocationIds := make([]int, 0, len(allocations))
		for _, a := range allocations {
			keys = append(keys, ledgerKey{OrderId: a.OrderId, DesignNumber: a.DesignNumber})
			allocationIds = append(allocationIds, a.ID)
		}
		if _, err := lockLedgerEntries(tx, keys); err != nil {
			return err
		}
		for _, a := range allocations {
			if err := creditLedgerSets(tx, ledgerKey{OrderId: a.OrderId, DesignNumber: a.DesignNumber}, a.AllocatedSets); err != nil {
				return err
			}
		}

		if len(allocationIds) > 0 {
			if err := tx.Where("allocation_id IN ?", allocationIds).Delete(&LotBeamPiece{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", allocationIds).Delete(&LotDesignAllocation{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&Lot{}, id).Error; err != nil {
			return err
		}

		return recordLedgerEvent(ctx, tx, LedgerEventLotDeleted, LedgerReferenceLot, id, lot)
	})
	if err != nil {
		if !errors.Is(err, ErrLotNotFound) {
			config.LogError(logger, "models/lot.go", "DeleteLot", "delete lot transaction", id, err)
		}
		return nil, err
	}
	invalidateLedgerReports()

	logger.WithFields(logrus.Fields{
		"field":       "DeleteLot",
		"lot_id":      id,
		"lot_number":  lot.LotNumber,
		"allocations": len(lot.Allocations),
	}).Info("lot deleted")

	return &lot, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Order is created by order intake and is immutable afterwards; it only goes away
// through DeleteOrder. Its design numbers live on as its ledger entries.
type Order struct {
	ID              int                 `gorm:"primary_key" json:"id"`
	OrderNumber     string              `gorm:"size:50;not null;uniqueIndex" json:"order_number"`
	PartyId         int                 `gorm:"index;not null" json:"party_id"`
	QualityId       int                 `gorm:"index;not null" json:"quality_id"`
	Sets            int                 `gorm:"not null" json:"sets"`
	Pick            int                 `gorm:"not null" json:"pick"`
	OrderDate       time.Time           `gorm:"not null" json:"order_date"`
	RatePerPiece    decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0" json:"rate_per_piece"`
	LotRegisterType string              `gorm:"size:50;index" json:"lot_register_type"`
	Notes           string              `gorm:"type:text" json:"notes"`
	GroundColors    []OrderGroundColor  `gorm:"foreignKey:OrderId" json:"ground_colors"`
	Designs         []DesignLedgerEntry `gorm:"foreignKey:OrderId" json:"designs"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderGroundColor struct {
	ID              int    `gorm:"primary_key" json:"id"`
	OrderId         int    `gorm:"index;not null" json:"order_id"`
	GroundColorName string `gorm:"size:100;not null" json:"ground_color_name"`
	BeamColorId     int    `gorm:"index;not null" json:"beam_color_id"`
}

type NewGroundColor struct {
	Name        string `json:"name" binding:"required,max=100"`
	BeamColorId int    `json:"beam_color_id" binding:"required,gt=0"`
}

type NewOrder struct {
	OrderNumber     string           `json:"order_number" binding:"required,max=50"`
	PartyId         int              `json:"party_id" binding:"required,gt=0"`
	QualityId       int              `json:"quality_id" binding:"required,gt=0"`
	Sets            int              `json:"sets" binding:"required,gt=0"`
	Pick            int              `json:"pick" binding:"required,gt=0"`
	OrderDate       string           `json:"order_date" binding:"required,datetime=2006-01-02"`
	RatePerPiece    decimal.Decimal  `json:"rate_per_piece"`
	LotRegisterType string           `json:"lot_register_type" binding:"max=50"`
	Notes           string           `json:"notes"`
	DesignNumbers   []string         `json:"design_numbers" binding:"required,min=1,dive,required,max=50"`
	GroundColors    []NewGroundColor `json:"ground_colors" binding:"dive"`
}

type OrderFilter struct {
	PartyId         *int
	QualityId       *int
	LotRegisterType *string
}

const ledgerLockKey = "ledgerLock:allocation"

var designNumberPattern = regexp.MustCompile(`^[A-Z0-9\-_ ]+$`)

// normalizeDesignNumbers upper-cases and trims design numbers, drops repeats
// and rejects anything outside [A-Z0-9 -_].
func normalizeDesignNumbers(raw []string) ([]string, error) {
	normalized := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d == "" || !designNumberPattern.MatchString(d) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDesignNumber, d)
		}
		normalized = append(normalized, d)
	}
	return utils.UniqueSlice(normalized), nil
}

func (input *NewOrder) validate() (designNumbers []string, orderDate time.Time, err error) {
	input.OrderNumber = strings.TrimSpace(input.OrderNumber)
	input.LotRegisterType = strings.TrimSpace(input.LotRegisterType)
	if err = utils.ValidateStruct(input); err != nil {
		return
	}
	if input.RatePerPiece.IsNegative() {
		err = ErrNegativeRate
		return
	}
	if orderDate, err = utils.ParseDate(input.OrderDate); err != nil {
		return
	}
	for i := range input.GroundColors {
		input.GroundColors[i].Name = strings.TrimSpace(input.GroundColors[i].Name)
	}
	designNumbers, err = normalizeDesignNumbers(input.DesignNumbers)
	return
}

// RegisterOrder stores an order, derives its beam configuration and opens one ledger
// entry per design, all in one transaction.
func RegisterOrder(ctx context.Context, input *NewOrder) (*Order, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	designNumbers, orderDate, err := input.validate()
	if err != nil {
		return nil, err
	}

	release := utils.LedgerLock(ctx, ledgerLockKey, "models/order.go", "RegisterOrder")
	defer release()

	order := Order{
		OrderNumber:     input.OrderNumber,
		PartyId:         input.PartyId,
		QualityId:       input.QualityId,
		Sets:            input.Sets,
		Pick:            input.Pick,
		OrderDate:       orderDate,
		RatePerPiece:    input.RatePerPiece,
		LotRegisterType: input.LotRegisterType,
		Notes:           input.Notes,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Order{}).Where("order_number = ?", order.OrderNumber).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateOrderNumber
		}

		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return ErrDuplicateOrderNumber
			}
			return err
		}

		if len(input.GroundColors) > 0 {
			groundColors := make([]OrderGroundColor, 0, len(input.GroundColors))
			for _, gc := range input.GroundColors {
				groundColors = append(groundColors, OrderGroundColor{
					OrderId:         order.ID,
					GroundColorName: gc.Name,
					BeamColorId:     gc.BeamColorId,
				})
			}
			if err := tx.Create(&groundColors).Error; err != nil {
				return err
			}
		}

		if configs := DeriveBeamConfigs(order.ID, designNumbers, input.GroundColors, order.Pick); len(configs) > 0 {
			if err := tx.Create(&configs).Error; err != nil {
				return err
			}
		}

		entries := newLedgerEntries(order.ID, designNumbers, order.Sets)
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}

		return recordLedgerEvent(ctx, tx, LedgerEventOrderRegistered, LedgerReferenceOrder, order.ID, map[string]interface{}{
			"order_number":   order.OrderNumber,
			"party_id":       order.PartyId,
			"quality_id":     order.QualityId,
			"sets":           order.Sets,
			"pick":           order.Pick,
			"design_numbers": designNumbers,
		})
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			config.LogError(logger, "models/order.go", "RegisterOrder", "register order transaction", input, err)
		}
		return nil, err
	}
	invalidateLedgerReports()

	logger.WithFields(logrus.Fields{
		"field":        "RegisterOrder",
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"designs":      len(designNumbers),
	}).Info("order registered")

	return GetOrder(ctx, order.ID)
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var order Order
	err := db.WithContext(ctx).
		Preload("GroundColors", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Designs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func ListOrders(ctx context.Context, filter *OrderFilter) ([]*Order, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&Order{})
	if filter != nil {
		if filter.PartyId != nil {
			q = q.Where("party_id = ?", *filter.PartyId)
		}
		if filter.QualityId != nil {
			q = q.Where("quality_id = ?", *filter.QualityId)
		}
		if filter.LotRegisterType != nil {
			q = q.Where("lot_register_type = ?", *filter.LotRegisterType)
		}
	}
	var orders []*Order
	err := q.Preload("GroundColors", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Designs", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("order_date DESC, id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// DeleteOrder is the order intake deletion hook. It removes, in order: the lot allocations
// that reference the order (with their beam pieces), the ledger entries, the beam configs,
// the ground colors and the order itself. No ledger credit happens because the ledger
// entries go with the order. Lots left without allocations are kept.
func DeleteOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	release := utils.LedgerLock(ctx, ledgerLockKey, "models/order.go", "DeleteOrder")
	defer release()

	var order Order
	var affectedLotIds []int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("GroundColors").Preload("Designs").First(&order, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		var allocations []LotDesignAllocation
		if err := tx.Where("order_id = ?", id).Find(&allocations).Error; err != nil {
			return err
		}
		if len(allocations) > 0 {
			allocationIds := make([]int, 0, len(allocations))
			lotIds := make([]int, 0, len(allocations))
			for _, a := range allocations {
				allocationIds = append(allocationIds, a.ID)
				lotIds = append(lotIds, a.LotId)
			}
			affectedLotIds = utils.UniqueSlice(lotIds)
			if err := tx.Where("allocation_id IN ?", allocationIds).Delete(&LotBeamPiece{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", allocationIds).Delete(&LotDesignAllocation{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("order_id = ?", id).Delete(&DesignLedgerEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&DesignBeamConfig{}).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&OrderGroundColor{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Order{}, id).Error; err != nil {
			return err
		}

		return recordLedgerEvent(ctx, tx, LedgerEventOrderDeleted, LedgerReferenceOrder, order.ID, map[string]interface{}{
			"order_number":     order.OrderNumber,
			"affected_lot_ids": affectedLotIds,
		})
	})
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			config.LogError(logger, "models/order.go", "DeleteOrder", "delete order transaction", id, err)
		}
		return nil, err
	}
	invalidateLedgerReports()

	logger.WithFields(logrus.Fields{
		"field":            "DeleteOrder",
		"order_id":         order.ID,
		"affected_lot_ids": affectedLotIds,
	}).Info("order deleted")

	return &order, nil
}

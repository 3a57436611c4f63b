package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/weaving_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DesignLedgerEntry tracks how many sets of one order design are still free for lots.
// Invariant: RemainingSets = TotalSets - AllocatedSets, 0 <= AllocatedSets <= TotalSets.
type DesignLedgerEntry struct {
	ID            int       `gorm:"primary_key" json:"id"`
	OrderId       int       `gorm:"not null;index:uniq_design_ledger,unique" json:"order_id"`
	DesignNumber  string    `gorm:"size:50;not null;index:uniq_design_ledger,unique" json:"design_number"`
	TotalSets     int       `gorm:"not null" json:"total_sets"`
	AllocatedSets int       `gorm:"not null;default:0" json:"allocated_sets"`
	RemainingSets int       `gorm:"not null" json:"remaining_sets"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ledgerKey struct {
	OrderId      int
	DesignNumber string
}

func (e DesignLedgerEntry) key() ledgerKey {
	return ledgerKey{OrderId: e.OrderId, DesignNumber: e.DesignNumber}
}

func (e DesignLedgerEntry) CheckInvariant() error {
	violation := func(format string, args ...any) error {
		return &InvariantViolationError{OrderId: e.OrderId, DesignNumber: e.DesignNumber, Detail: fmt.Sprintf(format, args...)}
	}
	if e.TotalSets < 0 {
		return violation("total sets %d is negative", e.TotalSets)
	}
	if e.AllocatedSets < 0 || e.AllocatedSets > e.TotalSets {
		return violation("allocated sets %d outside 0..%d", e.AllocatedSets, e.TotalSets)
	}
	if e.RemainingSets != e.TotalSets-e.AllocatedSets {
		return violation("remaining sets %d != total %d - allocated %d", e.RemainingSets, e.TotalSets, e.AllocatedSets)
	}
	return nil
}

func newLedgerEntries(orderId int, designNumbers []string, sets int) []DesignLedgerEntry {
	entries := make([]DesignLedgerEntry, 0, len(designNumbers))
	for _, designNumber := range designNumbers {
		entries = append(entries, DesignLedgerEntry{
			OrderId:       orderId,
			DesignNumber:  designNumber,
			TotalSets:     sets,
			AllocatedSets: 0,
			RemainingSets: sets,
		})
	}
	return entries
}

// lockLedgerEntries reads the entries for keys with FOR UPDATE, in (order_id, design_number)
// order so concurrent lot transactions always lock rows in the same sequence.
// Keys without an entry are absent from the result.
func lockLedgerEntries(tx *gorm.DB, keys []ledgerKey) (map[ledgerKey]DesignLedgerEntry, error) {
	result := make(map[ledgerKey]DesignLedgerEntry, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	orderIds := make([]int, 0, len(keys))
	designNumbers := make([]string, 0, len(keys))
	for _, k := range keys {
		orderIds = append(orderIds, k.OrderId)
		designNumbers = append(designNumbers, k.DesignNumber)
	}

	var entries []DesignLedgerEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id IN ? AND design_number IN ?", utils.UniqueSlice(orderIds), utils.UniqueSlice(designNumbers)).
		Order("order_id, design_number").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	wanted := make(map[ledgerKey]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := wanted[e.key()]; ok {
			result[e.key()] = e
		}
	}
	return result, nil
}

// allocateLedgerSets debits delta sets from one entry. The debit is conditional on
// remaining_sets at write time, so a stale read can never push the entry below zero.
func allocateLedgerSets(tx *gorm.DB, key ledgerKey, delta int) error {
	if delta <= 0 {
		return ErrInvalidAllocationSets
	}
	res := tx.Model(&DesignLedgerEntry{}).
		Where("order_id = ? AND design_number = ? AND remaining_sets >= ?", key.OrderId, key.DesignNumber, delta).
		Updates(map[string]interface{}{
			"allocated_sets": gorm.Expr("allocated_sets + ?", delta),
			"remaining_sets": gorm.Expr("remaining_sets - ?", delta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var entry DesignLedgerEntry
		err := tx.Where("order_id = ? AND design_number = ?", key.OrderId, key.DesignNumber).First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &UnknownAllocationTargetError{OrderId: key.OrderId, DesignNumber: key.DesignNumber}
		}
		if err != nil {
			return err
		}
		return &InsufficientAvailabilityError{
			OrderId:      key.OrderId,
			DesignNumber: key.DesignNumber,
			Requested:    delta,
			Remaining:    entry.RemainingSets,
		}
	}
	return verifyLedgerEntry(tx, key)
}

// creditLedgerSets returns delta sets to an entry when a lot allocation is removed.
func creditLedgerSets(tx *gorm.DB, key ledgerKey, delta int) error {
	if delta <= 0 {
		return &InvariantViolationError{OrderId: key.OrderId, DesignNumber: key.DesignNumber,
			Detail: fmt.Sprintf("allocation carries non-positive sets %d", delta)}
	}
	res := tx.Model(&DesignLedgerEntry{}).
		Where("order_id = ? AND design_number = ? AND allocated_sets >= ?", key.OrderId, key.DesignNumber, delta).
		Updates(map[string]interface{}{
			"allocated_sets": gorm.Expr("allocated_sets - ?", delta),
			"remaining_sets": gorm.Expr("remaining_sets + ?", delta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &InvariantViolationError{OrderId: key.OrderId, DesignNumber: key.DesignNumber,
			Detail: fmt.Sprintf("credit of %d sets exceeds the allocated sets or the entry is missing", delta)}
	}
	return verifyLedgerEntry(tx, key)
}

func verifyLedgerEntry(tx *gorm.DB, key ledgerKey) error {
	var entry DesignLedgerEntry
	if err := tx.Where("order_id = ? AND design_number = ?", key.OrderId, key.DesignNumber).First(&entry).Error; err != nil {
		return err
	}
	return entry.CheckInvariant()
}

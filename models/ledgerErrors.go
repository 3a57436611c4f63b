package models

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrDuplicateLotNumber      = errors.New("lot number already exists")
	ErrDuplicateOrderNumber    = errors.New("order number already exists")
	ErrEmptyAllocation         = errors.New("lot must allocate at least one design")
	ErrInvalidAllocationSets   = errors.New("sets to allocate must be greater than zero")
	ErrDuplicateAllocationLine = errors.New("design is listed more than once for the same order")
	ErrLotNotFound             = errors.New("lot not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrLotFieldNotEditable     = errors.New("lot field is not editable")
	ErrInvalidLotStatus        = errors.New("invalid lot status")
	ErrLotStatusBackward       = errors.New("lot status cannot move backwards")
	ErrInvalidFieldValue       = errors.New("invalid field value")
	ErrInvalidDesignNumber     = errors.New("invalid design number")
	ErrNegativeRate            = errors.New("rate per piece cannot be negative")
)

// UnknownAllocationTargetError is returned when a lot line names an (order, design)
// pair with no ledger entry.
type UnknownAllocationTargetError struct {
	OrderId      int
	DesignNumber string
}

func (e *UnknownAllocationTargetError) Error() string {
	return fmt.Sprintf("no ledger entry for order %d design %s", e.OrderId, e.DesignNumber)
}

type InsufficientAvailabilityError struct {
	OrderId      int
	DesignNumber string
	Requested    int
	Remaining    int
}

func (e *InsufficientAvailabilityError) Error() string {
	return fmt.Sprintf("design %s of order %d has %d sets remaining, %d requested",
		e.DesignNumber, e.OrderId, e.Remaining, e.Requested)
}

// InvariantViolationError means a ledger row broke remaining = total - allocated
// or left the 0..total range. The enclosing transaction is always rolled back.
type InvariantViolationError struct {
	OrderId      int
	DesignNumber string
	Detail       string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("ledger invariant violated for order %d design %s: %s", e.OrderId, e.DesignNumber, e.Detail)
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

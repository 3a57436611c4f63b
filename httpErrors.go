package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/mmdatafocus/weaving_backend/utils"
)

var badRequestErrors = []error{
	models.ErrEmptyAllocation,
	models.ErrInvalidAllocationSets,
	models.ErrDuplicateAllocationLine,
	models.ErrLotFieldNotEditable,
	models.ErrInvalidLotStatus,
	models.ErrLotStatusBackward,
	models.ErrInvalidFieldValue,
	models.ErrInvalidDesignNumber,
	models.ErrNegativeRate,
	utils.ErrInvalidDate,
}

// respondError maps domain errors onto status codes with a {"error": kind, "message": ...} body.
func respondError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	var unknown *models.UnknownAllocationTargetError
	var insufficient *models.InsufficientAvailabilityError
	var invariant *models.InvariantViolationError

	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid request",
			"fields":  utils.ProcessValidationErrors(err),
		})
	case errors.As(err, &unknown):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         "unknown_allocation_target",
			"message":       err.Error(),
			"order_id":      unknown.OrderId,
			"design_number": unknown.DesignNumber,
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         "insufficient_availability",
			"message":       err.Error(),
			"order_id":      insufficient.OrderId,
			"design_number": insufficient.DesignNumber,
			"requested":     insufficient.Requested,
			"remaining":     insufficient.Remaining,
		})
	case errors.As(err, &invariant):
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "invariant_violation",
			"message": err.Error(),
		})
	case errors.Is(err, models.ErrLotNotFound), errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, models.ErrDuplicateLotNumber), errors.Is(err, models.ErrDuplicateOrderNumber):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate", "message": err.Error()})
	case isBadRequest(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
	}
}

func isBadRequest(err error) bool {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// bindJSON decodes the body into dst; on failure it writes the 400 and returns false.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			respondError(c, err)
			return false
		}
		config.GetLogger().WithField("field", "bindJSON").Debug(err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "malformed request body"})
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			respondError(c, err)
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "malformed query"})
		return false
	}
	return true
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// optionalIntQuery returns nil for a missing parameter and writes a 400 for a malformed one.
func optionalIntQuery(c *gin.Context, name string) (*int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": name + " must be an integer"})
		return nil, false
	}
	return &v, true
}

func optionalStringQuery(c *gin.Context, name string) *string {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	return &raw
}

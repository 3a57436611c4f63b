package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/mmdatafocus/weaving_backend/workflow"
	"gorm.io/gorm"
)

type ledgerEventReference struct {
	ReferenceType string `json:"reference_type" form:"reference_type" binding:"required,oneof=ORDER LOT"`
	ReferenceId   int    `json:"reference_id" form:"reference_id" binding:"required,gt=0"`
}

func listLedgerEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ref ledgerEventReference
		if !bindQuery(c, &ref) {
			return
		}
		records, err := models.ListLedgerEvents(c.Request.Context(), models.LedgerReferenceType(ref.ReferenceType), ref.ReferenceId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// requeueLedgerEventsHandler puts FAILED/DEAD events of one order or lot back in the dispatch queue.
func requeueLedgerEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ref ledgerEventReference
		if !bindJSON(c, &ref) {
			return
		}
		n, err := models.RequeueLedgerEvents(c.Request.Context(), models.LedgerReferenceType(strings.ToUpper(ref.ReferenceType)), ref.ReferenceId)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no failed ledger events for reference"})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"reference_type": ref.ReferenceType,
			"reference_id":   ref.ReferenceId,
			"requeued":       n,
		})
	}
}

func runReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		mismatches, err := workflow.RunLedgerReconciliationChecks(c.Request.Context(), config.GetLogger())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mismatches": mismatches})
	}
}

package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/mmdatafocus/weaving_backend/models/reports"
)

func listAvailableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyId, ok := optionalIntQuery(c, "party_id")
		if !ok {
			return
		}
		qualityId, ok := optionalIntQuery(c, "quality_id")
		if !ok {
			return
		}
		rows, err := models.ListAvailable(c.Request.Context(), partyId, qualityId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func allocationStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := optionalIntQuery(c, "order_id")
		if !ok {
			return
		}
		entries, err := models.GetOrderAllocationStatus(c.Request.Context(), orderId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func lotRegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.ListLotRegister(c.Request.Context(), optionalStringQuery(c, "lot_type"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func lotRegisterExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.ListLotRegister(c.Request.Context(), optionalStringQuery(c, "lot_type"))
		if err != nil {
			respondError(c, err)
			return
		}
		filename := "lot-register-" + time.Now().UTC().Format("20060102") + ".xlsx"
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Status(http.StatusOK)
		if err := reports.WriteLotRegister(c.Writer, rows); err != nil {
			c.Error(err)
		}
	}
}

func partywiseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyId, ok := optionalIntQuery(c, "party_id")
		if !ok {
			return
		}
		rows, err := models.GetPartywiseDetail(c.Request.Context(), partyId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func beamSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := models.GetBeamSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func allocationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.GetAllocationSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func reconciliationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := optionalIntQuery(c, "limit")
		if !ok {
			return
		}
		n := 0
		if limit != nil {
			n = *limit
		}
		rows, err := models.ListReconciliationReports(c.Request.Context(), optionalStringQuery(c, "check_type"), n)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

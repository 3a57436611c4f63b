package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/weaving_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type editLotFieldRequest struct {
	Field string `json:"field" binding:"required"`
	Value string `json:"value"`
}

type updateLotStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func createLotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLot
		if !bindJSON(c, &input) {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "CreateLot", trace.WithAttributes(
			attribute.String("lot_number", input.LotNumber),
			attribute.Int("lines", len(input.Lines)),
		))
		defer span.End()

		lot, err := models.CreateLot(ctx, &input)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, lot)
	}
}

func listLotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyId, ok := optionalIntQuery(c, "party_id")
		if !ok {
			return
		}
		qualityId, ok := optionalIntQuery(c, "quality_id")
		if !ok {
			return
		}
		filter := &models.LotFilter{PartyId: partyId, QualityId: qualityId}
		if raw := optionalStringQuery(c, "status"); raw != nil {
			status, err := models.ParseLotStatus(*raw)
			if err != nil {
				respondError(c, err)
				return
			}
			filter.Status = &status
		}
		lots, err := models.ListLots(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lots)
	}
}

func getLotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		lot, err := models.GetLot(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

func editLotFieldHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req editLotFieldRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "EditLotField", trace.WithAttributes(
			attribute.Int("lot_id", id),
			attribute.String("field", req.Field),
		))
		defer span.End()

		lot, err := models.EditLotField(ctx, id, models.LotField(req.Field), req.Value)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

func updateLotStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req updateLotStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		lot, err := models.UpdateLotStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

func deleteLotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "DeleteLot", trace.WithAttributes(attribute.Int("lot_id", id)))
		defer span.End()

		lot, err := models.DeleteLot(ctx, id)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lot)
	}
}

package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/weaving_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if !bindJSON(c, &input) {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "RegisterOrder",
			trace.WithAttributes(attribute.String("order_number", input.OrderNumber)))
		defer span.End()

		order, err := models.RegisterOrder(ctx, &input)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func listOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyId, ok := optionalIntQuery(c, "party_id")
		if !ok {
			return
		}
		qualityId, ok := optionalIntQuery(c, "quality_id")
		if !ok {
			return
		}
		orders, err := models.ListOrders(c.Request.Context(), &models.OrderFilter{
			PartyId:         partyId,
			QualityId:       qualityId,
			LotRegisterType: optionalStringQuery(c, "lot_register_type"),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func getOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.GetOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func deleteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "DeleteOrder", trace.WithAttributes(attribute.Int("order_id", id)))
		defer span.End()

		order, err := models.DeleteOrder(ctx, id)
		if err != nil {
			span.RecordError(err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

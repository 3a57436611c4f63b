package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/middlewares"
	"github.com/mmdatafocus/weaving_backend/models"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := config.ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared"); err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	db := config.GetDB()
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	models.MigrateTable()
	return setupRouter(config.GetLogger())
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]interface{}{}
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w, out
}

func orderBody(number string) map[string]interface{} {
	return map[string]interface{}{
		"order_number":   number,
		"party_id":       1,
		"quality_id":     2,
		"sets":           10,
		"pick":           2,
		"order_date":     "2024-01-15",
		"rate_per_piece": "2.50",
		"design_numbers": []string{"A1"},
		"ground_colors": []map[string]interface{}{
			{"name": "Red", "beam_color_id": 1},
			{"name": "Blue", "beam_color_id": 2},
		},
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get(middlewares.CorrelationIdHeader) == "" {
		t.Fatalf("expected a correlation id header")
	}
}

func TestOrderAndLotFlow(t *testing.T) {
	r := newTestRouter(t)

	w, order := doJSON(t, r, http.MethodPost, "/api/orders", orderBody("ORD-100"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	orderId := int(order["id"].(float64))

	w, body := doJSON(t, r, http.MethodPost, "/api/orders", orderBody("ORD-100"))
	if w.Code != http.StatusConflict || body["error"] != "duplicate" {
		t.Fatalf("duplicate order: expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/lots", map[string]interface{}{
		"lot_number": "LOT-001",
		"lot_date":   "2024-02-01",
		"lines":      []map[string]interface{}{{"order_id": orderId, "design_number": "A1", "sets": 11}},
	})
	if w.Code != http.StatusUnprocessableEntity || body["error"] != "insufficient_availability" {
		t.Fatalf("over-allocation: expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if body["remaining"].(float64) != 10 {
		t.Fatalf("expected remaining 10 in error body, got %v", body["remaining"])
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/lots", map[string]interface{}{
		"lot_number": "LOT-001",
		"lot_date":   "2024-02-01",
		"lines":      []map[string]interface{}{{"order_id": orderId, "design_number": "ZZ", "sets": 1}},
	})
	if w.Code != http.StatusUnprocessableEntity || body["error"] != "unknown_allocation_target" {
		t.Fatalf("unknown design: expected 422, got %d: %s", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/lots", map[string]interface{}{
		"lot_number": "LOT-001",
		"lot_date":   "2024-02-01",
		"lines":      []map[string]interface{}{{"order_id": orderId, "design_number": "A1", "sets": 4}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create lot: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w, body = doJSON(t, r, http.MethodGet, "/api/reports/allocation-summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("allocation summary: expected 200, got %d", w.Code)
	}
	if body["allocated_sets"].(float64) != 4 {
		t.Fatalf("expected 4 allocated sets, got %v", body["allocated_sets"])
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/reports/lot-register.xlsx", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("export: expected 200 with a workbook, got %d", w.Code)
	}
}

func TestValidationAndNotFound(t *testing.T) {
	r := newTestRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/orders", map[string]interface{}{"order_number": "X"})
	if w.Code != http.StatusBadRequest || body["error"] != "validation_error" {
		t.Fatalf("expected 400 validation_error, got %d: %s", w.Code, w.Body.String())
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/orders/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/lots/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed id, got %d", w.Code)
	}

	w, body = doJSON(t, r, http.MethodGet, "/api/nowhere", nil)
	if w.Code != http.StatusNotFound || body["error"] != "not_found" {
		t.Fatalf("expected 404 from NoRoute, got %d", w.Code)
	}
}

func TestUserNameHeaderRecordedOnLedgerEvents(t *testing.T) {
	t.Setenv("LEDGER_EVENTS_ENABLED", "true")
	r := newTestRouter(t)

	post := func(number, user string) int {
		raw, _ := json.Marshal(orderBody(number))
		req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		if user != "" {
			req.Header.Set(middlewares.UserNameHeader, user)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("create order %s: expected 201, got %d: %s", number, w.Code, w.Body.String())
		}
		var order models.Order
		if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		return order.ID
	}

	for _, tc := range []struct {
		number string
		user   string
		want   string
	}{
		{"ORD-U1", "mya", "mya"},
		{"ORD-U2", "", "System"},
	} {
		id := post(tc.number, tc.user)
		events, err := models.ListLedgerEvents(context.Background(), models.LedgerReferenceOrder, id)
		if err != nil {
			t.Fatalf("ListLedgerEvents: %v", err)
		}
		if len(events) != 1 || events[0].CreatedBy != tc.want {
			t.Fatalf("%s: expected one event created by %q, got %+v", tc.number, tc.want, events)
		}
	}
}

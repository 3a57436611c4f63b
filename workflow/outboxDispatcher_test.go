package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/models"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	calls    []config.LedgerEventMessage
}

func (p *fakePublisher) publish(ctx context.Context, msg config.LedgerEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, msg)
	if p.failures > 0 {
		p.failures--
		return "", errors.New("pubsub unavailable")
	}
	return "msg-" + msg.EventType, nil
}

func setupDispatcherDB(t *testing.T) context.Context {
	t.Helper()
	t.Setenv("LEDGER_EVENTS_ENABLED", "true")
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
	return context.Background()
}

func registerTestOrder(t *testing.T, ctx context.Context, number string) *models.Order {
	t.Helper()
	order, err := models.RegisterOrder(ctx, &models.NewOrder{
		OrderNumber:   number,
		PartyId:       1,
		QualityId:     1,
		Sets:          5,
		Pick:          1,
		OrderDate:     "2024-01-01",
		DesignNumbers: []string{"A"},
	})
	if err != nil {
		t.Fatalf("RegisterOrder: %v", err)
	}
	return order
}

func TestOutboxDispatcher_PublishesPendingEvents(t *testing.T) {
	ctx := setupDispatcherDB(t)
	registerTestOrder(t, ctx, "ORD-1")
	registerTestOrder(t, ctx, "ORD-2")

	pub := &fakePublisher{}
	d := NewOutboxDispatcher(config.GetDB(), config.GetLogger())
	d.Publish = pub.publish

	sent, err := d.DispatchOnce(ctx)
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if sent != 2 || len(pub.calls) != 2 {
		t.Fatalf("expected 2 published events, got sent=%d calls=%d", sent, len(pub.calls))
	}
	if pub.calls[0].EventType != string(models.LedgerEventOrderRegistered) {
		t.Fatalf("unexpected event type %s", pub.calls[0].EventType)
	}

	var records []models.LedgerEventRecord
	if err := config.GetDB().Order("id").Find(&records).Error; err != nil {
		t.Fatalf("load records: %v", err)
	}
	for _, r := range records {
		if r.PublishStatus != models.OutboxPublishStatusSent || r.PubSubMessageId == nil || r.PublishedAt == nil {
			t.Fatalf("record %d not marked sent: %+v", r.ID, r)
		}
		if r.PublishAttempts != 1 {
			t.Fatalf("record %d: expected 1 attempt, got %d", r.ID, r.PublishAttempts)
		}
	}

	// nothing left to do
	sent, err = d.DispatchOnce(ctx)
	if err != nil || sent != 0 {
		t.Fatalf("expected idle second pass, got sent=%d err=%v", sent, err)
	}
}

func TestOutboxDispatcher_FailureBacksOffThenDies(t *testing.T) {
	ctx := setupDispatcherDB(t)
	registerTestOrder(t, ctx, "ORD-F")

	pub := &fakePublisher{failures: 100}
	d := NewOutboxDispatcher(config.GetDB(), config.GetLogger())
	d.Publish = pub.publish
	d.MaxAttempts = 2
	d.InitialBackoff = time.Hour

	if _, err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	var rec models.LedgerEventRecord
	if err := config.GetDB().First(&rec).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.PublishStatus != models.OutboxPublishStatusFailed || rec.NextAttemptAt == nil || rec.LastPublishError == nil {
		t.Fatalf("expected FAILED with backoff, got %+v", rec)
	}

	// still backing off
	if _, err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected no publish during backoff, got %d calls", len(pub.calls))
	}

	// make it due; second failure reaches MaxAttempts
	past := time.Now().UTC().Add(-time.Minute)
	if err := config.GetDB().Model(&models.LedgerEventRecord{}).Where("id = ?", rec.ID).Update("next_attempt_at", &past).Error; err != nil {
		t.Fatalf("reset backoff: %v", err)
	}
	if _, err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if err := config.GetDB().First(&rec, rec.ID).Error; err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.PublishStatus != models.OutboxPublishStatusDead || rec.PublishAttempts != 2 {
		t.Fatalf("expected DEAD after 2 attempts, got status=%s attempts=%d", rec.PublishStatus, rec.PublishAttempts)
	}
}

func TestRetryBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := retryBackoff(5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestRunLedgerReconciliationChecks_Clean(t *testing.T) {
	ctx := setupDispatcherDB(t)
	registerTestOrder(t, ctx, "ORD-R")

	mismatches, err := RunLedgerReconciliationChecks(ctx, config.GetLogger())
	if err != nil {
		t.Fatalf("RunLedgerReconciliationChecks: %v", err)
	}
	if mismatches != 0 {
		t.Fatalf("expected no mismatches, got %d", mismatches)
	}
}

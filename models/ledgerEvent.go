package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/utils"
	"gorm.io/gorm"
)

type LedgerEventType string

const (
	LedgerEventOrderRegistered  LedgerEventType = "ORDER_REGISTERED"
	LedgerEventOrderDeleted     LedgerEventType = "ORDER_DELETED"
	LedgerEventLotCreated       LedgerEventType = "LOT_CREATED"
	LedgerEventLotUpdated       LedgerEventType = "LOT_UPDATED"
	LedgerEventLotStatusChanged LedgerEventType = "LOT_STATUS_CHANGED"
	LedgerEventLotDeleted       LedgerEventType = "LOT_DELETED"
)

type LedgerReferenceType string

const (
	LedgerReferenceOrder LedgerReferenceType = "ORDER"
	LedgerReferenceLot   LedgerReferenceType = "LOT"
)

// LedgerEventRecord is the transactional outbox row written in the same transaction
// as the ledger mutation it describes. workflow.OutboxDispatcher publishes it after commit.
type LedgerEventRecord struct {
	ID            int                 `gorm:"primary_key;index:idx_ledger_outbox_dispatch,priority:3" json:"id"`
	EventType     LedgerEventType     `gorm:"size:40;not null;index" json:"event_type"`
	ReferenceType LedgerReferenceType `gorm:"size:20;not null;index:idx_ledger_event_ref,priority:1" json:"reference_type"`
	ReferenceId   int                 `gorm:"not null;index:idx_ledger_event_ref,priority:2" json:"reference_id"`
	Payload       []byte              `gorm:"type:blob" json:"-"`
	// publish bookkeeping, owned by the dispatcher
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_ledger_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_ledger_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedBy        string     `gorm:"size:100;not null;default:'System'" json:"created_by"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToLedgerEventMessage(record LedgerEventRecord) config.LedgerEventMessage {
	return config.LedgerEventMessage{
		ID:            record.ID,
		EventType:     string(record.EventType),
		ReferenceType: string(record.ReferenceType),
		ReferenceId:   record.ReferenceId,
		Payload:       json.RawMessage(record.Payload),
		CorrelationId: record.CorrelationId,
		CreatedBy:     record.CreatedBy,
		OccurredAt:    record.CreatedAt,
	}
}

// recordLedgerEvent appends an outbox row inside tx. It is a no-op unless LEDGER_EVENTS_ENABLED is set.
func recordLedgerEvent(ctx context.Context, tx *gorm.DB, eventType LedgerEventType, referenceType LedgerReferenceType, referenceId int, payload any) error {
	if !config.LedgerEventsEnabled() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	userName, ok := utils.GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "System"
	}
	record := LedgerEventRecord{
		EventType:     eventType,
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
		CreatedBy:     userName,
	}
	return tx.Create(&record).Error
}

// ListLedgerEvents returns the outbox rows of one order or lot, newest first.
func ListLedgerEvents(ctx context.Context, referenceType LedgerReferenceType, referenceId int) ([]*LedgerEventRecord, error) {
	db := config.GetDB()
	var records []*LedgerEventRecord
	err := db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RequeueLedgerEvents puts the FAILED and DEAD rows of one reference back to PENDING
// with a fresh attempt budget. Returns the number of rows requeued.
func RequeueLedgerEvents(ctx context.Context, referenceType LedgerReferenceType, referenceId int) (int64, error) {
	db := config.GetDB()
	res := db.WithContext(ctx).
		Model(&LedgerEventRecord{}).
		Where("reference_type = ? AND reference_id = ? AND publish_status IN ?", referenceType, referenceId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":   OutboxPublishStatusPending,
			"publish_attempts": 0,
			"next_attempt_at":  nil,
			"locked_at":        nil,
			"locked_by":        nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return res.RowsAffected, nil
}

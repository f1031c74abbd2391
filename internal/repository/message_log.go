package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// MessageLogRepository appends one row per inbound MQTT message. Rows are
// write-once; this table exists purely for observability.
type MessageLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessageLogRepository creates a message log repository.
func NewMessageLogRepository(db *sql.DB, logger *zap.Logger) *MessageLogRepository {
	return &MessageLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert writes one message-log row.
func (r *MessageLogRepository) Insert(ctx context.Context, entry *models.MessageLog) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.BrokerID == "" {
		return fmt.Errorf("broker_id is required")
	}

	query := `
		INSERT INTO mqtt_message_logs (
			broker_id,
			subscription_id,
			topic,
			payload,
			payload_json,
			qos,
			retained,
			processed,
			error,
			fields_updated,
			received_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	var payloadJSON interface{}
	if len(entry.PayloadJSON) > 0 {
		payloadJSON = []byte(entry.PayloadJSON)
	} else {
		payloadJSON = sql.NullString{}
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.BrokerID,
		entry.SubscriptionID,
		entry.Topic,
		entry.Payload,
		payloadJSON,
		entry.QoS,
		entry.Retained,
		entry.Processed,
		entry.Error,
		entry.FieldsUpdated,
		entry.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

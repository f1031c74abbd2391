package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// SubscriptionsRepository reads subscription and field-mapping
// configuration for a broker. Mappings are joined with the field-definition
// metadata so the declared type is resolved in one round trip.
type SubscriptionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubscriptionsRepository creates a subscriptions repository.
func NewSubscriptionsRepository(db *sql.DB, logger *zap.Logger) *SubscriptionsRepository {
	return &SubscriptionsRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveSubscriptions returns the active subscriptions of one broker.
func (r *SubscriptionsRepository) GetActiveSubscriptions(ctx context.Context, brokerID string) ([]*models.Subscription, error) {
	if brokerID == "" {
		return nil, fmt.Errorf("broker_id is required")
	}

	query := `
		SELECT
			subscription_id,
			broker_id,
			topic_filter,
			qos,
			is_active,
			created_at
		FROM mqtt_subscriptions
		WHERE broker_id = $1
		  AND is_active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, brokerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*models.Subscription{}
	for rows.Next() {
		var s models.Subscription
		if err := rows.Scan(
			&s.SubscriptionID,
			&s.BrokerID,
			&s.TopicFilter,
			&s.QoS,
			&s.IsActive,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// GetMappings returns the field mappings of one subscription with the
// declared field type resolved from asset_field_definitions.
func (r *SubscriptionsRepository) GetMappings(ctx context.Context, subscriptionID string) ([]*models.FieldMapping, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required")
	}

	query := `
		SELECT
			m.mapping_id,
			m.subscription_id,
			m.asset_id,
			m.json_path,
			m.field_definition_id,
			m.fixed_column,
			COALESCE(fd.field_type, ''),
			m.transformation,
			m.factor,
			m.last_value,
			m.last_update
		FROM mqtt_field_mappings m
		LEFT JOIN asset_field_definitions fd ON m.field_definition_id = fd.field_definition_id
		WHERE m.subscription_id = $1
		ORDER BY m.mapping_id
	`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query field mappings: %w", err)
	}
	defer rows.Close()

	mappings := []*models.FieldMapping{}
	for rows.Next() {
		var m models.FieldMapping
		var fieldDefID, fixedColumn, lastValue sql.NullString
		var fieldType string
		var factor sql.NullFloat64
		var lastUpdate sql.NullTime

		if err := rows.Scan(
			&m.MappingID,
			&m.SubscriptionID,
			&m.AssetID,
			&m.JSONPath,
			&fieldDefID,
			&fixedColumn,
			&fieldType,
			&m.Transformation,
			&factor,
			&lastValue,
			&lastUpdate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field mapping: %w", err)
		}

		if fieldDefID.Valid {
			m.FieldDefinitionID = &fieldDefID.String
		}
		if fixedColumn.Valid {
			m.FixedColumn = &fixedColumn.String
		}
		m.FieldType = models.FieldType(fieldType)
		if factor.Valid {
			m.Factor = &factor.Float64
		}
		if lastValue.Valid {
			m.LastValue = &lastValue.String
		}
		if lastUpdate.Valid {
			m.LastUpdate = &lastUpdate.Time
		}

		mappings = append(mappings, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate field mappings: %w", err)
	}

	return mappings, nil
}

// TouchMapping refreshes the informational last_value/last_update cache on
// a mapping after a successful write. Failures are logged, not returned:
// the cache is not authoritative.
func (r *SubscriptionsRepository) TouchMapping(ctx context.Context, mappingID, value string, at time.Time) {
	query := `
		UPDATE mqtt_field_mappings
		SET last_value = $1,
		    last_update = $2
		WHERE mapping_id = $3
	`

	if _, err := r.db.ExecContext(ctx, query, value, at, mappingID); err != nil {
		r.logger.Warn("Failed to update mapping cache",
			zap.String("mapping_id", mappingID),
			zap.Error(err),
		)
	}
}

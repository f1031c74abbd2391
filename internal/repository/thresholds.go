package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// ThresholdsRepository reads alert-threshold rules and writes alert-history
// rows. Rule comparison itself happens in the evaluator package so the
// boundary semantics live in one documented place.
type ThresholdsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewThresholdsRepository creates a thresholds repository.
func NewThresholdsRepository(db *sql.DB, logger *zap.Logger) *ThresholdsRepository {
	return &ThresholdsRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveThresholds returns the active rules scoped to one asset field.
// The field is identified by either a field definition id or a fixed
// column name.
func (r *ThresholdsRepository) GetActiveThresholds(ctx context.Context, assetID string, field models.FieldRef) ([]*models.AlertThreshold, error) {
	if assetID == "" {
		return nil, fmt.Errorf("asset_id is required")
	}
	if (field.FieldDefinitionID == nil) == (field.FixedColumn == nil) {
		return nil, fmt.Errorf("exactly one of field_definition_id or fixed_column is required")
	}

	query := `
		SELECT
			threshold_id,
			asset_id,
			field_definition_id,
			fixed_column,
			comparison,
			bound_low,
			bound_high,
			severity,
			message,
			automatic_action,
			template_id,
			is_active
		FROM alert_thresholds
		WHERE asset_id = $1
		  AND is_active = true
	`

	var rows *sql.Rows
	var err error
	if field.FieldDefinitionID != nil {
		query += ` AND field_definition_id = $2`
		rows, err = r.db.QueryContext(ctx, query, assetID, *field.FieldDefinitionID)
	} else {
		query += ` AND fixed_column = $2`
		rows, err = r.db.QueryContext(ctx, query, assetID, *field.FixedColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	thresholds := []*models.AlertThreshold{}
	for rows.Next() {
		var t models.AlertThreshold
		var fieldDefID, fixedColumn, action, templateID sql.NullString
		var boundHigh sql.NullFloat64

		if err := rows.Scan(
			&t.ThresholdID,
			&t.AssetID,
			&fieldDefID,
			&fixedColumn,
			&t.Comparison,
			&t.BoundLow,
			&boundHigh,
			&t.Severity,
			&t.Message,
			&action,
			&templateID,
			&t.IsActive,
		); err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}

		if fieldDefID.Valid {
			t.FieldDefinitionID = &fieldDefID.String
		}
		if fixedColumn.Valid {
			t.FixedColumn = &fixedColumn.String
		}
		if boundHigh.Valid {
			t.BoundHigh = &boundHigh.Float64
		}
		if action.Valid {
			t.AutomaticAction = &action.String
		}
		if templateID.Valid {
			t.TemplateID = &templateID.String
		}

		thresholds = append(thresholds, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate thresholds: %w", err)
	}

	return thresholds, nil
}

// InsertAlert writes one alert-history row.
func (r *ThresholdsRepository) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.AssetID == "" {
		return fmt.Errorf("asset_id is required")
	}

	query := `
		INSERT INTO alert_history (
			alert_id,
			threshold_id,
			asset_id,
			device_id,
			trigger_value,
			severity,
			message,
			notification_sent,
			work_order_id,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.ThresholdID,
		alert.AssetID,
		alert.DeviceID,
		alert.TriggerValue,
		alert.Severity,
		alert.Message,
		alert.NotificationSent,
		alert.WorkOrderID,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// SetWorkOrder attaches a created work order to an alert.
func (r *ThresholdsRepository) SetWorkOrder(ctx context.Context, alertID string, workOrderID int64) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `UPDATE alert_history SET work_order_id = $1 WHERE alert_id = $2`

	if _, err := r.db.ExecContext(ctx, query, workOrderID, alertID); err != nil {
		return fmt.Errorf("failed to attach work order to alert: %w", err)
	}
	return nil
}

// SetNotificationSent marks an alert as handed to the notification stream.
func (r *ThresholdsRepository) SetNotificationSent(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	query := `UPDATE alert_history SET notification_sent = true WHERE alert_id = $1`

	if _, err := r.db.ExecContext(ctx, query, alertID); err != nil {
		return fmt.Errorf("failed to mark alert notified: %w", err)
	}
	return nil
}

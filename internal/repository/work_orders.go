package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// WorkOrdersRepository is the single door into the work-order subsystem the
// ingestion pipeline uses: materializing a preventive work order from a
// maintenance template. The heavy lifting lives in the
// create_preventive_work_order database function owned by the CRUD side of
// the application.
type WorkOrdersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkOrdersRepository creates a work orders repository.
func NewWorkOrdersRepository(db *sql.DB, logger *zap.Logger) *WorkOrdersRepository {
	return &WorkOrdersRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePreventive creates a preventive work order from a maintenance
// template for an asset, linked to the alert that triggered it, and returns
// the new work order id.
func (r *WorkOrdersRepository) CreatePreventive(ctx context.Context, templateID, assetID, alertID string) (int64, error) {
	if templateID == "" {
		return 0, fmt.Errorf("template_id is required")
	}
	if assetID == "" {
		return 0, fmt.Errorf("asset_id is required")
	}
	if alertID == "" {
		return 0, fmt.Errorf("alert_id is required")
	}

	var workOrderID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT create_preventive_work_order($1, $2, $3)`,
		templateID, assetID, alertID,
	).Scan(&workOrderID)
	if err != nil {
		return 0, fmt.Errorf("failed to create preventive work order: %w", err)
	}

	return workOrderID, nil
}

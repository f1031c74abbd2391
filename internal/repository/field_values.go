package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// fixedColumnAllowList is the closed set of asset columns the pipeline may
// write. Anything else configured as a fixed destination is skipped, never
// executed: column names cannot be parameterized, so the guard is the only
// thing standing between configuration and the SQL text.
var fixedColumnAllowList = map[string]bool{
	"operating_hours": true,
	"mileage":         true,
	"cycle_count":     true,
	"last_reading":    true,
}

// FixedColumnAllowed reports whether column is a writable fixed asset column.
func FixedColumnAllowed(column string) bool {
	return fixedColumnAllowList[column]
}

// FieldValuesRepository persists extracted values into either the dynamic
// typed-value table or a fixed asset column.
type FieldValuesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFieldValuesRepository creates a field values repository.
func NewFieldValuesRepository(db *sql.DB, logger *zap.Logger) *FieldValuesRepository {
	return &FieldValuesRepository{
		db:     db,
		logger: logger,
	}
}

// typedColumn maps a declared field type to the value column of
// asset_field_values. Select values are stored as text; unknown types
// default to text as well.
func typedColumn(fieldType models.FieldType) string {
	switch fieldType {
	case models.FieldTypeNumber:
		return "value_number"
	case models.FieldTypeDate:
		return "value_date"
	case models.FieldTypeBoolean:
		return "value_boolean"
	case models.FieldTypeText, models.FieldTypeSelect:
		return "value_text"
	default:
		return "value_text"
	}
}

// UpsertDynamicValue writes one value for (asset, field definition) into the
// typed-value store. The upsert is idempotent: a second write of the same
// pair updates the existing row, the timestamp of the later write wins.
func (r *FieldValuesRepository) UpsertDynamicValue(ctx context.Context, assetID, fieldDefinitionID string, fieldType models.FieldType, value interface{}, at time.Time) error {
	if assetID == "" {
		return fmt.Errorf("asset_id is required")
	}
	if fieldDefinitionID == "" {
		return fmt.Errorf("field_definition_id is required")
	}

	column := typedColumn(fieldType)
	query := fmt.Sprintf(`
		INSERT INTO asset_field_values (asset_id, field_definition_id, %s, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_id, field_definition_id)
		DO UPDATE SET %s = EXCLUDED.%s,
		              updated_at = EXCLUDED.updated_at
	`, column, column, column)

	if _, err := r.db.ExecContext(ctx, query, assetID, fieldDefinitionID, value, at); err != nil {
		return fmt.Errorf("failed to upsert field value: %w", err)
	}
	return nil
}

// UpdateFixedColumn writes a value into one of the allow-listed asset
// columns. A column outside the allow-list returns (false, nil): skipped,
// not an error.
func (r *FieldValuesRepository) UpdateFixedColumn(ctx context.Context, assetID, column string, value interface{}) (bool, error) {
	if assetID == "" {
		return false, fmt.Errorf("asset_id is required")
	}
	if !FixedColumnAllowed(column) {
		r.logger.Debug("Skipping write to non-allow-listed asset column",
			zap.String("asset_id", assetID),
			zap.String("column", column),
		)
		return false, nil
	}

	query := fmt.Sprintf(`
		UPDATE assets
		SET %s = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE asset_id = $2
	`, column)

	if _, err := r.db.ExecContext(ctx, query, value, assetID); err != nil {
		return false, fmt.Errorf("failed to update asset column %s: %w", column, err)
	}
	return true, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// DevicesRepository reads IoT device and parameter configuration and
// appends rows to the device value history.
type DevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDevicesRepository creates a devices repository.
func NewDevicesRepository(db *sql.DB, logger *zap.Logger) *DevicesRepository {
	return &DevicesRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveDevices returns the active devices of one broker.
func (r *DevicesRepository) GetActiveDevices(ctx context.Context, brokerID string) ([]*models.IoTDevice, error) {
	if brokerID == "" {
		return nil, fmt.Errorf("broker_id is required")
	}

	query := `
		SELECT
			device_id,
			broker_id,
			asset_id,
			name,
			base_topic,
			is_active,
			created_at
		FROM iot_devices
		WHERE broker_id = $1
		  AND is_active = true
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, brokerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []*models.IoTDevice{}
	for rows.Next() {
		var d models.IoTDevice
		var assetID sql.NullString
		if err := rows.Scan(
			&d.DeviceID,
			&d.BrokerID,
			&assetID,
			&d.Name,
			&d.BaseTopic,
			&d.IsActive,
			&d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		if assetID.Valid {
			d.AssetID = &assetID.String
		}
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// GetParameters returns the parameter configs of one device.
func (r *DevicesRepository) GetParameters(ctx context.Context, deviceID string) ([]*models.DeviceParameter, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			parameter_id,
			device_id,
			name,
			topic_suffix,
			json_path,
			data_type,
			transformation,
			factor,
			min_value,
			max_value,
			field_definition_id,
			fixed_column
		FROM device_parameters
		WHERE device_id = $1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device parameters: %w", err)
	}
	defer rows.Close()

	params := []*models.DeviceParameter{}
	for rows.Next() {
		var p models.DeviceParameter
		var dataType string
		var factor, minValue, maxValue sql.NullFloat64
		var fieldDefID, fixedColumn sql.NullString

		if err := rows.Scan(
			&p.ParameterID,
			&p.DeviceID,
			&p.Name,
			&p.TopicSuffix,
			&p.JSONPath,
			&dataType,
			&p.Transformation,
			&factor,
			&minValue,
			&maxValue,
			&fieldDefID,
			&fixedColumn,
		); err != nil {
			return nil, fmt.Errorf("failed to scan device parameter: %w", err)
		}

		p.DataType = models.FieldType(dataType)
		if factor.Valid {
			p.Factor = &factor.Float64
		}
		if minValue.Valid {
			p.MinValue = &minValue.Float64
		}
		if maxValue.Valid {
			p.MaxValue = &maxValue.Float64
		}
		if fieldDefID.Valid {
			p.FieldDefinitionID = &fieldDefID.String
		}
		if fixedColumn.Valid {
			p.FixedColumn = &fixedColumn.String
		}

		params = append(params, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device parameters: %w", err)
	}

	return params, nil
}

// InsertReading appends one immutable row to the device value history. The
// value lands in the typed column matching the parameter's declared data
// type; rows are never updated or deleted.
func (r *DevicesRepository) InsertReading(ctx context.Context, deviceID, parameterID string, dataType models.FieldType, value interface{}, at time.Time) (int64, error) {
	if deviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}
	if parameterID == "" {
		return 0, fmt.Errorf("parameter_id is required")
	}

	column := typedColumn(dataType)
	query := fmt.Sprintf(`
		INSERT INTO device_value_history (device_id, parameter_id, %s, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING reading_id
	`, column)

	var id int64
	if err := r.db.QueryRowContext(ctx, query, deviceID, parameterID, value, at).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert device reading: %w", err)
	}
	return id, nil
}

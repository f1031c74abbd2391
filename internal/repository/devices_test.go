package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

func TestGetActiveDevices(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM iot_devices WHERE broker_id = \$1 AND is_active = true`).
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{
			"device_id", "broker_id", "asset_id", "name", "base_topic", "is_active", "created_at",
		}).
			AddRow("d1", "b1", "asset-1", "press sensor", "factory/press1", true, now).
			AddRow("d2", "b1", nil, "orphan sensor", "factory/misc", true, now))

	repo := NewDevicesRepository(db, zap.NewNop())
	devices, err := repo.GetActiveDevices(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, devices, 2)

	require.NotNil(t, devices[0].AssetID)
	assert.Equal(t, "asset-1", *devices[0].AssetID)
	assert.Equal(t, "factory/press1", devices[0].BaseTopic)
	assert.Nil(t, devices[1].AssetID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetParameters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM device_parameters WHERE device_id = \$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{
			"parameter_id", "device_id", "name", "topic_suffix", "json_path",
			"data_type", "transformation", "factor", "min_value", "max_value",
			"field_definition_id", "fixed_column",
		}).
			AddRow("p1", "d1", "temperature", "temperature", "$.value",
				"number", "multiply", 1.8, -40.0, 200.0, "fd-1", nil))

	repo := NewDevicesRepository(db, zap.NewNop())
	params, err := repo.GetParameters(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, params, 1)

	p := params[0]
	assert.Equal(t, models.FieldTypeNumber, p.DataType)
	require.NotNil(t, p.Factor)
	assert.Equal(t, 1.8, *p.Factor)
	require.NotNil(t, p.MinValue)
	assert.Equal(t, -40.0, *p.MinValue)
	require.NotNil(t, p.MaxValue)
	assert.Equal(t, 200.0, *p.MaxValue)
	require.NotNil(t, p.FieldDefinitionID)
	assert.Nil(t, p.FixedColumn)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReading(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Now()
	mock.ExpectQuery(`INSERT INTO device_value_history .+ value_number, recorded_at`).
		WithArgs("d1", "p1", 91.8, at).
		WillReturnRows(sqlmock.NewRows([]string{"reading_id"}).AddRow(int64(9)))

	repo := NewDevicesRepository(db, zap.NewNop())
	id, err := repo.InsertReading(context.Background(), "d1", "p1", models.FieldTypeNumber, 91.8, at)
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReadingValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDevicesRepository(db, zap.NewNop())
	_, err = repo.InsertReading(context.Background(), "", "p1", models.FieldTypeNumber, 1, time.Now())
	assert.Error(t, err)
	_, err = repo.InsertReading(context.Background(), "d1", "", models.FieldTypeNumber, 1, time.Now())
	assert.Error(t, err)
}

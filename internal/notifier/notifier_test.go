package notifier

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNotifyPublishesToStream(t *testing.T) {
	client := testClient(t)
	n := NewAlertNotifier(client, "", zap.NewNop())

	alert := &models.Alert{
		AlertID:      "alert-1",
		AssetID:      "asset-1",
		TriggerValue: 91.8,
		Severity:     models.SeverityCritical,
		Message:      "Temperature too high (value 91.8)",
		CreatedAt:    time.Now(),
	}

	id, err := n.Notify(context.Background(), alert)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "alert-1", values["alert_id"])
	assert.Equal(t, "asset-1", values["asset_id"])
	assert.Equal(t, models.SeverityCritical, values["severity"])

	var decoded models.Alert
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, 91.8, decoded.TriggerValue)
	assert.Equal(t, alert.Message, decoded.Message)
}

func TestNotifyCustomStream(t *testing.T) {
	client := testClient(t)
	n := NewAlertNotifier(client, "custom:alerts", zap.NewNop())

	_, err := n.Notify(context.Background(), &models.Alert{AlertID: "a", AssetID: "b"})
	require.NoError(t, err)

	count, err := client.XLen(context.Background(), "custom:alerts").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestNotifyNilAlert(t *testing.T) {
	client := testClient(t)
	n := NewAlertNotifier(client, "", zap.NewNop())

	_, err := n.Notify(context.Background(), nil)
	assert.Error(t, err)
}

func TestNotifyRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	n := NewAlertNotifier(client, "", zap.NewNop())
	_, err := n.Notify(context.Background(), &models.Alert{AlertID: "a", AssetID: "b"})
	assert.Error(t, err)
}

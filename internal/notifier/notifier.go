package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// DefaultStream is the Redis stream the notification workers consume.
const DefaultStream = "gmao:alerts:stream"

// AlertNotifier hands fired alerts to the notification subsystem over a
// Redis stream. Delivery (email/push/in-app) happens downstream; from the
// pipeline's point of view a successful XADD is "notification sent".
type AlertNotifier struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewAlertNotifier creates an alert notifier. An empty stream name selects
// DefaultStream.
func NewAlertNotifier(client *redis.Client, stream string, logger *zap.Logger) *AlertNotifier {
	if stream == "" {
		stream = DefaultStream
	}
	return &AlertNotifier{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Notify publishes one alert to the stream and returns the stream entry id.
func (n *AlertNotifier) Notify(ctx context.Context, alert *models.Alert) (string, error) {
	if alert == nil {
		return "", fmt.Errorf("alert is required")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert: %w", err)
	}

	id, err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"alert_id":  alert.AlertID,
			"asset_id":  alert.AssetID,
			"severity":  alert.Severity,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish alert to stream: %w", err)
	}

	n.logger.Debug("Alert published to notification stream",
		zap.String("alert_id", alert.AlertID),
		zap.String("stream", n.stream),
		zap.String("stream_id", id),
	)

	return id, nil
}

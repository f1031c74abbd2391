package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// ThresholdStore is the slice of the persistent store the evaluator needs.
type ThresholdStore interface {
	GetActiveThresholds(ctx context.Context, assetID string, field models.FieldRef) ([]*models.AlertThreshold, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
	SetWorkOrder(ctx context.Context, alertID string, workOrderID int64) error
	SetNotificationSent(ctx context.Context, alertID string) error
}

// WorkOrderCreator materializes a preventive work order from a template.
type WorkOrderCreator interface {
	CreatePreventive(ctx context.Context, templateID, assetID, alertID string) (int64, error)
}

// Notifier hands a fired alert to the notification subsystem.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert) (string, error)
}

// Evaluator checks newly written numeric field values against the
// configured alert thresholds. It runs inside the message hot path, so it
// never returns an error to its caller: every failure is logged here and
// the rest of the message continues.
type Evaluator struct {
	thresholds ThresholdStore
	workOrders WorkOrderCreator
	notifier   Notifier
	logger     *zap.Logger
}

// NewEvaluator creates a threshold evaluator. notifier may be nil when
// notification dispatch is disabled.
func NewEvaluator(thresholds ThresholdStore, workOrders WorkOrderCreator, notifier Notifier, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		workOrders: workOrders,
		notifier:   notifier,
		logger:     logger,
	}
}

// Breached applies the rule's comparison to a new value.
//
// Boundary semantics are a documented contract of this service, not of the
// rule configuration UI: gt/lt are strict, gte/lte inclusive, between is
// inclusive on both bounds (bound_low <= v <= bound_high), eq/neq compare
// exact float values. Non-finite values (NaN, ±Inf — e.g. from a divide
// transformation with factor 0) never breach anything.
func Breached(t *models.AlertThreshold, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	switch t.Comparison {
	case models.CompareGT:
		return value > t.BoundLow
	case models.CompareGTE:
		return value >= t.BoundLow
	case models.CompareLT:
		return value < t.BoundLow
	case models.CompareLTE:
		return value <= t.BoundLow
	case models.CompareEQ:
		return value == t.BoundLow
	case models.CompareNEQ:
		return value != t.BoundLow
	case models.CompareBetween:
		if t.BoundHigh == nil {
			return false
		}
		return value >= t.BoundLow && value <= *t.BoundHigh
	default:
		return false
	}
}

// Evaluate checks one written value against every active rule for the
// field and fires the breached ones. Returns the alerts created, for
// logging and tests; an empty slice on any lookup failure.
func (e *Evaluator) Evaluate(ctx context.Context, assetID string, field models.FieldRef, value float64, deviceID *string) []*models.Alert {
	rules, err := e.thresholds.GetActiveThresholds(ctx, assetID, field)
	if err != nil {
		e.logger.Error("Failed to load thresholds",
			zap.String("asset_id", assetID),
			zap.Error(err),
		)
		return nil
	}

	var fired []*models.Alert
	for _, rule := range rules {
		if !Breached(rule, value) {
			continue
		}

		alert := &models.Alert{
			AlertID:      uuid.New().String(),
			ThresholdID:  &rule.ThresholdID,
			AssetID:      assetID,
			DeviceID:     deviceID,
			TriggerValue: value,
			Severity:     rule.Severity,
			Message:      renderMessage(rule, value),
			CreatedAt:    time.Now(),
		}

		if err := e.thresholds.InsertAlert(ctx, alert); err != nil {
			e.logger.Error("Failed to create alert",
				zap.String("threshold_id", rule.ThresholdID),
				zap.String("asset_id", assetID),
				zap.Float64("trigger_value", value),
				zap.Error(err),
			)
			continue
		}

		e.logger.Info("Alert fired",
			zap.String("alert_id", alert.AlertID),
			zap.String("threshold_id", rule.ThresholdID),
			zap.String("asset_id", assetID),
			zap.String("severity", rule.Severity),
			zap.Float64("trigger_value", value),
		)

		// The alert row stands even if either follow-up action fails.
		e.maybeCreateWorkOrder(ctx, rule, alert)
		e.maybeNotify(ctx, rule, alert)

		fired = append(fired, alert)
	}

	return fired
}

// RecordOutOfRange creates a warning alert for a device parameter reading
// outside its configured min/max bounds. No threshold rule and no work
// order are involved; the alert is notified like any other.
func (e *Evaluator) RecordOutOfRange(ctx context.Context, assetID, deviceID, parameterName string, value float64) *models.Alert {
	alert := &models.Alert{
		AlertID:      uuid.New().String(),
		AssetID:      assetID,
		DeviceID:     &deviceID,
		TriggerValue: value,
		Severity:     models.SeverityWarning,
		Message:      fmt.Sprintf("Parameter %s out of configured range (value %g)", parameterName, value),
		CreatedAt:    time.Now(),
	}

	if err := e.thresholds.InsertAlert(ctx, alert); err != nil {
		e.logger.Error("Failed to create device alert",
			zap.String("device_id", deviceID),
			zap.String("parameter", parameterName),
			zap.Error(err),
		)
		return nil
	}

	if e.notifier != nil {
		if _, err := e.notifier.Notify(ctx, alert); err != nil {
			e.logger.Error("Failed to notify device alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		} else if err := e.thresholds.SetNotificationSent(ctx, alert.AlertID); err != nil {
			e.logger.Error("Failed to mark device alert notified",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		} else {
			alert.NotificationSent = true
		}
	}

	return alert
}

func (e *Evaluator) maybeCreateWorkOrder(ctx context.Context, rule *models.AlertThreshold, alert *models.Alert) {
	if rule.AutomaticAction == nil {
		return
	}
	action := *rule.AutomaticAction
	if action != models.ActionWorkOrder && action != models.ActionNotificationAndOrder {
		return
	}
	if rule.TemplateID == nil {
		e.logger.Warn("Threshold requests a work order but has no template",
			zap.String("threshold_id", rule.ThresholdID),
		)
		return
	}

	workOrderID, err := e.workOrders.CreatePreventive(ctx, *rule.TemplateID, alert.AssetID, alert.AlertID)
	if err != nil {
		e.logger.Error("Failed to create preventive work order",
			zap.String("alert_id", alert.AlertID),
			zap.String("template_id", *rule.TemplateID),
			zap.Error(err),
		)
		return
	}

	if err := e.thresholds.SetWorkOrder(ctx, alert.AlertID, workOrderID); err != nil {
		e.logger.Error("Failed to attach work order to alert",
			zap.String("alert_id", alert.AlertID),
			zap.Int64("work_order_id", workOrderID),
			zap.Error(err),
		)
		return
	}

	alert.WorkOrderID = &workOrderID
	e.logger.Info("Preventive work order created",
		zap.String("alert_id", alert.AlertID),
		zap.Int64("work_order_id", workOrderID),
	)
}

func (e *Evaluator) maybeNotify(ctx context.Context, rule *models.AlertThreshold, alert *models.Alert) {
	if rule.AutomaticAction == nil || e.notifier == nil {
		return
	}
	action := *rule.AutomaticAction
	if action != models.ActionNotification && action != models.ActionNotificationAndOrder {
		return
	}

	if _, err := e.notifier.Notify(ctx, alert); err != nil {
		e.logger.Error("Failed to publish alert notification",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return
	}

	if err := e.thresholds.SetNotificationSent(ctx, alert.AlertID); err != nil {
		e.logger.Error("Failed to mark alert notified",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return
	}

	alert.NotificationSent = true
}

func renderMessage(rule *models.AlertThreshold, value float64) string {
	if rule.Message != "" {
		return fmt.Sprintf("%s (value %g)", rule.Message, value)
	}
	return fmt.Sprintf("Threshold %s breached (value %g)", rule.ThresholdID, value)
}

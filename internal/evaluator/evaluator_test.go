package evaluator

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

type fakeThresholdStore struct {
	rules        []*models.AlertThreshold
	rulesErr     error
	insertErr    error
	inserted     []*models.Alert
	workOrders   map[string]int64
	notified     map[string]bool
	setWOErr     error
	setNotifyErr error
}

func newFakeThresholdStore(rules ...*models.AlertThreshold) *fakeThresholdStore {
	return &fakeThresholdStore{
		rules:      rules,
		workOrders: make(map[string]int64),
		notified:   make(map[string]bool),
	}
}

func (f *fakeThresholdStore) GetActiveThresholds(ctx context.Context, assetID string, field models.FieldRef) ([]*models.AlertThreshold, error) {
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.rules, nil
}

func (f *fakeThresholdStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, alert)
	return nil
}

func (f *fakeThresholdStore) SetWorkOrder(ctx context.Context, alertID string, workOrderID int64) error {
	if f.setWOErr != nil {
		return f.setWOErr
	}
	f.workOrders[alertID] = workOrderID
	return nil
}

func (f *fakeThresholdStore) SetNotificationSent(ctx context.Context, alertID string) error {
	if f.setNotifyErr != nil {
		return f.setNotifyErr
	}
	f.notified[alertID] = true
	return nil
}

type fakeWorkOrderCreator struct {
	nextID  int64
	err     error
	created []string // template ids, in call order
}

func (f *fakeWorkOrderCreator) CreatePreventive(ctx context.Context, templateID, assetID, alertID string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, templateID)
	f.nextID++
	return f.nextID, nil
}

type fakeNotifier struct {
	err    error
	alerts []*models.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert *models.Alert) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.alerts = append(f.alerts, alert)
	return fmt.Sprintf("1700000000000-%d", len(f.alerts)), nil
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func numberField(id string) models.FieldRef {
	return models.FieldRef{FieldDefinitionID: strPtr(id)}
}

func TestBreached(t *testing.T) {
	tests := []struct {
		name      string
		comparison string
		low       float64
		high      *float64
		value     float64
		want      bool
	}{
		{"gt above", models.CompareGT, 90, nil, 91.8, true},
		{"gt equal is not breached", models.CompareGT, 90, nil, 90, false},
		{"gte equal", models.CompareGTE, 90, nil, 90, true},
		{"lt below", models.CompareLT, 10, nil, 9.9, true},
		{"lt equal is not breached", models.CompareLT, 10, nil, 10, false},
		{"lte equal", models.CompareLTE, 10, nil, 10, true},
		{"eq match", models.CompareEQ, 42, nil, 42, true},
		{"neq differs", models.CompareNEQ, 42, nil, 41, true},
		{"between inside", models.CompareBetween, 10, floatPtr(20), 15, true},
		{"between on low bound", models.CompareBetween, 10, floatPtr(20), 10, true},
		{"between on high bound", models.CompareBetween, 10, floatPtr(20), 20, true},
		{"between outside", models.CompareBetween, 10, floatPtr(20), 21, false},
		{"between missing high bound", models.CompareBetween, 10, nil, 15, false},
		{"unknown operator", "like", 10, nil, 15, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.AlertThreshold{
				ThresholdID: "t1",
				Comparison:  tt.comparison,
				BoundLow:    tt.low,
				BoundHigh:   tt.high,
			}
			assert.Equal(t, tt.want, Breached(rule, tt.value))
		})
	}
}

func TestBreachedIgnoresNonFiniteValues(t *testing.T) {
	rule := &models.AlertThreshold{ThresholdID: "t1", Comparison: models.CompareGT, BoundLow: 0}

	// +Inf is what a divide transform with factor 0 produces.
	assert.False(t, Breached(rule, math.Inf(1)))
	assert.False(t, Breached(rule, math.Inf(-1)))
	assert.False(t, Breached(rule, math.NaN()))

	neq := &models.AlertThreshold{ThresholdID: "t2", Comparison: models.CompareNEQ, BoundLow: 0}
	assert.False(t, Breached(neq, math.Inf(1)))
}

func TestEvaluateFiresBreachedRule(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID: "th-1",
		AssetID:     "asset-1",
		Comparison:  models.CompareGT,
		BoundLow:    90,
		Severity:    models.SeverityCritical,
		Message:     "Temperature too high",
	})
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, nil, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 91.8, nil)

	require.Len(t, fired, 1)
	alert := fired[0]
	assert.Equal(t, "asset-1", alert.AssetID)
	assert.Equal(t, 91.8, alert.TriggerValue)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Temperature too high (value 91.8)", alert.Message)
	require.NotNil(t, alert.ThresholdID)
	assert.Equal(t, "th-1", *alert.ThresholdID)
	assert.False(t, alert.NotificationSent)
	assert.Nil(t, alert.WorkOrderID)
	assert.Len(t, store.inserted, 1)
}

func TestEvaluateBelowBoundFiresNothing(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID: "th-1",
		Comparison:  models.CompareGT,
		BoundLow:    90,
	})
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, nil, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 90.0, nil)

	assert.Empty(t, fired)
	assert.Empty(t, store.inserted)
}

func TestEvaluateNotificationAndWorkOrder(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID:     "th-1",
		Comparison:      models.CompareGTE,
		BoundLow:        100,
		Severity:        models.SeverityWarning,
		AutomaticAction: strPtr(models.ActionNotificationAndOrder),
		TemplateID:      strPtr("tmpl-1"),
	})
	wo := &fakeWorkOrderCreator{}
	notif := &fakeNotifier{}
	e := NewEvaluator(store, wo, notif, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 120, strPtr("dev-1"))

	require.Len(t, fired, 1)
	alert := fired[0]
	assert.Equal(t, []string{"tmpl-1"}, wo.created)
	require.NotNil(t, alert.WorkOrderID)
	assert.Equal(t, int64(1), *alert.WorkOrderID)
	assert.Equal(t, int64(1), store.workOrders[alert.AlertID])

	require.Len(t, notif.alerts, 1)
	assert.True(t, alert.NotificationSent)
	assert.True(t, store.notified[alert.AlertID])
}

func TestEvaluateWorkOrderWithoutTemplateSkipped(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID:     "th-1",
		Comparison:      models.CompareGT,
		BoundLow:        1,
		AutomaticAction: strPtr(models.ActionWorkOrder),
	})
	wo := &fakeWorkOrderCreator{}
	e := NewEvaluator(store, wo, nil, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 2, nil)

	require.Len(t, fired, 1)
	assert.Empty(t, wo.created)
	assert.Nil(t, fired[0].WorkOrderID)
}

func TestEvaluateWorkOrderFailureAlertStands(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID:     "th-1",
		Comparison:      models.CompareGT,
		BoundLow:        1,
		AutomaticAction: strPtr(models.ActionNotificationAndOrder),
		TemplateID:      strPtr("tmpl-1"),
	})
	wo := &fakeWorkOrderCreator{err: fmt.Errorf("create_preventive_work_order: template not found")}
	notif := &fakeNotifier{}
	e := NewEvaluator(store, wo, notif, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 2, nil)

	require.Len(t, fired, 1)
	assert.Nil(t, fired[0].WorkOrderID)
	// Notification still goes out when the work order fails.
	assert.Len(t, notif.alerts, 1)
	assert.True(t, fired[0].NotificationSent)
	assert.Len(t, store.inserted, 1)
}

func TestEvaluateNotifierFailureLeavesAlertUnmarked(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID:     "th-1",
		Comparison:      models.CompareGT,
		BoundLow:        1,
		AutomaticAction: strPtr(models.ActionNotification),
	})
	notif := &fakeNotifier{err: fmt.Errorf("redis: connection refused")}
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, notif, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 2, nil)

	require.Len(t, fired, 1)
	assert.False(t, fired[0].NotificationSent)
	assert.False(t, store.notified[fired[0].AlertID])
}

func TestEvaluateLookupFailureReturnsNothing(t *testing.T) {
	store := newFakeThresholdStore()
	store.rulesErr = fmt.Errorf("db: connection reset")
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, nil, zap.NewNop())

	assert.NotPanics(t, func() {
		fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 100, nil)
		assert.Empty(t, fired)
	})
}

func TestEvaluateInsertFailureSkipsRule(t *testing.T) {
	store := newFakeThresholdStore(&models.AlertThreshold{
		ThresholdID: "th-1",
		Comparison:  models.CompareGT,
		BoundLow:    1,
	})
	store.insertErr = fmt.Errorf("db: constraint violation")
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, nil, zap.NewNop())

	fired := e.Evaluate(context.Background(), "asset-1", numberField("fd-1"), 2, nil)
	assert.Empty(t, fired)
}

func TestRecordOutOfRange(t *testing.T) {
	store := newFakeThresholdStore()
	notif := &fakeNotifier{}
	e := NewEvaluator(store, &fakeWorkOrderCreator{}, notif, zap.NewNop())

	alert := e.RecordOutOfRange(context.Background(), "asset-1", "dev-1", "temperature", 150.5)

	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityWarning, alert.Severity)
	assert.Nil(t, alert.ThresholdID)
	require.NotNil(t, alert.DeviceID)
	assert.Equal(t, "dev-1", *alert.DeviceID)
	assert.Contains(t, alert.Message, "temperature")
	assert.Contains(t, alert.Message, "150.5")
	assert.True(t, alert.NotificationSent)
	assert.Len(t, store.inserted, 1)
	assert.Len(t, notif.alerts, 1)
}

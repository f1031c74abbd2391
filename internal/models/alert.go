package models

import "time"

// Threshold comparison operators. Between is inclusive on both bounds;
// non-finite values never fire (see evaluator package).
const (
	CompareGT      = "gt"
	CompareGTE     = "gte"
	CompareLT      = "lt"
	CompareLTE     = "lte"
	CompareEQ      = "eq"
	CompareNEQ     = "neq"
	CompareBetween = "between"
)

// Automatic actions a threshold rule may carry.
const (
	ActionNotification         = "notification"
	ActionWorkOrder            = "ordre"
	ActionNotificationAndOrder = "notification_et_ordre"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// AlertThreshold is a configured rule comparing a field's new value against
// a bound. It may auto-create a preventive work order from a maintenance
// template and/or request a notification.
type AlertThreshold struct {
	ThresholdID       string
	AssetID           string
	FieldDefinitionID *string
	FixedColumn       *string
	Comparison        string
	BoundLow          float64
	BoundHigh         *float64 // only for between
	Severity          string
	Message           string
	AutomaticAction   *string
	TemplateID        *string // maintenance template for work-order creation
	IsActive          bool
}

// Alert is one immutable alert-history record produced by a breached rule.
type Alert struct {
	AlertID          string
	ThresholdID      *string
	AssetID          string
	DeviceID         *string
	TriggerValue     float64
	Severity         string
	Message          string
	NotificationSent bool
	WorkOrderID      *int64
	CreatedAt        time.Time
}

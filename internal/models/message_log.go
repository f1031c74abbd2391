package models

import (
	"encoding/json"
	"time"
)

// MessageLog is one write-once row per inbound MQTT message, successful or
// not. It is the primary debugging surface for ingestion failures.
type MessageLog struct {
	LogID          int64
	BrokerID       string
	SubscriptionID *string
	Topic          string
	Payload        string
	PayloadJSON    json.RawMessage // nil when the payload was not valid JSON
	QoS            int
	Retained       bool
	Processed      bool
	Error          *string
	FieldsUpdated  int
	ReceivedAt     time.Time
}

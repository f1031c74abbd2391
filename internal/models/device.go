package models

import "time"

// IoTDevice is a higher-level device abstraction over the raw subscription
// mechanism: a base MQTT topic plus per-parameter topic suffixes.
type IoTDevice struct {
	DeviceID  string
	BrokerID  string
	AssetID   *string
	Name      string
	BaseTopic string
	IsActive  bool
	CreatedAt time.Time
}

// DeviceParameter configures one extracted reading for a device: topic
// suffix, JSON path, transformation and optional min/max bounds.
type DeviceParameter struct {
	ParameterID    string
	DeviceID       string
	Name           string
	TopicSuffix    string
	JSONPath       string
	DataType       FieldType
	Transformation string
	Factor         *float64
	MinValue       *float64
	MaxValue       *float64

	// Optional write-back into an asset field, same destination rules as
	// a FieldMapping.
	FieldDefinitionID *string
	FixedColumn       *string
}

// TopicFor returns the effective topic filter of the parameter: the
// device base topic joined with the parameter suffix, or the bare base
// topic when the suffix is empty.
func (p *DeviceParameter) TopicFor(device *IoTDevice) string {
	if p.TopicSuffix == "" {
		return device.BaseTopic
	}
	return device.BaseTopic + "/" + p.TopicSuffix
}

// DeviceReading is one immutable row of the device value history. Exactly
// one of the typed value columns is set, chosen by the parameter's declared
// data type.
type DeviceReading struct {
	ReadingID    int64
	DeviceID     string
	ParameterID  string
	ValueText    *string
	ValueNumber  *float64
	ValueDate    *time.Time
	ValueBoolean *bool
	RecordedAt   time.Time
}

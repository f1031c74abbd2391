package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noeljp/GMAO-sub000/internal/models"
	"github.com/noeljp/GMAO-sub000/internal/repository"
	"github.com/noeljp/GMAO-sub000/internal/transformer"
)

// Store interfaces cut down to what message processing needs; implemented
// by the repository package and by fakes in tests.

type MappingStore interface {
	GetActiveSubscriptions(ctx context.Context, brokerID string) ([]*models.Subscription, error)
	GetMappings(ctx context.Context, subscriptionID string) ([]*models.FieldMapping, error)
	TouchMapping(ctx context.Context, mappingID, value string, at time.Time)
}

type FieldValueStore interface {
	UpsertDynamicValue(ctx context.Context, assetID, fieldDefinitionID string, fieldType models.FieldType, value interface{}, at time.Time) error
	UpdateFixedColumn(ctx context.Context, assetID, column string, value interface{}) (bool, error)
}

type DeviceStore interface {
	GetActiveDevices(ctx context.Context, brokerID string) ([]*models.IoTDevice, error)
	GetParameters(ctx context.Context, deviceID string) ([]*models.DeviceParameter, error)
	InsertReading(ctx context.Context, deviceID, parameterID string, dataType models.FieldType, value interface{}, at time.Time) (int64, error)
}

type MessageLogStore interface {
	Insert(ctx context.Context, entry *models.MessageLog) error
}

// AlertEvaluator is the threshold-evaluation boundary. Implementations
// never return errors into the hot path.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, assetID string, field models.FieldRef, value float64, deviceID *string) []*models.Alert
	RecordOutOfRange(ctx context.Context, assetID, deviceID, parameterName string, value float64) *models.Alert
}

// InboundMessage is one delivered MQTT message, decoupled from the paho
// message type so the processor is testable without a transport.
type InboundMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Processor runs the per-message pipeline: subscription matching, field
// extraction, transformation, field writes, threshold evaluation, the
// device pipeline, and the final message-log row. One message's total
// failure never escapes Process.
type Processor struct {
	mappings    MappingStore
	fieldValues FieldValueStore
	devices     DeviceStore
	messageLog  MessageLogStore
	evaluator   AlertEvaluator
	logger      *zap.Logger
}

// NewProcessor creates a message processor.
func NewProcessor(
	mappings MappingStore,
	fieldValues FieldValueStore,
	devices DeviceStore,
	messageLog MessageLogStore,
	evaluator AlertEvaluator,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		mappings:    mappings,
		fieldValues: fieldValues,
		devices:     devices,
		messageLog:  messageLog,
		evaluator:   evaluator,
		logger:      logger,
	}
}

// Process handles one inbound message end to end and always terminates in
// exactly one message-log row, whatever happened before.
func (p *Processor) Process(ctx context.Context, brokerID string, msg InboundMessage) {
	entry := &models.MessageLog{
		BrokerID:   brokerID,
		Topic:      msg.Topic,
		Payload:    string(msg.Payload),
		QoS:        int(msg.QoS),
		Retained:   msg.Retained,
		ReceivedAt: time.Now(),
	}

	var processingErr string

	// JSON parse failure is recorded, not fatal: the message still gets
	// logged and the device pipeline may not need a parsed document.
	var doc interface{}
	if err := json.Unmarshal(msg.Payload, &doc); err != nil {
		doc = nil
		processingErr = fmt.Sprintf("invalid JSON payload: %v", err)
	} else {
		entry.PayloadJSON = json.RawMessage(msg.Payload)
	}

	updated := 0

	// 1. Find the owning subscription; first match wins. No match is a
	// normal outcome, the message is logged and dropped.
	sub, err := p.matchSubscription(ctx, brokerID, msg.Topic)
	if err != nil {
		processingErr = appendErr(processingErr, err.Error())
	}
	if sub != nil {
		entry.SubscriptionID = &sub.SubscriptionID
		if doc != nil {
			n, mapErr := p.applyMappings(ctx, sub, doc)
			updated += n
			if mapErr != "" {
				processingErr = appendErr(processingErr, mapErr)
			}
		}
	}

	// 2. Device pipeline, independent of the subscription mechanism.
	if doc != nil {
		n, devErr := p.applyDeviceParameters(ctx, brokerID, msg.Topic, doc)
		updated += n
		if devErr != "" {
			processingErr = appendErr(processingErr, devErr)
		}
	}

	entry.FieldsUpdated = updated
	entry.Processed = updated > 0
	if processingErr != "" {
		entry.Error = &processingErr
	}

	// 3. Exactly one log row per message. A logging failure is itself
	// swallowed after a process-log entry.
	if err := p.messageLog.Insert(ctx, entry); err != nil {
		p.logger.Error("Failed to write message log",
			zap.String("broker_id", brokerID),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
	}
}

func (p *Processor) matchSubscription(ctx context.Context, brokerID, topic string) (*models.Subscription, error) {
	subs, err := p.mappings.GetActiveSubscriptions(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %v", err)
	}
	for _, sub := range subs {
		if TopicMatches(sub.TopicFilter, topic) {
			return sub, nil
		}
	}
	return nil, nil
}

// applyMappings runs every field mapping of the matched subscription.
// One bad mapping never prevents the others from being applied.
func (p *Processor) applyMappings(ctx context.Context, sub *models.Subscription, doc interface{}) (int, string) {
	mappings, err := p.mappings.GetMappings(ctx, sub.SubscriptionID)
	if err != nil {
		return 0, fmt.Sprintf("failed to load mappings: %v", err)
	}

	updated := 0
	var firstErr string
	for _, mapping := range mappings {
		raw, found, err := transformer.ExtractPath(mapping.JSONPath, doc)
		if err != nil {
			p.logger.Warn("Invalid JSON path in mapping",
				zap.String("mapping_id", mapping.MappingID),
				zap.String("json_path", mapping.JSONPath),
				zap.Error(err),
			)
			if firstErr == "" {
				firstErr = fmt.Sprintf("mapping %s: %v", mapping.MappingID, err)
			}
			continue
		}
		if !found {
			// Field absent from this payload; skip without error.
			continue
		}

		value := transformer.Apply(raw, mapping.Transformation, mapping.Factor)
		if p.writeField(ctx, mapping, value) {
			updated++
			p.mappings.TouchMapping(ctx, mapping.MappingID, fmt.Sprintf("%v", value), time.Now())
		}
	}

	return updated, firstErr
}

// writeField persists one extracted value to the mapping's destination and
// triggers threshold evaluation for numeric writes. Returns false on any
// persistence problem so the caller skips the updated counter and moves on.
func (p *Processor) writeField(ctx context.Context, mapping *models.FieldMapping, value interface{}) bool {
	now := time.Now()

	switch {
	case mapping.FieldDefinitionID != nil:
		stored := coerceForType(value, mapping.FieldType)
		if err := p.fieldValues.UpsertDynamicValue(ctx, mapping.AssetID, *mapping.FieldDefinitionID, mapping.FieldType, stored, now); err != nil {
			p.logger.Error("Failed to write dynamic field value",
				zap.String("mapping_id", mapping.MappingID),
				zap.String("asset_id", mapping.AssetID),
				zap.Error(err),
			)
			return false
		}
		if mapping.FieldType == models.FieldTypeNumber {
			if n, ok := transformer.ToFloat(value); ok {
				p.evaluator.Evaluate(ctx, mapping.AssetID, models.FieldRef{FieldDefinitionID: mapping.FieldDefinitionID}, n, nil)
			}
		}
		return true

	case mapping.FixedColumn != nil:
		n, ok := transformer.ToFloat(value)
		if !ok {
			p.logger.Warn("Non-numeric value for fixed asset column",
				zap.String("mapping_id", mapping.MappingID),
				zap.String("column", *mapping.FixedColumn),
			)
			return false
		}
		written, err := p.fieldValues.UpdateFixedColumn(ctx, mapping.AssetID, *mapping.FixedColumn, n)
		if err != nil {
			p.logger.Error("Failed to write fixed asset column",
				zap.String("mapping_id", mapping.MappingID),
				zap.String("column", *mapping.FixedColumn),
				zap.Error(err),
			)
			return false
		}
		if !written {
			return false
		}
		p.evaluator.Evaluate(ctx, mapping.AssetID, models.FieldRef{FixedColumn: mapping.FixedColumn}, n, nil)
		return true

	default:
		p.logger.Warn("Mapping has no destination",
			zap.String("mapping_id", mapping.MappingID),
		)
		return false
	}
}

// applyDeviceParameters runs the IoT-device pipeline: per-parameter topic
// matching, extraction, transformation, the append-only reading, the
// optional write-back into an asset field, and the min/max range check.
func (p *Processor) applyDeviceParameters(ctx context.Context, brokerID, topic string, doc interface{}) (int, string) {
	devices, err := p.devices.GetActiveDevices(ctx, brokerID)
	if err != nil {
		return 0, fmt.Sprintf("failed to load devices: %v", err)
	}

	updated := 0
	var firstErr string
	for _, device := range devices {
		params, err := p.devices.GetParameters(ctx, device.DeviceID)
		if err != nil {
			p.logger.Error("Failed to load device parameters",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			if firstErr == "" {
				firstErr = fmt.Sprintf("device %s: %v", device.DeviceID, err)
			}
			continue
		}

		for _, param := range params {
			if !TopicMatches(param.TopicFor(device), topic) {
				continue
			}

			raw, found, err := transformer.ExtractPath(param.JSONPath, doc)
			if err != nil {
				p.logger.Warn("Invalid JSON path in device parameter",
					zap.String("parameter_id", param.ParameterID),
					zap.String("json_path", param.JSONPath),
					zap.Error(err),
				)
				continue
			}
			if !found {
				continue
			}

			value := transformer.Apply(raw, param.Transformation, param.Factor)
			stored := coerceForType(value, param.DataType)
			if _, err := p.devices.InsertReading(ctx, device.DeviceID, param.ParameterID, param.DataType, stored, time.Now()); err != nil {
				p.logger.Error("Failed to record device reading",
					zap.String("device_id", device.DeviceID),
					zap.String("parameter_id", param.ParameterID),
					zap.Error(err),
				)
				continue
			}

			if device.AssetID != nil {
				if p.writeParameterField(ctx, device, param, value) {
					updated++
				}
				p.checkParameterRange(ctx, device, param, value)
			}
		}
	}

	return updated, firstErr
}

func (p *Processor) writeParameterField(ctx context.Context, device *models.IoTDevice, param *models.DeviceParameter, value interface{}) bool {
	if param.FieldDefinitionID == nil && param.FixedColumn == nil {
		return false
	}

	mapping := &models.FieldMapping{
		MappingID:         param.ParameterID,
		AssetID:           *device.AssetID,
		FieldDefinitionID: param.FieldDefinitionID,
		FixedColumn:       param.FixedColumn,
		FieldType:         param.DataType,
	}
	return p.writeField(ctx, mapping, value)
}

func (p *Processor) checkParameterRange(ctx context.Context, device *models.IoTDevice, param *models.DeviceParameter, value interface{}) {
	if param.MinValue == nil && param.MaxValue == nil {
		return
	}
	n, ok := transformer.ToFloat(value)
	if !ok {
		return
	}

	outOfRange := (param.MinValue != nil && n < *param.MinValue) ||
		(param.MaxValue != nil && n > *param.MaxValue)
	if outOfRange {
		p.evaluator.RecordOutOfRange(ctx, *device.AssetID, device.DeviceID, param.Name, n)
	}
}

// coerceForType converts an extracted value into what the typed column
// expects. Unparseable values fall back to their text form; the
// allow-list in the repository keeps the column choice safe.
func coerceForType(value interface{}, fieldType models.FieldType) interface{} {
	switch fieldType {
	case models.FieldTypeNumber:
		if n, ok := transformer.ToFloat(value); ok {
			return n
		}
	case models.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "1"
		case float64:
			return v != 0
		}
	case models.FieldTypeDate:
		if s, ok := value.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return fmt.Sprintf("%v", value)
}

func appendErr(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}

// compile-time wiring checks against the concrete repositories
var (
	_ MappingStore    = (*repository.SubscriptionsRepository)(nil)
	_ FieldValueStore = (*repository.FieldValuesRepository)(nil)
	_ DeviceStore     = (*repository.DevicesRepository)(nil)
	_ MessageLogStore = (*repository.MessageLogRepository)(nil)
)

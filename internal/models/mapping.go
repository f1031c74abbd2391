package models

import "time"

// FieldType is the declared type of a dynamic asset field. Unknown types
// fall back to FieldTypeText at the write boundary.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeSelect  FieldType = "select"
)

// Transformation kinds applied to extracted values before writing.
const (
	TransformNone     = "none"
	TransformMultiply = "multiply"
	TransformDivide   = "divide"
	TransformRound    = "round"
	TransformFloor    = "floor"
	TransformCeil     = "ceil"
)

// FieldRef identifies the destination of a written value: exactly one of
// the two members is set.
type FieldRef struct {
	FieldDefinitionID *string
	FixedColumn       *string
}

// FieldMapping links a JSON path in a subscription's payloads to a
// destination on an asset: either a dynamic field definition or one of the
// allow-listed fixed asset columns, never both.
type FieldMapping struct {
	MappingID      string
	SubscriptionID string
	AssetID        string
	JSONPath       string

	// Destination: exactly one of the two is set.
	FieldDefinitionID *string
	FixedColumn       *string

	// Declared type of the dynamic field, resolved by join. Empty for
	// fixed-column destinations (those are always numeric).
	FieldType FieldType

	Transformation string
	Factor         *float64

	// Informational cache of the most recent write, not authoritative.
	LastValue  *string
	LastUpdate *time.Time
}

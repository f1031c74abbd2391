package transformer

import (
	"math"
	"strconv"

	"github.com/noeljp/GMAO-sub000/internal/models"
)

// Apply runs a numeric transformation on an extracted raw value.
//
// A missing or "none" kind returns the input unchanged, whatever its type.
// For the numeric kinds the input is coerced to float64 first; when that
// fails the original value passes through untouched so string payload
// fields survive a misconfigured transformation. A nil factor defaults to 1
// for multiply/divide. Dividing by a zero factor follows IEEE-754 and
// yields an infinity, which the threshold evaluator ignores.
func Apply(value interface{}, kind string, factor *float64) interface{} {
	if kind == "" || kind == models.TransformNone {
		return value
	}

	n, ok := ToFloat(value)
	if !ok {
		return value
	}

	f := 1.0
	if factor != nil {
		f = *factor
	}

	switch kind {
	case models.TransformMultiply:
		return n * f
	case models.TransformDivide:
		return n / f
	case models.TransformRound:
		return math.Round(n)
	case models.TransformFloor:
		return math.Floor(n)
	case models.TransformCeil:
		return math.Ceil(n)
	default:
		return value
	}
}

// ToFloat coerces a JSON scalar to float64. Strings are parsed, booleans
// and composite values are not numeric.
func ToFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

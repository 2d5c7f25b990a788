package catalog

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
)

// ConfigType is the primitive type of a plugin configuration item.
type ConfigType string

const (
	ConfigTypeString  ConfigType = "string"
	ConfigTypeBool    ConfigType = "bool"
	ConfigTypeInteger ConfigType = "integer"
	ConfigTypeFloat   ConfigType = "float"
)

// Valid reports whether the config type is known.
func (t ConfigType) Valid() bool {
	switch t {
	case ConfigTypeString, ConfigTypeBool, ConfigTypeInteger, ConfigTypeFloat:
		return true
	default:
		return false
	}
}

// Zero returns the default value used when a component is created.
func (t ConfigType) Zero() any {
	switch t {
	case ConfigTypeString:
		return ""
	case ConfigTypeBool:
		return false
	case ConfigTypeInteger:
		return 0
	case ConfigTypeFloat:
		return 0.0
	default:
		return nil
	}
}

// Validate checks that value is acceptable for the config type.
func (t ConfigType) Validate(value any) error {
	switch t {
	case ConfigTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string value, got %T", value)
		}
		return nil
	case ConfigTypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool value, got %T", value)
		}
		return nil
	case ConfigTypeInteger:
		number, ok := toDecimal(value)
		if !ok {
			return fmt.Errorf("expected integer value, got %T", value)
		}
		if !number.IsInteger() {
			return fmt.Errorf("expected integer value, got %s", number.String())
		}
		return nil
	case ConfigTypeFloat:
		if _, ok := toDecimal(value); !ok {
			return fmt.Errorf("expected float value, got %T", value)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config type %q", t)
	}
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(v)), true
	case uint16:
		return decimal.NewFromInt(int64(v)), true
	case uint32:
		return decimal.NewFromInt(int64(v)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), true
	case float32:
		return toDecimal(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Decimal{}, false
	}
}

// EqualValues compares two configuration values. Numbers compare by value
// regardless of their Go representation, so 10 and 10.0 are equal.
func EqualValues(a, b any) bool {
	if da, ok := toDecimal(a); ok {
		db, ok := toDecimal(b)
		return ok && da.Equal(db)
	}
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && EqualConfig(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !EqualValues(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// EqualConfig compares two configuration maps with EqualValues semantics.
func EqualConfig(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for key, av := range a {
		bv, ok := b[key]
		if !ok || !EqualValues(av, bv) {
			return false
		}
	}
	return true
}

// CloneConfig returns a shallow copy of a configuration map.
func CloneConfig(config map[string]any) map[string]any {
	clone := make(map[string]any, len(config))
	for key, value := range config {
		clone[key] = value
	}
	return clone
}

package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueKind identifies the family of a member value type.
type ValueKind string

const (
	// ValueKindBool represents boolean values.
	ValueKindBool ValueKind = "bool"
	// ValueKindInt represents signed integers.
	ValueKindInt ValueKind = "int"
	// ValueKindFloat represents floating point numbers.
	ValueKindFloat ValueKind = "float"
	// ValueKindString represents plain UTF-8 strings.
	ValueKindString ValueKind = "string"
	// ValueKindRange represents integers bounded by an inclusive range.
	ValueKindRange ValueKind = "range"
	// ValueKindEnum represents one value out of a fixed set of strings.
	ValueKindEnum ValueKind = "enum"
	// ValueKindComplex represents structured values that are not type-checked.
	ValueKindComplex ValueKind = "complex"
)

// ValueType is the type carried by a plugin member.
//
// The textual form is the one used in catalogs and project records:
// "bool", "int", "float", "string", "complex", "range[min;max]" and
// "enum{a,b,c}".
type ValueType struct {
	Kind   ValueKind
	Min    int64
	Max    int64
	Values []string
}

// ParseValueType decodes the textual form of a value type.
func ParseValueType(raw string) (ValueType, error) {
	text := strings.TrimSpace(raw)
	switch ValueKind(text) {
	case ValueKindBool, ValueKindInt, ValueKindFloat, ValueKindString, ValueKindComplex:
		return ValueType{Kind: ValueKind(text)}, nil
	}

	switch {
	case strings.HasPrefix(text, "range[") && strings.HasSuffix(text, "]"):
		body := text[len("range[") : len(text)-1]
		parts := strings.Split(body, ";")
		if len(parts) != 2 {
			return ValueType{}, fmt.Errorf("invalid range type %q", raw)
		}
		min, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return ValueType{}, fmt.Errorf("invalid range type %q: %w", raw, err)
		}
		max, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return ValueType{}, fmt.Errorf("invalid range type %q: %w", raw, err)
		}
		if min >= max {
			return ValueType{}, fmt.Errorf("invalid range type %q: min must be lower than max", raw)
		}
		return ValueType{Kind: ValueKindRange, Min: min, Max: max}, nil
	case strings.HasPrefix(text, "enum{") && strings.HasSuffix(text, "}"):
		body := text[len("enum{") : len(text)-1]
		seen := make(map[string]struct{})
		values := make([]string, 0)
		for _, part := range strings.Split(body, ",") {
			value := strings.TrimSpace(part)
			if value == "" {
				return ValueType{}, fmt.Errorf("invalid enum type %q: empty value", raw)
			}
			if _, ok := seen[value]; ok {
				return ValueType{}, fmt.Errorf("invalid enum type %q: duplicate value %q", raw, value)
			}
			seen[value] = struct{}{}
			values = append(values, value)
		}
		return ValueType{Kind: ValueKindEnum, Values: values}, nil
	}
	return ValueType{}, fmt.Errorf("unknown value type %q", raw)
}

// MustParseValueType is like ParseValueType but panics on error.
func MustParseValueType(raw string) ValueType {
	vt, err := ParseValueType(raw)
	if err != nil {
		panic(err)
	}
	return vt
}

// String renders the textual form of the value type.
func (t ValueType) String() string {
	switch t.Kind {
	case ValueKindRange:
		return fmt.Sprintf("range[%d;%d]", t.Min, t.Max)
	case ValueKindEnum:
		return "enum{" + strings.Join(t.Values, ",") + "}"
	default:
		return string(t.Kind)
	}
}

// Equal reports whether both value types describe the same type.
func (t ValueType) Equal(other ValueType) bool {
	return t.String() == other.String()
}

// IsZero reports whether the value type has not been set.
func (t ValueType) IsZero() bool {
	return t.Kind == ""
}

// MarshalText implements encoding.TextMarshaler.
func (t ValueType) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, errors.New("value type is not set")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ValueType) UnmarshalText(text []byte) error {
	parsed, err := ParseValueType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalYAML parses value types declared as YAML scalars.
func (t *ValueType) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("value type node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode value type: %w", err)
	}
	return t.UnmarshalText([]byte(raw))
}

// MarshalYAML renders the value type as a string.
func (t ValueType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// MemberKind distinguishes published states from callable actions.
type MemberKind string

const (
	// MemberKindState is a value published by a component.
	MemberKindState MemberKind = "state"
	// MemberKindAction is an input a component reacts to.
	MemberKindAction MemberKind = "action"
)

// Valid reports whether the member kind is known.
func (k MemberKind) Valid() bool {
	return k == MemberKindState || k == MemberKindAction
}

// Member describes a state or action exposed by a plugin.
type Member struct {
	Kind        MemberKind `yaml:"kind"`
	ValueType   ValueType  `yaml:"value_type"`
	Description string     `yaml:"description,omitempty"`
}

// Equal compares kind and value type. Descriptions are informational.
func (m Member) Equal(other Member) bool {
	return m.Kind == other.Kind && m.ValueType.Equal(other.ValueType)
}

// ConfigItem describes one configuration key accepted by a plugin.
type ConfigItem struct {
	ValueType   ConfigType `yaml:"value_type"`
	Description string     `yaml:"description,omitempty"`
}

// Usage categorises plugins.
type Usage string

const (
	UsageSensor   Usage = "sensor"
	UsageActuator Usage = "actuator"
	UsageLogic    Usage = "logic"
	UsageUI       Usage = "ui"
)

// PluginData is a catalog entry describing a plugin of an instance.
type PluginData struct {
	InstanceName string                `yaml:"instance_name"`
	Module       string                `yaml:"module"`
	Name         string                `yaml:"name"`
	Version      string                `yaml:"version"`
	Usage        Usage                 `yaml:"usage,omitempty"`
	Description  string                `yaml:"description,omitempty"`
	Members      map[string]Member     `yaml:"members,omitempty"`
	Config       map[string]ConfigItem `yaml:"config,omitempty"`
	Hidden       bool                  `yaml:"hidden,omitempty"`
}

// PluginID builds the identifier of a plugin.
func PluginID(instanceName, module, name string) string {
	return instanceName + ":" + module + "." + name
}

// SplitPluginID decomposes a plugin identifier.
func SplitPluginID(id string) (instanceName, module, name string, err error) {
	instanceName, rest, ok := strings.Cut(id, ":")
	if !ok || instanceName == "" {
		return "", "", "", fmt.Errorf("invalid plugin id %q", id)
	}
	module, name, ok = strings.Cut(rest, ".")
	if !ok || module == "" || name == "" {
		return "", "", "", fmt.Errorf("invalid plugin id %q", id)
	}
	return instanceName, module, name, nil
}

// ID returns the plugin identifier.
func (p PluginData) ID() string {
	return PluginID(p.InstanceName, p.Module, p.Name)
}

// SameVersion reports whether two entries denote the same plugin revision.
func (p PluginData) SameVersion(other PluginData) bool {
	return p.InstanceName == other.InstanceName &&
		p.Module == other.Module &&
		p.Name == other.Name &&
		p.Version == other.Version
}

// Validate checks the entry is well formed.
func (p PluginData) Validate() error {
	if p.InstanceName == "" || p.Module == "" || p.Name == "" {
		return fmt.Errorf("plugin %q: instance, module and name are required", p.ID())
	}
	for name, member := range p.Members {
		if !member.Kind.Valid() {
			return fmt.Errorf("plugin %s member %s: invalid kind %q", p.ID(), name, member.Kind)
		}
		if member.ValueType.IsZero() {
			return fmt.Errorf("plugin %s member %s: missing value type", p.ID(), name)
		}
	}
	for name, item := range p.Config {
		if !item.ValueType.Valid() {
			return fmt.Errorf("plugin %s config %s: invalid type %q", p.ID(), name, item.ValueType)
		}
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (p PluginData) Clone() PluginData {
	clone := p
	if p.Members != nil {
		clone.Members = make(map[string]Member, len(p.Members))
		for name, member := range p.Members {
			if member.ValueType.Values != nil {
				member.ValueType.Values = append([]string(nil), member.ValueType.Values...)
			}
			clone.Members[name] = member
		}
	}
	if p.Config != nil {
		clone.Config = make(map[string]ConfigItem, len(p.Config))
		for name, item := range p.Config {
			clone.Config[name] = item
		}
	}
	return clone
}

// MemberNames returns the member names in lexical order.
func (p PluginData) MemberNames() []string {
	return SortedKeys(p.Members)
}

// ConfigNames returns the config names in lexical order.
func (p PluginData) ConfigNames() []string {
	return SortedKeys(p.Config)
}

// ComponentData is a catalog entry describing a component living on an instance.
type ComponentData struct {
	ID       string         `yaml:"id"`
	Plugin   string         `yaml:"plugin"`
	External bool           `yaml:"external,omitempty"`
	Config   map[string]any `yaml:"config,omitempty"`
}

// InstanceName returns the instance of the component's plugin.
func (c ComponentData) InstanceName() string {
	instance, _, _ := strings.Cut(c.Plugin, ":")
	return instance
}

// SortedKeys returns the keys of a string-keyed map in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

package model

import (
	"fmt"
	"strings"

	"github.com/timzifer/coregraph/catalog"
)

// Position is the canvas location of a component.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Component is a node of a view: an instantiation of a plugin or a template.
type Component struct {
	id         string
	definition Definition
	config     map[string]any
	position   Position
	external   bool
}

// ID returns the component identifier, unique within its view.
func (c *Component) ID() string { return c.id }

// Definition returns the plugin or template backing the component.
func (c *Component) Definition() Definition { return c.definition }

// Config returns a copy of the component configuration.
func (c *Component) Config() map[string]any { return catalog.CloneConfig(c.config) }

// ConfigValue returns a single configuration value.
func (c *Component) ConfigValue(configID string) (any, bool) {
	value, ok := c.config[configID]
	return value, ok
}

// Position returns the canvas location.
func (c *Component) Position() Position { return c.position }

// External reports whether the component physically lives elsewhere and gets
// no configuration deployed.
func (c *Component) External() bool { return c.external }

// Binding wires the state of one component to the action of another.
type Binding struct {
	SourceComponent string `yaml:"source_component"`
	SourceState     string `yaml:"source_state"`
	TargetComponent string `yaml:"target_component"`
	TargetAction    string `yaml:"target_action"`
}

// BindingID builds the identifier of a binding.
func BindingID(sourceComponent, sourceState, targetComponent, targetAction string) string {
	return sourceComponent + ":" + sourceState + ":" + targetComponent + ":" + targetAction
}

// ID returns the binding identifier.
func (b Binding) ID() string {
	return BindingID(b.SourceComponent, b.SourceState, b.TargetComponent, b.TargetAction)
}

// Touches reports whether one of the binding endpoints is the component.
func (b Binding) Touches(componentID string) bool {
	return b.SourceComponent == componentID || b.TargetComponent == componentID
}

// UsesMember reports whether the binding uses the member of the component.
func (b Binding) UsesMember(componentID, member string) bool {
	return (b.SourceComponent == componentID && b.SourceState == member) ||
		(b.TargetComponent == componentID && b.TargetAction == member)
}

func (b Binding) renamed(oldID, newID string) Binding {
	if b.SourceComponent == oldID {
		b.SourceComponent = newID
	}
	if b.TargetComponent == oldID {
		b.TargetComponent = newID
	}
	return b
}

func validateComponentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("component id must not be empty: %w", ErrInvalidID)
	}
	if strings.Contains(id, ":") {
		return fmt.Errorf("component id %q must not contain ':': %w", id, ErrInvalidID)
	}
	return nil
}

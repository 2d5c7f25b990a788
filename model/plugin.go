package model

import (
	"fmt"
	"sort"

	"github.com/timzifer/coregraph/catalog"
)

// Instance groups the plugins published by one deployment target.
type Instance struct {
	name    string
	plugins map[string]struct{}
}

// Name returns the instance name.
func (i *Instance) Name() string { return i.name }

// PluginIDs returns the identifiers of the instance plugins.
func (i *Instance) PluginIDs() []string {
	ids := make([]string, 0, len(i.plugins))
	for id := range i.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Plugin is the project copy of a catalog plugin entry.
type Plugin struct {
	data  catalog.PluginData
	usage usageSet
}

func newPlugin(data catalog.PluginData) *Plugin {
	return &Plugin{data: data.Clone(), usage: make(usageSet)}
}

// ID returns the plugin identifier.
func (p *Plugin) ID() string { return p.data.ID() }

// InstanceName returns the instance publishing the plugin.
func (p *Plugin) InstanceName() string { return p.data.InstanceName }

// Version returns the plugin version.
func (p *Plugin) Version() string { return p.data.Version }

// Hidden reports whether the plugin is hidden from pickers.
func (p *Plugin) Hidden() bool { return p.data.Hidden }

// Data returns a copy of the catalog entry.
func (p *Plugin) Data() catalog.PluginData { return p.data.Clone() }

// Definition implements ComponentDefinition.
func (p *Plugin) Definition() Definition { return PluginDefinition(p.ID()) }

// MemberValueType implements ComponentDefinition.
func (p *Plugin) MemberValueType(name string, kind catalog.MemberKind) (catalog.ValueType, error) {
	member, ok := p.data.Members[name]
	if !ok {
		return catalog.ValueType{}, fmt.Errorf("plugin %s member %q: %w", p.ID(), name, ErrNotFound)
	}
	if member.Kind != kind {
		return catalog.ValueType{}, fmt.Errorf("plugin %s member %q is a %s, expected %s: %w", p.ID(), name, member.Kind, kind, ErrTypeMismatch)
	}
	return member.ValueType, nil
}

// EnsureMember implements ComponentDefinition.
func (p *Plugin) EnsureMember(name string) error {
	if _, ok := p.data.Members[name]; !ok {
		return fmt.Errorf("plugin %s member %q: %w", p.ID(), name, ErrNotFound)
	}
	return nil
}

// ValidateConfigValue implements ComponentDefinition.
func (p *Plugin) ValidateConfigValue(configID string, value any) error {
	item, ok := p.data.Config[configID]
	if !ok {
		return fmt.Errorf("plugin %s config %q: %w", p.ID(), configID, ErrNotFound)
	}
	if err := item.ValueType.Validate(value); err != nil {
		return fmt.Errorf("plugin %s config %q: %v: %w", p.ID(), configID, err, ErrInvalidConfig)
	}
	return nil
}

// ConfigTemplate implements ComponentDefinition.
func (p *Plugin) ConfigTemplate() map[string]any {
	config := make(map[string]any, len(p.data.Config))
	for name, item := range p.data.Config {
		config[name] = item.ValueType.Zero()
	}
	return config
}

// EnsureConfig implements ComponentDefinition.
func (p *Plugin) EnsureConfig(configID string) error {
	if _, ok := p.data.Config[configID]; !ok {
		return fmt.Errorf("plugin %s config %q: %w", p.ID(), configID, ErrNotFound)
	}
	return nil
}

// Used implements ComponentDefinition.
func (p *Plugin) Used() bool { return len(p.usage) > 0 }

// Usage implements ComponentDefinition.
func (p *Plugin) Usage() []ComponentRef { return p.usage.refs() }

func (p *Plugin) registerUsage(ref ComponentRef)   { p.usage[ref] = struct{}{} }
func (p *Plugin) unregisterUsage(ref ComponentRef) { delete(p.usage, ref) }

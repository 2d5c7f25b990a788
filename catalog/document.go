package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Document is a catalog snapshot: the plugins and components published by one
// or more instances, as loaded from a live registry dump or a foreign project.
type Document struct {
	Plugins    []PluginData    `yaml:"plugins,omitempty"`
	Components []ComponentData `yaml:"components,omitempty"`
}

const documentSchema = `
#ValueType: =~ #"^(bool|int|float|string|complex|range\[-?[0-9]+;-?[0-9]+\]|enum\{[^{}]+\})$"#

#Member: {
    kind: "state" | "action"
    value_type: #ValueType
    description?: string
}

#ConfigItem: {
    value_type: "string" | "bool" | "integer" | "float"
    description?: string
}

#Plugin: {
    instance_name: string & != ""
    module: string & != ""
    name: string & != ""
    version: string
    usage?: "sensor" | "actuator" | "logic" | "ui"
    description?: string
    hidden?: bool
    members?: {[string]: #Member}
    config?: {[string]: #ConfigItem}
}

#Component: {
    id: string & != ""
    plugin: string & != ""
    external?: bool
    config?: {[string]: _}
}

#Document: {
    plugins?: [...#Plugin]
    components?: [...#Component]
}
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func documentDefinition() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		compiled := ctx.CompileString(documentSchema)
		if err := compiled.Err(); err != nil {
			schemaErr = fmt.Errorf("compile catalog schema: %w", err)
			return
		}
		schemaValue = compiled.LookupPath(cue.ParsePath("#Document"))
		if err := schemaValue.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup catalog schema: %w", err)
		}
	})
	return schemaValue, schemaErr
}

// ValidateDocument checks raw YAML (or JSON) catalog data against the catalog schema.
func ValidateDocument(raw []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal catalog: %w", err)
	}
	if doc == nil {
		return nil
	}
	def, err := documentDefinition()
	if err != nil {
		return err
	}
	value := def.Context().Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}
	return nil
}

// DecodeDocument validates and decodes catalog data.
func DecodeDocument(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Document{}, nil
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadDocument reads a catalog file from disk.
func LoadDocument(path string) (*Document, error) {
	if path == "" {
		return nil, errors.New("catalog path must not be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks identifiers are unique and entries are well formed.
func (d *Document) Validate() error {
	if d == nil {
		return nil
	}
	plugins := make(map[string]struct{}, len(d.Plugins))
	for _, plugin := range d.Plugins {
		if err := plugin.Validate(); err != nil {
			return err
		}
		if _, ok := plugins[plugin.ID()]; ok {
			return fmt.Errorf("duplicate plugin %q", plugin.ID())
		}
		plugins[plugin.ID()] = struct{}{}
	}
	components := make(map[string]struct{}, len(d.Components))
	for _, component := range d.Components {
		if component.ID == "" {
			return errors.New("component id must not be empty")
		}
		if _, _, _, err := SplitPluginID(component.Plugin); err != nil {
			return fmt.Errorf("component %s: %w", component.ID, err)
		}
		if _, ok := components[component.ID]; ok {
			return fmt.Errorf("duplicate component %q", component.ID)
		}
		components[component.ID] = struct{}{}
	}
	return nil
}

// Instances returns the instance names described by the document.
func (d *Document) Instances() map[string]struct{} {
	instances := make(map[string]struct{})
	if d == nil {
		return instances
	}
	for _, plugin := range d.Plugins {
		instances[plugin.InstanceName] = struct{}{}
	}
	for _, component := range d.Components {
		instances[component.InstanceName()] = struct{}{}
	}
	return instances
}

// Registry gives read access to the live catalog of running instances.
//
// Implementations must be safe for concurrent use.
type Registry interface {
	Plugin(id string) (PluginData, bool)
	Components() []ComponentData
}

// MemoryRegistry is a Registry backed by a catalog document.
type MemoryRegistry struct {
	mu         sync.RWMutex
	plugins    map[string]PluginData
	components []ComponentData
}

// NewMemoryRegistry builds a registry from a document. A nil document yields an empty registry.
func NewMemoryRegistry(doc *Document) *MemoryRegistry {
	registry := &MemoryRegistry{}
	registry.Replace(doc)
	return registry
}

// Replace swaps the registry content.
func (r *MemoryRegistry) Replace(doc *Document) {
	plugins := make(map[string]PluginData)
	var components []ComponentData
	if doc != nil {
		for _, plugin := range doc.Plugins {
			plugins[plugin.ID()] = plugin.Clone()
		}
		components = append(components, doc.Components...)
	}
	r.mu.Lock()
	r.plugins = plugins
	r.components = components
	r.mu.Unlock()
}

// Plugin returns the live plugin entry.
func (r *MemoryRegistry) Plugin(id string) (PluginData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugin, ok := r.plugins[id]
	return plugin, ok
}

// Components returns the live components.
func (r *MemoryRegistry) Components() []ComponentData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ComponentData(nil), r.components...)
}

// Package importer merges an external catalog into a project. PrepareChanges
// diffs the catalog against the project and computes the impacts every change
// drags along; ApplyUpdates replays a selection of those changes through a
// narrow mutation API in dependency order.
package importer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/model"
)

// ErrProtocol reports a selection the prepared update set cannot satisfy.
var ErrProtocol = errors.New("import protocol error")

// ObjectType is the kind of catalog object a change is about.
type ObjectType string

const (
	ObjectPlugin    ObjectType = "plugin"
	ObjectComponent ObjectType = "component"
)

// Operation tells what happens to an object or one of its fields.
type Operation string

const (
	OperationAdd    Operation = "add"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// MemberChange is a member difference between two plugin revisions.
type MemberChange struct {
	Name      string          `yaml:"name"`
	Operation Operation       `yaml:"operation"`
	Previous  *catalog.Member `yaml:"previous,omitempty"`
	Next      *catalog.Member `yaml:"next,omitempty"`
}

// ConfigChange is a config difference: config item types for plugins,
// config values for components.
type ConfigChange struct {
	Name      string    `yaml:"name"`
	Operation Operation `yaml:"operation"`
	Previous  any       `yaml:"previous,omitempty"`
	Next      any       `yaml:"next,omitempty"`
}

// BindingRef locates a binding inside a project.
type BindingRef struct {
	Template string `yaml:"template,omitempty"`
	ID       string `yaml:"id"`
}

// ExportRef locates a template export.
type ExportRef struct {
	Template string           `yaml:"template"`
	Kind     model.ExportKind `yaml:"kind"`
	ID       string           `yaml:"id"`
	Reason   string           `yaml:"reason"`
}

// ConfigRef is a config key of a component that gets reset or cleared.
type ConfigRef struct {
	Component model.ComponentRef `yaml:"component"`
	Config    string             `yaml:"config"`
	Reset     bool               `yaml:"reset"`
}

// Impacts lists the side-effect mutations accompanying a change.
type Impacts struct {
	Components []model.ComponentRef `yaml:"components,omitempty"`
	Bindings   []BindingRef         `yaml:"bindings,omitempty"`
	Exports    []ExportRef          `yaml:"exports,omitempty"`
	Configs    []ConfigRef          `yaml:"configs,omitempty"`
}

// Count returns the number of impacts.
func (i Impacts) Count() int {
	return len(i.Components) + len(i.Bindings) + len(i.Exports) + len(i.Configs)
}

// ObjectChange is one difference between the catalog and the project.
type ObjectChange struct {
	Key          string                 `yaml:"key"`
	Type         ObjectType             `yaml:"type"`
	Operation    Operation              `yaml:"operation"`
	ID           string                 `yaml:"id"`
	InstanceName string                 `yaml:"instance"`
	Plugin       *catalog.PluginData    `yaml:"plugin,omitempty"`
	Component    *catalog.ComponentData `yaml:"component,omitempty"`
	Members      []MemberChange         `yaml:"members,omitempty"`
	Config       []ConfigChange         `yaml:"config,omitempty"`
	Dependencies []string               `yaml:"dependencies,omitempty"`
	Impacts      Impacts                `yaml:"impacts"`

	impacts []Impact
}

// PluginKey is the change key of a plugin.
func PluginKey(pluginID string) string { return string(ObjectPlugin) + ":" + pluginID }

// ComponentKey is the change key of a project component.
func ComponentKey(componentID string) string { return string(ObjectComponent) + ":" + componentID }

// Result is the outcome of PrepareChanges: the changes to show and the
// update set to hand back to ApplyUpdates.
type Result struct {
	Changes    []ObjectChange
	ServerData *ServerData
}

// PrepareChanges diffs the catalog document against the project. An import
// matching the project yields no changes.
func PrepareChanges(doc *catalog.Document, project *model.Project) (*Result, error) {
	if doc == nil {
		doc = &catalog.Document{}
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("import document: %w", err)
	}

	plugins, err := diffPlugins(doc, project)
	if err != nil {
		return nil, err
	}
	pluginChanges := make(map[string]*ObjectChange, len(plugins))
	for i := range plugins {
		pluginChanges[plugins[i].ID] = &plugins[i]
	}
	components, err := diffComponents(doc, project, pluginChanges)
	if err != nil {
		return nil, err
	}

	changes := append(plugins, components...)
	for i := range changes {
		if err := computeImpacts(project, &changes[i]); err != nil {
			return nil, err
		}
	}

	updates, err := buildUpdates(changes)
	if err != nil {
		return nil, err
	}
	return &Result{
		Changes:    changes,
		ServerData: &ServerData{Changes: changes, Updates: updates},
	}, nil
}

func diffPlugins(doc *catalog.Document, project *model.Project) ([]ObjectChange, error) {
	imported := make(map[string]catalog.PluginData, len(doc.Plugins))
	for _, plugin := range doc.Plugins {
		imported[plugin.ID()] = plugin
	}

	changes := make([]ObjectChange, 0)
	for _, id := range catalog.SortedKeys(imported) {
		next := imported[id].Clone()
		change := ObjectChange{
			Key:          PluginKey(id),
			Type:         ObjectPlugin,
			ID:           id,
			InstanceName: next.InstanceName,
			Plugin:       &next,
		}
		current, err := project.Plugin(id)
		if err != nil {
			change.Operation = OperationAdd
			changes = append(changes, change)
			continue
		}
		previous := current.Data()
		if previous.SameVersion(next) {
			continue
		}
		change.Operation = OperationUpdate
		change.Members, change.Config = DiffPlugin(previous, next)
		changes = append(changes, change)
	}

	for _, plugin := range project.Plugins() {
		if _, ok := imported[plugin.ID()]; ok {
			continue
		}
		changes = append(changes, ObjectChange{
			Key:          PluginKey(plugin.ID()),
			Type:         ObjectPlugin,
			Operation:    OperationDelete,
			ID:           plugin.ID(),
			InstanceName: plugin.InstanceName(),
		})
	}
	return changes, nil
}

// DiffPlugin lists the member and config item differences between two plugin records.
func DiffPlugin(previous, next catalog.PluginData) ([]MemberChange, []ConfigChange) {
	return diffMembers(previous.Members, next.Members), diffConfigItems(previous.Config, next.Config)
}

func diffMembers(previous, next map[string]catalog.Member) []MemberChange {
	changes := make([]MemberChange, 0)
	for _, name := range unionKeys(previous, next) {
		before, hadBefore := previous[name]
		after, hasAfter := next[name]
		switch {
		case !hadBefore:
			changes = append(changes, MemberChange{Name: name, Operation: OperationAdd, Next: &after})
		case !hasAfter:
			changes = append(changes, MemberChange{Name: name, Operation: OperationDelete, Previous: &before})
		case !before.Equal(after):
			changes = append(changes, MemberChange{Name: name, Operation: OperationUpdate, Previous: &before, Next: &after})
		}
	}
	return changes
}

func diffConfigItems(previous, next map[string]catalog.ConfigItem) []ConfigChange {
	changes := make([]ConfigChange, 0)
	for _, name := range unionKeys(previous, next) {
		before, hadBefore := previous[name]
		after, hasAfter := next[name]
		switch {
		case !hadBefore:
			changes = append(changes, ConfigChange{Name: name, Operation: OperationAdd, Next: after.ValueType})
		case !hasAfter:
			changes = append(changes, ConfigChange{Name: name, Operation: OperationDelete, Previous: before.ValueType})
		case before.ValueType != after.ValueType:
			changes = append(changes, ConfigChange{Name: name, Operation: OperationUpdate, Previous: before.ValueType, Next: after.ValueType})
		}
	}
	return changes
}

func diffConfigValues(previous, next map[string]any) []ConfigChange {
	changes := make([]ConfigChange, 0)
	for _, name := range unionKeys(previous, next) {
		before, hadBefore := previous[name]
		after, hasAfter := next[name]
		switch {
		case !hadBefore:
			changes = append(changes, ConfigChange{Name: name, Operation: OperationAdd, Next: after})
		case !hasAfter:
			changes = append(changes, ConfigChange{Name: name, Operation: OperationDelete, Previous: before})
		case !catalog.EqualValues(before, after):
			changes = append(changes, ConfigChange{Name: name, Operation: OperationUpdate, Previous: before, Next: after})
		}
	}
	return changes
}

// diffComponents compares the catalog components with the plugin-backed
// components of the project view. Deletions are only inferred for instances
// the document describes.
func diffComponents(doc *catalog.Document, project *model.Project, pluginChanges map[string]*ObjectChange) ([]ObjectChange, error) {
	imported := make(map[string]catalog.ComponentData, len(doc.Components))
	for _, component := range doc.Components {
		imported[component.ID] = component
	}
	importedPlugins := make(map[string]catalog.PluginData, len(doc.Plugins))
	for _, plugin := range doc.Plugins {
		importedPlugins[plugin.ID()] = plugin
	}

	changes := make([]ObjectChange, 0)
	for _, id := range catalog.SortedKeys(imported) {
		next := imported[id]
		plugin, ok := importedPlugins[next.Plugin]
		if !ok {
			return nil, fmt.Errorf("component %s: plugin %q is not part of the import: %w", id, next.Plugin, model.ErrNotFound)
		}
		config, err := completeConfig(plugin, next.Config)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", id, err)
		}
		next.Config = config
		change := ObjectChange{
			Key:          ComponentKey(id),
			Type:         ObjectComponent,
			ID:           id,
			InstanceName: next.InstanceName(),
			Component:    &next,
		}
		if pluginChange, ok := pluginChanges[next.Plugin]; ok && pluginChange.Operation != OperationDelete {
			change.Dependencies = append(change.Dependencies, pluginChange.Key)
		}

		current, err := project.Component(id)
		if err != nil {
			if err := project.CheckComponentID(id, model.PluginDefinition(next.Plugin)); err != nil {
				return nil, fmt.Errorf("component %s: %w", id, err)
			}
			change.Operation = OperationAdd
			change.Config = diffConfigValues(nil, next.Config)
			changes = append(changes, change)
			continue
		}
		if componentUnchanged(current, next) {
			continue
		}
		change.Operation = OperationUpdate
		change.Config = diffConfigValues(current.Config(), next.Config)
		changes = append(changes, change)
	}

	instances := doc.Instances()
	for _, component := range project.Components() {
		if _, ok := imported[component.ID()]; ok {
			continue
		}
		definition := component.Definition()
		if definition.Kind != model.DefinitionPlugin {
			continue
		}
		plugin, err := project.Plugin(definition.ID)
		if err != nil {
			continue
		}
		if _, described := instances[plugin.InstanceName()]; !described {
			continue
		}
		changes = append(changes, ObjectChange{
			Key:          ComponentKey(component.ID()),
			Type:         ObjectComponent,
			Operation:    OperationDelete,
			ID:           component.ID(),
			InstanceName: plugin.InstanceName(),
			Component: &catalog.ComponentData{
				ID:       component.ID(),
				Plugin:   definition.ID,
				External: component.External(),
				Config:   component.Config(),
			},
		})
	}
	return changes, nil
}

// completeConfig checks imported config values against the plugin schema and
// fills undeclared keys with the defaults a new component starts with, so the
// diff sees the config exactly as ApplyUpdates will leave it.
func completeConfig(plugin catalog.PluginData, config map[string]any) (map[string]any, error) {
	complete := make(map[string]any, len(plugin.Config))
	for _, name := range catalog.SortedKeys(config) {
		item, ok := plugin.Config[name]
		if !ok {
			return nil, fmt.Errorf("config %q is not declared by plugin %s: %w", name, plugin.ID(), model.ErrNotFound)
		}
		if err := item.ValueType.Validate(config[name]); err != nil {
			return nil, fmt.Errorf("config %q: %v: %w", name, err, model.ErrInvalidConfig)
		}
		complete[name] = config[name]
	}
	for name, item := range plugin.Config {
		if _, ok := complete[name]; !ok {
			complete[name] = item.ValueType.Zero()
		}
	}
	return complete, nil
}

func componentUnchanged(current *model.Component, next catalog.ComponentData) bool {
	return current.Definition() == model.PluginDefinition(next.Plugin) &&
		current.External() == next.External &&
		catalog.EqualConfig(current.Config(), next.Config)
}

func unionKeys[A, B any](a map[string]A, b map[string]B) []string {
	keys := make(map[string]struct{}, len(a)+len(b))
	for key := range a {
		keys[key] = struct{}{}
	}
	for key := range b {
		keys[key] = struct{}{}
	}
	result := make([]string, 0, len(keys))
	for key := range keys {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

// ProjectDocument exports the catalog state of a project: its plugins and
// its plugin-backed project components. It is the import document of a
// cross-project import and matches the project itself exactly.
func ProjectDocument(project *model.Project) *catalog.Document {
	doc := &catalog.Document{}
	for _, plugin := range project.Plugins() {
		doc.Plugins = append(doc.Plugins, plugin.Data())
	}
	for _, component := range project.Components() {
		definition := component.Definition()
		if definition.Kind != model.DefinitionPlugin {
			continue
		}
		doc.Components = append(doc.Components, catalog.ComponentData{
			ID:       component.ID(),
			Plugin:   definition.ID,
			External: component.External(),
			Config:   component.Config(),
		})
	}
	return doc
}

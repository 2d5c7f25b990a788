// Package resolver flattens a project into the concrete graph deployed to
// instances: every template instantiation is expanded into plugin-backed
// components and every binding is rewritten to concrete endpoints.
package resolver

import (
	"errors"
	"fmt"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/model"
)

// ErrCollision is returned when two expanded components share an id.
var ErrCollision = errors.New("resolved component id collision")

// Component is a concrete, plugin-backed component.
type Component struct {
	ID           string             `yaml:"id"`
	PluginID     string             `yaml:"plugin"`
	InstanceName string             `yaml:"instance"`
	Config       map[string]any     `yaml:"config,omitempty"`
	External     bool               `yaml:"external,omitempty"`
	Origin       model.ComponentRef `yaml:"-"`
}

// View is the flattened project.
type View struct {
	Plugins    map[string]catalog.PluginData `yaml:"plugins"`
	Components map[string]Component         `yaml:"components"`
	Bindings   map[string]model.Binding      `yaml:"bindings"`
}

// ComponentIDs returns the concrete component ids in lexical order.
func (v *View) ComponentIDs() []string { return catalog.SortedKeys(v.Components) }

// BindingIDs returns the concrete binding ids in lexical order.
func (v *View) BindingIDs() []string { return catalog.SortedKeys(v.Bindings) }

// InstanceNames returns the instances publishing at least one plugin.
func (v *View) InstanceNames() []string {
	names := make(map[string]struct{})
	for _, plugin := range v.Plugins {
		names[plugin.InstanceName] = struct{}{}
	}
	return catalog.SortedKeys(names)
}

// InstanceComponents returns the components deployed to an instance, ordered by id.
func (v *View) InstanceComponents(instanceName string) []Component {
	components := make([]Component, 0)
	for _, id := range v.ComponentIDs() {
		if component := v.Components[id]; component.InstanceName == instanceName {
			components = append(components, component)
		}
	}
	return components
}

// Resolve flattens the project. It never mutates the project and may run
// concurrently with itself, but not with a project mutation.
func Resolve(project *model.Project) (*View, error) {
	view := &View{
		Plugins:    make(map[string]catalog.PluginData),
		Components: make(map[string]Component),
		Bindings:   make(map[string]model.Binding),
	}
	for _, plugin := range project.Plugins() {
		view.Plugins[plugin.ID()] = plugin.Data()
	}

	r := &resolution{project: project, view: view}
	builders := make(map[string]builder)
	for _, component := range project.Components() {
		b, err := r.newBuilder(component, component.ID(), component.Config(), component.External(), model.ComponentRef{ID: component.ID()})
		if err != nil {
			return nil, err
		}
		builders[component.ID()] = b
	}
	for _, id := range catalog.SortedKeys(builders) {
		if err := builders[id].build(); err != nil {
			return nil, err
		}
	}
	if err := r.bindings(project.View, builders); err != nil {
		return nil, err
	}
	return view, nil
}

type resolution struct {
	project *model.Project
	view    *View
}

// builder emits the concrete components of one component and maps its
// members to concrete endpoints.
type builder interface {
	build() error
	memberData(member string) (componentID, memberName string, err error)
}

func (r *resolution) newBuilder(component *model.Component, id string, config map[string]any, external bool, origin model.ComponentRef) (builder, error) {
	definition := component.Definition()
	switch definition.Kind {
	case model.DefinitionPlugin:
		plugin, err := r.project.Plugin(definition.ID)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", origin, err)
		}
		return &directBuilder{r: r, id: id, plugin: plugin, config: config, external: external, origin: origin}, nil
	case model.DefinitionTemplate:
		template, err := r.project.Template(definition.ID)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", origin, err)
		}
		return r.newTemplateBuilder(template, id, config, external)
	default:
		return nil, fmt.Errorf("component %s: definition kind %q: %w", origin, definition.Kind, model.ErrNotFound)
	}
}

type directBuilder struct {
	r        *resolution
	id       string
	plugin   *model.Plugin
	config   map[string]any
	external bool
	origin   model.ComponentRef
}

func (b *directBuilder) build() error {
	if existing, ok := b.r.view.Components[b.id]; ok {
		return fmt.Errorf("component %q from %s and %s: %w", b.id, b.origin, existing.Origin, ErrCollision)
	}
	b.r.view.Components[b.id] = Component{
		ID:           b.id,
		PluginID:     b.plugin.ID(),
		InstanceName: b.plugin.InstanceName(),
		Config:       b.config,
		External:     b.external,
		Origin:       b.origin,
	}
	return nil
}

func (b *directBuilder) memberData(member string) (string, string, error) {
	if err := b.plugin.EnsureMember(member); err != nil {
		return "", "", fmt.Errorf("component %s: %w", b.id, err)
	}
	return b.id, member, nil
}

type templateBuilder struct {
	r        *resolution
	id       string
	template *model.Template
	children map[string]builder
}

// newTemplateBuilder expands the inner components of a template. Inner ids
// get the placeholder replaced by the outer id, inner config is the stored
// inner config overwritten by the outer values of the config exports.
func (r *resolution) newTemplateBuilder(template *model.Template, id string, config map[string]any, external bool) (*templateBuilder, error) {
	b := &templateBuilder{r: r, id: id, template: template, children: make(map[string]builder)}
	exports := template.ConfigExports()
	for _, inner := range template.Components() {
		innerConfig := inner.Config()
		for _, exportID := range catalog.SortedKeys(exports) {
			export := exports[exportID]
			if export.Component != inner.ID() {
				continue
			}
			if value, ok := config[exportID]; ok {
				innerConfig[export.ConfigName] = value
			}
		}
		origin := model.ComponentRef{Template: template.ID(), ID: inner.ID()}
		child, err := r.newBuilder(inner, model.ExpandID(inner.ID(), id), innerConfig, external || inner.External(), origin)
		if err != nil {
			return nil, err
		}
		b.children[inner.ID()] = child
	}
	return b, nil
}

func (b *templateBuilder) build() error {
	for _, id := range catalog.SortedKeys(b.children) {
		if err := b.children[id].build(); err != nil {
			return err
		}
	}
	return b.r.bindings(b.template.View, b.children)
}

func (b *templateBuilder) memberData(member string) (string, string, error) {
	export, ok := b.template.MemberExport(member)
	if !ok {
		return "", "", fmt.Errorf("component %s: template %s member %q: %w", b.id, b.template.ID(), member, model.ErrNotFound)
	}
	child, ok := b.children[export.Component]
	if !ok {
		return "", "", fmt.Errorf("component %s: template %s export %q names missing component %q: %w", b.id, b.template.ID(), member, export.Component, model.ErrNotFound)
	}
	return child.memberData(export.Member)
}

// bindings resolves the bindings of a view through the builders of its components.
func (r *resolution) bindings(view *model.View, builders map[string]builder) error {
	for _, binding := range view.Bindings() {
		source, ok := builders[binding.SourceComponent]
		if !ok {
			return fmt.Errorf("binding %s: source %q: %w", binding.ID(), binding.SourceComponent, model.ErrNotFound)
		}
		target, ok := builders[binding.TargetComponent]
		if !ok {
			return fmt.Errorf("binding %s: target %q: %w", binding.ID(), binding.TargetComponent, model.ErrNotFound)
		}
		sourceID, state, err := source.memberData(binding.SourceState)
		if err != nil {
			return fmt.Errorf("binding %s: %w", binding.ID(), err)
		}
		targetID, action, err := target.memberData(binding.TargetAction)
		if err != nil {
			return fmt.Errorf("binding %s: %w", binding.ID(), err)
		}
		concrete := model.Binding{SourceComponent: sourceID, SourceState: state, TargetComponent: targetID, TargetAction: action}
		r.view.Bindings[concrete.ID()] = concrete
	}
	return nil
}

// ComponentsByPlugin groups concrete component ids by plugin id.
func (v *View) ComponentsByPlugin() map[string][]string {
	groups := make(map[string][]string)
	for _, id := range v.ComponentIDs() {
		component := v.Components[id]
		groups[component.PluginID] = append(groups[component.PluginID], id)
	}
	return groups
}

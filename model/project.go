package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/timzifer/coregraph/catalog"
)

// Project is the top-level view. It also owns the instances, plugins and
// templates its components are built from.
//
// A Project is not safe for concurrent use; callers serialize access.
type Project struct {
	*View

	instances map[string]*Instance
	plugins   map[string]*Plugin
	templates map[string]*Template
}

// NewProject creates an empty project.
func NewProject() *Project {
	project := &Project{
		instances: make(map[string]*Instance),
		plugins:   make(map[string]*Plugin),
		templates: make(map[string]*Template),
	}
	project.View = newView(project, "")
	return project
}

// Definition returns the plugin or template behind a definition reference.
func (p *Project) Definition(definition Definition) (ComponentDefinition, error) {
	switch definition.Kind {
	case DefinitionPlugin:
		return p.Plugin(definition.ID)
	case DefinitionTemplate:
		return p.Template(definition.ID)
	default:
		return nil, fmt.Errorf("definition kind %q: %w", definition.Kind, ErrNotFound)
	}
}

// HasInstance reports whether the instance exists.
func (p *Project) HasInstance(name string) bool {
	_, ok := p.instances[name]
	return ok
}

// Instance returns an instance by name.
func (p *Project) Instance(name string) (*Instance, error) {
	instance, ok := p.instances[name]
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", name, ErrNotFound)
	}
	return instance, nil
}

// InstanceNames returns the instance names in lexical order.
func (p *Project) InstanceNames() []string {
	names := make([]string, 0, len(p.instances))
	for name := range p.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasPlugin reports whether the plugin exists.
func (p *Project) HasPlugin(id string) bool {
	_, ok := p.plugins[id]
	return ok
}

// Plugin returns a plugin by identifier.
func (p *Project) Plugin(id string) (*Plugin, error) {
	plugin, ok := p.plugins[id]
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotFound)
	}
	return plugin, nil
}

// PluginIDs returns the plugin identifiers in lexical order.
func (p *Project) PluginIDs() []string {
	ids := make([]string, 0, len(p.plugins))
	for id := range p.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Plugins returns the plugins ordered by identifier.
func (p *Project) Plugins() []*Plugin {
	ids := p.PluginIDs()
	plugins := make([]*Plugin, 0, len(ids))
	for _, id := range ids {
		plugins = append(plugins, p.plugins[id])
	}
	return plugins
}

// HasTemplate reports whether the template exists.
func (p *Project) HasTemplate(id string) bool {
	_, ok := p.templates[id]
	return ok
}

// Template returns a template by identifier.
func (p *Project) Template(id string) (*Template, error) {
	template, ok := p.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", id, ErrNotFound)
	}
	return template, nil
}

// TemplateIDs returns the template identifiers in lexical order.
func (p *Project) TemplateIDs() []string {
	ids := make([]string, 0, len(p.templates))
	for id := range p.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Templates returns the templates ordered by identifier.
func (p *Project) Templates() []*Template {
	ids := p.TemplateIDs()
	templates := make([]*Template, 0, len(ids))
	for _, id := range ids {
		templates = append(templates, p.templates[id])
	}
	return templates
}

// ViewOf returns the project view for an empty id, otherwise the template view.
func (p *Project) ViewOf(templateID string) (*View, error) {
	return p.view(templateID)
}

func (p *Project) view(templateID string) (*View, error) {
	if templateID == "" {
		return p.View, nil
	}
	template, err := p.Template(templateID)
	if err != nil {
		return nil, err
	}
	return template.View, nil
}

// Views returns the project view followed by every template view.
func (p *Project) Views() []*View {
	views := []*View{p.View}
	for _, template := range p.Templates() {
		views = append(views, template.View)
	}
	return views
}

// LookupComponent returns the component a reference points at.
func (p *Project) LookupComponent(ref ComponentRef) (*Component, error) {
	return p.component(ref)
}

func (p *Project) component(ref ComponentRef) (*Component, error) {
	view, err := p.view(ref.Template)
	if err != nil {
		return nil, err
	}
	return view.Component(ref.ID)
}

// SetPlugin inserts a plugin or replaces the whole record of an existing one.
// The instance is created on first use. Replacing a plugin is refused when a
// binding would no longer type-check; components using it gain defaults for
// config items the new record introduces.
func (p *Project) SetPlugin(data catalog.PluginData) (*Plugin, error) {
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("plugin %s: %v: %w", data.ID(), err, ErrInvalidID)
	}
	id := data.ID()

	if existing, ok := p.plugins[id]; ok {
		previous := existing.data
		existing.data = data.Clone()
		if err := p.checkBindings(); err != nil {
			existing.data = previous
			return nil, fmt.Errorf("plugin %s: %v: %w", id, err, ErrInUse)
		}
		defaults := existing.ConfigTemplate()
		for _, ref := range existing.Usage() {
			component, err := p.component(ref)
			if err != nil {
				continue
			}
			for name, value := range defaults {
				if _, ok := component.config[name]; !ok {
					component.config[name] = value
				}
			}
		}
		return existing, nil
	}

	plugin := newPlugin(data)
	p.plugins[id] = plugin
	instance, ok := p.instances[data.InstanceName]
	if !ok {
		instance = &Instance{name: data.InstanceName, plugins: make(map[string]struct{})}
		p.instances[data.InstanceName] = instance
	}
	instance.plugins[id] = struct{}{}
	return plugin, nil
}

// ClearPlugin removes an unused plugin. The instance disappears with its last plugin.
func (p *Project) ClearPlugin(id string) error {
	plugin, err := p.Plugin(id)
	if err != nil {
		return err
	}
	if plugin.Used() {
		return fmt.Errorf("plugin %s is used by %v: %w", id, plugin.Usage(), ErrInUse)
	}
	delete(p.plugins, id)
	if instance, ok := p.instances[plugin.InstanceName()]; ok {
		delete(instance.plugins, id)
		if len(instance.plugins) == 0 {
			delete(p.instances, instance.name)
		}
	}
	return nil
}

// SetPluginHidden toggles the picker display flag of a plugin.
func (p *Project) SetPluginHidden(id string, hidden bool) error {
	plugin, err := p.Plugin(id)
	if err != nil {
		return err
	}
	plugin.data.Hidden = hidden
	return nil
}

func (p *Project) checkBindings() error {
	var errs []error
	for _, view := range p.Views() {
		for _, binding := range view.Bindings() {
			if err := view.checkBinding(binding); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func validateTemplateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("template id must not be empty: %w", ErrInvalidID)
	}
	if strings.Contains(id, ":") {
		return fmt.Errorf("template id %q must not contain ':': %w", id, ErrInvalidID)
	}
	return nil
}

// SetTemplate creates an empty template.
func (p *Project) SetTemplate(id string) (*Template, error) {
	if err := validateTemplateID(id); err != nil {
		return nil, err
	}
	if p.HasTemplate(id) {
		return nil, fmt.Errorf("template %q: %w", id, ErrDuplicateID)
	}
	template := newTemplate(p, id)
	p.templates[id] = template
	return template, nil
}

// RenameTemplate changes a template identifier and rewrites every component
// definition and usage record that names it.
func (p *Project) RenameTemplate(id, newID string) error {
	template, err := p.Template(id)
	if err != nil {
		return err
	}
	if id == newID {
		return nil
	}
	if err := validateTemplateID(newID); err != nil {
		return err
	}
	if p.HasTemplate(newID) {
		return fmt.Errorf("template %q: %w", newID, ErrDuplicateID)
	}

	for _, ref := range template.Usage() {
		if component, err := p.component(ref); err == nil {
			component.definition = TemplateDefinition(newID)
		}
	}
	for _, component := range template.Components() {
		def, err := p.Definition(component.definition)
		if err != nil {
			continue
		}
		def.unregisterUsage(ComponentRef{Template: id, ID: component.id})
		def.registerUsage(ComponentRef{Template: newID, ID: component.id})
	}

	delete(p.templates, id)
	template.id = newID
	template.View.templateID = newID
	p.templates[newID] = template
	return nil
}

// ClearTemplate removes an unused template together with its components and bindings.
func (p *Project) ClearTemplate(id string) error {
	template, err := p.Template(id)
	if err != nil {
		return err
	}
	if template.Used() {
		return fmt.Errorf("template %s is used by %v: %w", id, template.Usage(), ErrInUse)
	}
	for _, component := range template.Components() {
		if def, err := p.Definition(component.definition); err == nil {
			def.unregisterUsage(ComponentRef{Template: id, ID: component.id})
		}
	}
	delete(p.templates, id)
	return nil
}

package model

import (
	"fmt"

	"github.com/timzifer/coregraph/catalog"
)

// ProjectData is the persisted record of a project.
type ProjectData struct {
	Plugins    map[string]catalog.PluginData `yaml:"plugins,omitempty"`
	Templates  map[string]TemplateData       `yaml:"templates,omitempty"`
	Components map[string]ComponentData      `yaml:"components,omitempty"`
	Bindings   map[string]Binding            `yaml:"bindings,omitempty"`
}

// TemplateData is the persisted record of a template.
type TemplateData struct {
	Components    map[string]ComponentData `yaml:"components,omitempty"`
	Bindings      map[string]Binding       `yaml:"bindings,omitempty"`
	ConfigExports map[string]ConfigExport  `yaml:"config_exports,omitempty"`
	MemberExports map[string]MemberExport  `yaml:"member_exports,omitempty"`
}

// ComponentData is the persisted record of a component.
type ComponentData struct {
	Definition Definition     `yaml:"definition"`
	Config     map[string]any `yaml:"config,omitempty"`
	Position   Position       `yaml:"position"`
	External   bool           `yaml:"external,omitempty"`
}

// Load rebuilds a project from its persisted record. Every invariant is
// checked again while loading.
func Load(data ProjectData) (*Project, error) {
	project := NewProject()
	for _, id := range catalog.SortedKeys(data.Plugins) {
		plugin := data.Plugins[id]
		if plugin.ID() != id {
			return nil, fmt.Errorf("plugin %q is stored as %q: %w", plugin.ID(), id, ErrInvalidID)
		}
		if _, err := project.SetPlugin(plugin); err != nil {
			return nil, err
		}
	}

	for _, id := range catalog.SortedKeys(data.Templates) {
		if _, err := project.SetTemplate(id); err != nil {
			return nil, err
		}
	}
	order, err := templateLoadOrder(data.Templates)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if err := project.loadTemplate(project.templates[id], data.Templates[id]); err != nil {
			return nil, err
		}
	}

	if err := project.View.load(data.Components, data.Bindings); err != nil {
		return nil, err
	}
	return project, nil
}

// templateLoadOrder lists templates so that every template comes after the
// templates its components instantiate.
func templateLoadOrder(templates map[string]TemplateData) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(templates))
	order := make([]string, 0, len(templates))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("template %s: %w", id, ErrCircularTemplate)
		case done:
			return nil
		}
		state[id] = visiting
		template := templates[id]
		for _, componentID := range catalog.SortedKeys(template.Components) {
			definition := template.Components[componentID].Definition
			if definition.Kind != DefinitionTemplate {
				continue
			}
			if _, ok := templates[definition.ID]; !ok {
				return fmt.Errorf("template %s component %s: template %q: %w", id, componentID, definition.ID, ErrNotFound)
			}
			if err := visit(definition.ID); err != nil {
				return err
			}
		}
		state[id] = done
		order = append(order, id)
		return nil
	}
	for _, id := range catalog.SortedKeys(templates) {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (p *Project) loadTemplate(template *Template, data TemplateData) error {
	if err := template.View.load(data.Components, nil); err != nil {
		return err
	}
	for _, id := range catalog.SortedKeys(data.ConfigExports) {
		export := data.ConfigExports[id]
		if err := template.SetExport(ExportConfig, id, export.Component, export.ConfigName); err != nil {
			return err
		}
	}
	for _, id := range catalog.SortedKeys(data.MemberExports) {
		export := data.MemberExports[id]
		if err := template.SetExport(ExportMember, id, export.Component, export.Member); err != nil {
			return err
		}
	}
	return template.View.load(nil, data.Bindings)
}

func (v *View) load(components map[string]ComponentData, bindings map[string]Binding) error {
	for _, id := range catalog.SortedKeys(components) {
		data := components[id]
		component, err := v.SetComponent(id, data.Definition, data.Position.X, data.Position.Y)
		if err != nil {
			return err
		}
		for key, value := range data.Config {
			component.config[key] = value
		}
		component.external = data.External
	}
	for _, id := range catalog.SortedKeys(bindings) {
		binding := bindings[id]
		if binding.ID() != id {
			return fmt.Errorf("%s binding %q is stored as %q: %w", v.describe(), binding.ID(), id, ErrInvalidID)
		}
		if _, err := v.SetBinding(binding); err != nil {
			return err
		}
	}
	return nil
}

// Data snapshots the project into its persisted record.
func (p *Project) Data() ProjectData {
	data := ProjectData{
		Plugins:    make(map[string]catalog.PluginData, len(p.plugins)),
		Templates:  make(map[string]TemplateData, len(p.templates)),
		Components: p.View.componentData(),
		Bindings:   p.View.bindingData(),
	}
	for id, plugin := range p.plugins {
		data.Plugins[id] = plugin.Data()
	}
	for id, template := range p.templates {
		data.Templates[id] = TemplateData{
			Components:    template.View.componentData(),
			Bindings:      template.View.bindingData(),
			ConfigExports: template.ConfigExports(),
			MemberExports: template.MemberExports(),
		}
	}
	return data
}

func (v *View) componentData() map[string]ComponentData {
	components := make(map[string]ComponentData, len(v.components))
	for id, component := range v.components {
		components[id] = ComponentData{
			Definition: component.definition,
			Config:     component.Config(),
			Position:   component.position,
			External:   component.external,
		}
	}
	return components
}

func (v *View) bindingData() map[string]Binding {
	bindings := make(map[string]Binding, len(v.bindings))
	for id, binding := range v.bindings {
		bindings[id] = binding
	}
	return bindings
}

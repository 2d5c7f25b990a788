package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/timzifer/coregraph/catalog"
)

// ExportKind distinguishes config exports from member exports.
type ExportKind string

const (
	ExportConfig ExportKind = "config"
	ExportMember ExportKind = "member"
)

// ConfigExport exposes a config item of an inner component as template config.
type ConfigExport struct {
	Component  string `yaml:"component"`
	ConfigName string `yaml:"config_name"`
}

// MemberExport exposes a member of an inner component as template member.
type MemberExport struct {
	Component string `yaml:"component"`
	Member    string `yaml:"member"`
}

// Template is a reusable view. Components backed by a template see its
// exports as their members and config.
type Template struct {
	*View

	id            string
	configExports map[string]ConfigExport
	memberExports map[string]MemberExport
	usage         usageSet
}

func newTemplate(project *Project, id string) *Template {
	return &Template{
		View:          newView(project, id),
		id:            id,
		configExports: make(map[string]ConfigExport),
		memberExports: make(map[string]MemberExport),
		usage:         make(usageSet),
	}
}

// ID returns the template identifier.
func (t *Template) ID() string { return t.id }

// ConfigExports returns a copy of the config exports.
func (t *Template) ConfigExports() map[string]ConfigExport {
	exports := make(map[string]ConfigExport, len(t.configExports))
	for id, export := range t.configExports {
		exports[id] = export
	}
	return exports
}

// MemberExports returns a copy of the member exports.
func (t *Template) MemberExports() map[string]MemberExport {
	exports := make(map[string]MemberExport, len(t.memberExports))
	for id, export := range t.memberExports {
		exports[id] = export
	}
	return exports
}

// ConfigExport returns one config export.
func (t *Template) ConfigExport(exportID string) (ConfigExport, bool) {
	export, ok := t.configExports[exportID]
	return export, ok
}

// MemberExport returns one member export.
func (t *Template) MemberExport(exportID string) (MemberExport, bool) {
	export, ok := t.memberExports[exportID]
	return export, ok
}

// Definition implements ComponentDefinition.
func (t *Template) Definition() Definition { return TemplateDefinition(t.id) }

// MemberValueType implements ComponentDefinition by resolving the exported
// member on the inner component definition.
func (t *Template) MemberValueType(name string, kind catalog.MemberKind) (catalog.ValueType, error) {
	export, ok := t.memberExports[name]
	if !ok {
		return catalog.ValueType{}, fmt.Errorf("template %s member %q: %w", t.id, name, ErrNotFound)
	}
	def, err := t.ComponentDefinition(export.Component)
	if err != nil {
		return catalog.ValueType{}, err
	}
	return def.MemberValueType(export.Member, kind)
}

// EnsureMember implements ComponentDefinition.
func (t *Template) EnsureMember(name string) error {
	if _, ok := t.memberExports[name]; !ok {
		return fmt.Errorf("template %s member %q: %w", t.id, name, ErrNotFound)
	}
	return nil
}

// ValidateConfigValue implements ComponentDefinition by validating against
// the exported config item of the inner component definition.
func (t *Template) ValidateConfigValue(configID string, value any) error {
	export, ok := t.configExports[configID]
	if !ok {
		return fmt.Errorf("template %s config %q: %w", t.id, configID, ErrNotFound)
	}
	def, err := t.ComponentDefinition(export.Component)
	if err != nil {
		return err
	}
	return def.ValidateConfigValue(export.ConfigName, value)
}

// ConfigTemplate implements ComponentDefinition.
func (t *Template) ConfigTemplate() map[string]any {
	config := make(map[string]any, len(t.configExports))
	for id, export := range t.configExports {
		def, err := t.ComponentDefinition(export.Component)
		if err != nil {
			continue
		}
		config[id] = def.ConfigTemplate()[export.ConfigName]
	}
	return config
}

// EnsureConfig implements ComponentDefinition.
func (t *Template) EnsureConfig(configID string) error {
	if _, ok := t.configExports[configID]; !ok {
		return fmt.Errorf("template %s config %q: %w", t.id, configID, ErrNotFound)
	}
	return nil
}

// Used implements ComponentDefinition.
func (t *Template) Used() bool { return len(t.usage) > 0 }

// Usage implements ComponentDefinition.
func (t *Template) Usage() []ComponentRef { return t.usage.refs() }

func (t *Template) registerUsage(ref ComponentRef)   { t.usage[ref] = struct{}{} }
func (t *Template) unregisterUsage(ref ComponentRef) { delete(t.usage, ref) }

// SetExport exposes a config item or member of an inner component. Setting a
// config export adds its default value to every component instantiating the
// template.
func (t *Template) SetExport(kind ExportKind, exportID, componentID, property string) error {
	if strings.TrimSpace(exportID) == "" {
		return fmt.Errorf("template %s export id must not be empty: %w", t.id, ErrInvalidID)
	}
	def, err := t.ComponentDefinition(componentID)
	if err != nil {
		return err
	}

	switch kind {
	case ExportConfig:
		if _, exists := t.configExports[exportID]; exists {
			return fmt.Errorf("template %s config export %q: %w", t.id, exportID, ErrDuplicateID)
		}
		if err := def.EnsureConfig(property); err != nil {
			return fmt.Errorf("template %s config export %q: %v: %w", t.id, exportID, err, ErrInvalidExport)
		}
		for id, export := range t.configExports {
			if export.Component == componentID && export.ConfigName == property {
				return fmt.Errorf("template %s config %s.%s already exported as %q: %w", t.id, componentID, property, id, ErrDuplicateID)
			}
		}
		t.configExports[exportID] = ConfigExport{Component: componentID, ConfigName: property}
		value := def.ConfigTemplate()[property]
		for _, ref := range t.Usage() {
			if component, err := t.project.component(ref); err == nil {
				component.config[exportID] = value
			}
		}
		return nil
	case ExportMember:
		if _, exists := t.memberExports[exportID]; exists {
			return fmt.Errorf("template %s member export %q: %w", t.id, exportID, ErrDuplicateID)
		}
		if err := def.EnsureMember(property); err != nil {
			return fmt.Errorf("template %s member export %q: %v: %w", t.id, exportID, err, ErrInvalidExport)
		}
		for id, export := range t.memberExports {
			if export.Component == componentID && export.Member == property {
				return fmt.Errorf("template %s member %s.%s already exported as %q: %w", t.id, componentID, property, id, ErrDuplicateID)
			}
		}
		t.memberExports[exportID] = MemberExport{Component: componentID, Member: property}
		return nil
	default:
		return fmt.Errorf("template %s: unknown export kind %q: %w", t.id, kind, ErrInvalidExport)
	}
}

// ClearExport removes an export. Clearing a member export is refused while a
// binding uses it; clearing a config export removes the value from every
// component instantiating the template.
func (t *Template) ClearExport(kind ExportKind, exportID string) error {
	switch kind {
	case ExportConfig:
		if _, ok := t.configExports[exportID]; !ok {
			return fmt.Errorf("template %s config export %q: %w", t.id, exportID, ErrNotFound)
		}
		delete(t.configExports, exportID)
		for _, ref := range t.Usage() {
			if component, err := t.project.component(ref); err == nil {
				delete(component.config, exportID)
			}
		}
		return nil
	case ExportMember:
		if _, ok := t.memberExports[exportID]; !ok {
			return fmt.Errorf("template %s member export %q: %w", t.id, exportID, ErrNotFound)
		}
		if bindings := t.MemberExportBindings(exportID); len(bindings) > 0 {
			return fmt.Errorf("template %s member export %q is used by %d binding(s): %w", t.id, exportID, len(bindings), ErrInUse)
		}
		delete(t.memberExports, exportID)
		return nil
	default:
		return fmt.Errorf("template %s: unknown export kind %q: %w", t.id, kind, ErrInvalidExport)
	}
}

// ViewBinding is a binding located in a view.
type ViewBinding struct {
	Template string
	Binding  Binding
}

// MemberExportBindings returns the bindings, in views instantiating the
// template, that use the exported member.
func (t *Template) MemberExportBindings(exportID string) []ViewBinding {
	result := make([]ViewBinding, 0)
	for _, ref := range t.Usage() {
		view, err := t.project.view(ref.Template)
		if err != nil {
			continue
		}
		for _, binding := range view.Bindings() {
			if binding.UsesMember(ref.ID, exportID) {
				result = append(result, ViewBinding{Template: ref.Template, Binding: binding})
			}
		}
	}
	return result
}

// ExportsOf lists the export identifiers (config and member) referencing the inner component.
func (t *Template) exportsOf(componentID string) []string {
	exports := make([]string, 0)
	for id, export := range t.configExports {
		if export.Component == componentID {
			exports = append(exports, string(ExportConfig)+":"+id)
		}
	}
	for id, export := range t.memberExports {
		if export.Component == componentID {
			exports = append(exports, string(ExportMember)+":"+id)
		}
	}
	sort.Strings(exports)
	return exports
}

func (t *Template) renameExportedComponent(oldID, newID string) {
	for id, export := range t.configExports {
		if export.Component == oldID {
			export.Component = newID
			t.configExports[id] = export
		}
	}
	for id, export := range t.memberExports {
		if export.Component == oldID {
			export.Component = newID
			t.memberExports[id] = export
		}
	}
}

// ConfigExportsOf returns the config export ids pointing at a config item of an inner component.
func (t *Template) ConfigExportsOf(componentID, configName string) []string {
	ids := make([]string, 0)
	for id, export := range t.configExports {
		if export.Component == componentID && export.ConfigName == configName {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MemberExportsOf returns the member export ids pointing at a member of an inner component.
func (t *Template) MemberExportsOf(componentID, member string) []string {
	ids := make([]string, 0)
	for id, export := range t.memberExports {
		if export.Component == componentID && export.Member == member {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ComponentExports lists config and member export ids referencing an inner component.
func (t *Template) ComponentExports(componentID string) (configIDs, memberIDs []string) {
	for id, export := range t.configExports {
		if export.Component == componentID {
			configIDs = append(configIDs, id)
		}
	}
	for id, export := range t.memberExports {
		if export.Component == componentID {
			memberIDs = append(memberIDs, id)
		}
	}
	sort.Strings(configIDs)
	sort.Strings(memberIDs)
	return configIDs, memberIDs
}

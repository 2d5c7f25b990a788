package model

import (
	"sort"

	"github.com/timzifer/coregraph/catalog"
)

// DefinitionKind tells whether a component instantiates a plugin or a template.
type DefinitionKind string

const (
	DefinitionPlugin   DefinitionKind = "plugin"
	DefinitionTemplate DefinitionKind = "template"
)

// Definition references the plugin or template a component instantiates.
type Definition struct {
	Kind DefinitionKind `yaml:"kind"`
	ID   string         `yaml:"id"`
}

// PluginDefinition references a plugin.
func PluginDefinition(id string) Definition {
	return Definition{Kind: DefinitionPlugin, ID: id}
}

// TemplateDefinition references a template.
func TemplateDefinition(id string) Definition {
	return Definition{Kind: DefinitionTemplate, ID: id}
}

func (d Definition) String() string {
	return string(d.Kind) + " " + d.ID
}

// ComponentRef locates a component inside a project. Template is empty for
// components owned by the project itself.
type ComponentRef struct {
	Template string
	ID       string
}

func (r ComponentRef) String() string {
	if r.Template == "" {
		return r.ID
	}
	return r.Template + "/" + r.ID
}

// ComponentDefinition is the capability shared by plugins and templates when
// they back a component.
type ComponentDefinition interface {
	Definition() Definition
	MemberValueType(name string, kind catalog.MemberKind) (catalog.ValueType, error)
	EnsureMember(name string) error
	ValidateConfigValue(configID string, value any) error
	ConfigTemplate() map[string]any
	EnsureConfig(configID string) error
	Used() bool
	Usage() []ComponentRef

	registerUsage(ref ComponentRef)
	unregisterUsage(ref ComponentRef)
}

type usageSet map[ComponentRef]struct{}

func (u usageSet) refs() []ComponentRef {
	refs := make([]ComponentRef, 0, len(u))
	for ref := range u {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Template != refs[j].Template {
			return refs[i].Template < refs[j].Template
		}
		return refs[i].ID < refs[j].ID
	})
	return refs
}

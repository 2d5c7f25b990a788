package importer

import (
	"sort"
	"strings"

	"github.com/timzifer/coregraph/model"
)

// ImpactKind is the mutation an impact performs.
type ImpactKind string

const (
	ImpactBindingClear   ImpactKind = "binding-clear"
	ImpactExportClear    ImpactKind = "export-clear"
	ImpactComponentClear ImpactKind = "component-clear"
	ImpactConfigReset    ImpactKind = "component-reset-config"
	ImpactConfigClear    ImpactKind = "component-clear-config"
)

// Phase tells whether an impact runs before (prev) or after (next) the
// mutation of its update.
type Phase string

const (
	PhasePrev Phase = "prev"
	PhaseNext Phase = "next"
)

const (
	reasonComponentDeleted = "component-deleted"
	reasonMemberDeleted    = "member-deleted"
	reasonConfigChanged    = "config-changed"
	reasonConfigDeleted    = "config-deleted"
)

// Impact is one idempotent side-effect mutation. Its ID is stable so that an
// impact shared by several changes is applied once.
type Impact struct {
	ID         string             `yaml:"id"`
	Kind       ImpactKind         `yaml:"kind"`
	Phase      Phase              `yaml:"phase"`
	Template   string             `yaml:"template,omitempty"`
	Component  model.ComponentRef `yaml:"component,omitempty"`
	Binding    string             `yaml:"binding,omitempty"`
	Config     string             `yaml:"config,omitempty"`
	ExportKind model.ExportKind   `yaml:"export_kind,omitempty"`
	Export     string             `yaml:"export,omitempty"`
	Reason     string             `yaml:"reason,omitempty"`
	// PluginID is the plugin a cleared component must still be backed by.
	PluginID string `yaml:"plugin,omitempty"`
}

func impactID(kind ImpactKind, parts ...string) string {
	return string(kind) + ":" + strings.Join(parts, ":")
}

var kindRank = map[ImpactKind]int{
	ImpactBindingClear:   0,
	ImpactExportClear:    1,
	ImpactComponentClear: 2,
	ImpactConfigReset:    3,
	ImpactConfigClear:    3,
}

type collector struct {
	project *model.Project
	seen    map[string]struct{}
	impacts []Impact
}

func newCollector(project *model.Project) *collector {
	return &collector{project: project, seen: make(map[string]struct{})}
}

func (c *collector) add(impact Impact) {
	if _, ok := c.seen[impact.ID]; ok {
		return
	}
	c.seen[impact.ID] = struct{}{}
	c.impacts = append(c.impacts, impact)
}

// sorted returns the impacts ordered so that references are vacated before
// their target disappears.
func (c *collector) sorted() []Impact {
	impacts := append([]Impact(nil), c.impacts...)
	sort.SliceStable(impacts, func(i, j int) bool {
		if kindRank[impacts[i].Kind] != kindRank[impacts[j].Kind] {
			return kindRank[impacts[i].Kind] < kindRank[impacts[j].Kind]
		}
		return impacts[i].ID < impacts[j].ID
	})
	return impacts
}

func (c *collector) bindingClear(template string, binding model.Binding) {
	c.add(Impact{
		ID:       impactID(ImpactBindingClear, template, binding.ID()),
		Kind:     ImpactBindingClear,
		Phase:    PhasePrev,
		Template: template,
		Binding:  binding.ID(),
	})
}

func (c *collector) exportClear(template string, kind model.ExportKind, exportID, reason string, phase Phase) {
	c.add(Impact{
		ID:         impactID(ImpactExportClear, template, string(kind), exportID),
		Kind:       ImpactExportClear,
		Phase:      phase,
		Template:   template,
		ExportKind: kind,
		Export:     exportID,
		Reason:     reason,
	})
}

func (c *collector) bindingsTouching(ref model.ComponentRef) {
	view, err := c.project.ViewOf(ref.Template)
	if err != nil {
		return
	}
	for _, binding := range view.ComponentBindings(ref.ID) {
		c.bindingClear(ref.Template, binding)
	}
}

// memberRemoved collects the bindings using a member of a component, following
// template member exports up to every view instantiating the template. With
// dropExports the exports themselves are cleared too.
func (c *collector) memberRemoved(ref model.ComponentRef, member string, dropExports bool, reason string) {
	view, err := c.project.ViewOf(ref.Template)
	if err != nil {
		return
	}
	for _, binding := range view.Bindings() {
		if binding.UsesMember(ref.ID, member) {
			c.bindingClear(ref.Template, binding)
		}
	}
	if ref.Template == "" {
		return
	}
	template, err := c.project.Template(ref.Template)
	if err != nil {
		return
	}
	for _, exportID := range template.MemberExportsOf(ref.ID, member) {
		if dropExports {
			c.exportClear(template.ID(), model.ExportMember, exportID, reason, PhasePrev)
		}
		for _, user := range template.Usage() {
			c.memberRemoved(user, exportID, dropExports, reason)
		}
	}
}

// configExportRemoved follows a config key vanishing from a component into the
// config exports that republish it.
func (c *collector) configExportRemoved(ref model.ComponentRef, configName, reason string, phase Phase) {
	if ref.Template == "" {
		return
	}
	template, err := c.project.Template(ref.Template)
	if err != nil {
		return
	}
	for _, exportID := range template.ConfigExportsOf(ref.ID, configName) {
		c.exportClear(template.ID(), model.ExportConfig, exportID, reason, phase)
		for _, user := range template.Usage() {
			c.configExportRemoved(user, exportID, reason, phase)
		}
	}
}

func (c *collector) configChanged(ref model.ComponentRef, configName string, deleted bool) {
	kind, reason := ImpactConfigReset, reasonConfigChanged
	if deleted {
		kind, reason = ImpactConfigClear, reasonConfigDeleted
	}
	c.add(Impact{
		ID:        impactID(kind, ref.Template, ref.ID, configName),
		Kind:      kind,
		Phase:     PhaseNext,
		Component: ref,
		Config:    configName,
		Reason:    reason,
	})
	c.configExportRemoved(ref, configName, reason, PhaseNext)
}

// componentRemoved collects everything that must go before the component can
// be cleared: its bindings, the exports naming it and whatever uses those
// exports.
func (c *collector) componentRemoved(ref model.ComponentRef, pluginID string) {
	c.bindingsTouching(ref)
	if ref.Template != "" {
		if template, err := c.project.Template(ref.Template); err == nil {
			configIDs, memberIDs := template.ComponentExports(ref.ID)
			for _, exportID := range memberIDs {
				c.exportClear(template.ID(), model.ExportMember, exportID, reasonComponentDeleted, PhasePrev)
				for _, user := range template.Usage() {
					c.memberRemoved(user, exportID, true, reasonComponentDeleted)
				}
			}
			for _, exportID := range configIDs {
				c.exportClear(template.ID(), model.ExportConfig, exportID, reasonComponentDeleted, PhasePrev)
				for _, user := range template.Usage() {
					c.configExportRemoved(user, exportID, reasonComponentDeleted, PhasePrev)
				}
			}
		}
	}
	c.add(Impact{
		ID:        impactID(ImpactComponentClear, ref.Template, ref.ID),
		Kind:      ImpactComponentClear,
		Phase:     PhasePrev,
		Component: ref,
		PluginID:  pluginID,
	})
}

// computeImpacts fills the impacts of a change from the current project state.
func computeImpacts(project *model.Project, change *ObjectChange) error {
	c := newCollector(project)
	switch {
	case change.Type == ObjectPlugin && change.Operation == OperationDelete:
		plugin, err := project.Plugin(change.ID)
		if err != nil {
			return err
		}
		for _, ref := range plugin.Usage() {
			c.componentRemoved(ref, change.ID)
		}
	case change.Type == ObjectPlugin && change.Operation == OperationUpdate:
		plugin, err := project.Plugin(change.ID)
		if err != nil {
			return err
		}
		for _, member := range change.Members {
			if member.Operation == OperationAdd {
				continue
			}
			for _, ref := range plugin.Usage() {
				c.memberRemoved(ref, member.Name, member.Operation == OperationDelete, reasonMemberDeleted)
			}
		}
		for _, config := range change.Config {
			if config.Operation == OperationAdd {
				continue
			}
			for _, ref := range plugin.Usage() {
				c.configChanged(ref, config.Name, config.Operation == OperationDelete)
			}
		}
	case change.Type == ObjectComponent && change.Operation == OperationDelete:
		c.bindingsTouching(model.ComponentRef{ID: change.ID})
	case change.Type == ObjectComponent && change.Operation == OperationUpdate:
		current, err := project.Component(change.ID)
		if err != nil {
			return err
		}
		if current.Definition() != model.PluginDefinition(change.Component.Plugin) {
			c.bindingsTouching(model.ComponentRef{ID: change.ID})
		}
	}

	change.impacts = c.sorted()
	change.Impacts = summarize(change.impacts)
	return nil
}

func summarize(impacts []Impact) Impacts {
	var summary Impacts
	for _, impact := range impacts {
		switch impact.Kind {
		case ImpactComponentClear:
			summary.Components = append(summary.Components, impact.Component)
		case ImpactBindingClear:
			summary.Bindings = append(summary.Bindings, BindingRef{Template: impact.Template, ID: impact.Binding})
		case ImpactExportClear:
			summary.Exports = append(summary.Exports, ExportRef{Template: impact.Template, Kind: impact.ExportKind, ID: impact.Export, Reason: impact.Reason})
		case ImpactConfigReset, ImpactConfigClear:
			summary.Configs = append(summary.Configs, ConfigRef{Component: impact.Component, Config: impact.Config, Reset: impact.Kind == ImpactConfigReset})
		}
	}
	return summary
}

// Package validation checks a project against the live catalog before it is
// deployed. Findings are returned as severity-tagged items rather than errors
// so that callers decide which of them block.
package validation

import (
	"fmt"
	"sort"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/importer"
	"github.com/timzifer/coregraph/model"
	"github.com/timzifer/coregraph/resolver"
)

// Severity grades an item.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Valid reports whether the severity is known.
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning
}

// ItemType is the kind of finding.
type ItemType string

const (
	ItemPluginDeleted      ItemType = "plugin-deleted"
	ItemPluginChanged      ItemType = "plugin-changed"
	ItemComponentCollision ItemType = "component-collision"
)

// Item is one finding.
type Item struct {
	Type         ItemType                `yaml:"type"`
	Severity     Severity                `yaml:"severity"`
	PluginID     string                  `yaml:"plugin,omitempty"`
	ComponentID  string                  `yaml:"component,omitempty"`
	InstanceName string                  `yaml:"instance,omitempty"`
	Components   []string                `yaml:"components,omitempty"`
	Members      []importer.MemberChange `yaml:"members,omitempty"`
	Config       []importer.ConfigChange `yaml:"config,omitempty"`
	Message      string                  `yaml:"message"`
}

// Options tune a validation run.
type Options struct {
	// OnlineSeverity grades drift against the live catalog. Defaults to error.
	OnlineSeverity Severity
}

// Validate compares every plugin used by a deployed (non-external) component
// with its live catalog entry and flags project components whose id is
// already taken by a live component of another instance.
func Validate(project *model.Project, registry catalog.Registry, opts Options) ([]Item, error) {
	severity := opts.OnlineSeverity
	if severity == "" {
		severity = SeverityError
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q", severity)
	}

	view, err := resolver.Resolve(project)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0)
	used := make(map[string][]string)
	for _, id := range view.ComponentIDs() {
		component := view.Components[id]
		if component.External {
			continue
		}
		used[component.PluginID] = append(used[component.PluginID], id)
	}

	for _, pluginID := range catalog.SortedKeys(used) {
		cached, ok := view.Plugins[pluginID]
		if !ok {
			continue
		}
		live, ok := registry.Plugin(pluginID)
		if !ok {
			items = append(items, Item{
				Type:         ItemPluginDeleted,
				Severity:     severity,
				PluginID:     pluginID,
				InstanceName: cached.InstanceName,
				Components:   used[pluginID],
				Message:      fmt.Sprintf("plugin %s is no longer available on instance %s", pluginID, cached.InstanceName),
			})
			continue
		}
		members, config := importer.DiffPlugin(cached, live)
		if len(members) == 0 && len(config) == 0 {
			continue
		}
		items = append(items, Item{
			Type:         ItemPluginChanged,
			Severity:     severity,
			PluginID:     pluginID,
			InstanceName: cached.InstanceName,
			Components:   used[pluginID],
			Members:      members,
			Config:       config,
			Message:      fmt.Sprintf("plugin %s changed from version %q to %q", pluginID, cached.Version, live.Version),
		})
	}

	for _, live := range registry.Components() {
		component, ok := view.Components[live.ID]
		if !ok || component.External {
			continue
		}
		if live.InstanceName() == component.InstanceName {
			continue
		}
		items = append(items, Item{
			Type:         ItemComponentCollision,
			Severity:     severity,
			ComponentID:  live.ID,
			InstanceName: live.InstanceName(),
			PluginID:     component.PluginID,
			Message:      fmt.Sprintf("component %s of instance %s is already declared by instance %s", live.ID, component.InstanceName, live.InstanceName()),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		if items[i].PluginID != items[j].PluginID {
			return items[i].PluginID < items[j].PluginID
		}
		return items[i].ComponentID < items[j].ComponentID
	})
	return items, nil
}

// Count tallies items per severity.
func Count(items []Item) map[Severity]int {
	counts := map[Severity]int{SeverityError: 0, SeverityWarning: 0}
	for _, item := range items {
		counts[item.Severity]++
	}
	return counts
}

// HasErrors reports whether an item has error severity.
func HasErrors(items []Item) bool {
	return Count(items)[SeverityError] > 0
}

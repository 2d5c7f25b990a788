package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/model"
)

// UpdateType is the main mutation of an update.
type UpdateType string

const (
	UpdateComponentDelete UpdateType = "component-delete"
	UpdatePluginSet       UpdateType = "plugin-set"
	UpdateComponentSet    UpdateType = "component-set"
	UpdatePluginClear     UpdateType = "plugin-clear"
)

var updateRank = map[UpdateType]int{
	UpdateComponentDelete: 0,
	UpdatePluginSet:       1,
	UpdateComponentSet:    2,
	UpdatePluginClear:     3,
}

// Update is the idempotent unit of application derived from one change.
type Update struct {
	ID           string                 `yaml:"id"`
	Type         UpdateType             `yaml:"type"`
	ChangeKey    string                 `yaml:"change"`
	Dependencies []string               `yaml:"dependencies,omitempty"`
	PluginID     string                 `yaml:"plugin_id,omitempty"`
	Plugin       *catalog.PluginData    `yaml:"plugin,omitempty"`
	Component    *catalog.ComponentData `yaml:"component,omitempty"`
	Prev         []Impact               `yaml:"prev,omitempty"`
	Next         []Impact               `yaml:"next,omitempty"`
}

// ServerData is the prepared update set handed back to ApplyUpdates.
type ServerData struct {
	Changes []ObjectChange `yaml:"changes"`
	Updates []Update       `yaml:"updates"`
}

func updateID(kind UpdateType, id string) string { return string(kind) + ":" + id }

func buildUpdates(changes []ObjectChange) ([]Update, error) {
	updates := make([]Update, 0, len(changes))
	for _, change := range changes {
		update := Update{ChangeKey: change.Key}
		switch {
		case change.Type == ObjectPlugin && change.Operation == OperationDelete:
			update.Type = UpdatePluginClear
			update.PluginID = change.ID
		case change.Type == ObjectPlugin:
			update.Type = UpdatePluginSet
			update.PluginID = change.ID
			update.Plugin = change.Plugin
		case change.Type == ObjectComponent && change.Operation == OperationDelete:
			update.Type = UpdateComponentDelete
			update.PluginID = change.Component.Plugin
			update.Component = change.Component
		default:
			update.Type = UpdateComponentSet
			update.PluginID = change.Component.Plugin
			update.Component = change.Component
			for _, key := range change.Dependencies {
				update.Dependencies = append(update.Dependencies, updateID(UpdatePluginSet, strings.TrimPrefix(key, PluginKey(""))))
			}
		}
		update.ID = updateID(update.Type, change.ID)
		for _, impact := range change.impacts {
			if impact.Phase == PhaseNext {
				update.Next = append(update.Next, impact)
			} else {
				update.Prev = append(update.Prev, impact)
			}
		}
		updates = append(updates, update)
	}

	sort.SliceStable(updates, func(i, j int) bool {
		if updateRank[updates[i].Type] != updateRank[updates[j].Type] {
			return updateRank[updates[i].Type] < updateRank[updates[j].Type]
		}
		return updates[i].ID < updates[j].ID
	})
	return topoSort(updates)
}

// topoSort orders updates after their dependencies, keeping the base order
// among independent updates.
func topoSort(updates []Update) ([]Update, error) {
	byID := make(map[string]int, len(updates))
	for i, update := range updates {
		byID[update.ID] = i
	}
	inDegree := make([]int, len(updates))
	edges := make([][]int, len(updates))
	for i, update := range updates {
		for _, dep := range update.Dependencies {
			producer, ok := byID[dep]
			if !ok || producer == i {
				continue
			}
			edges[producer] = append(edges[producer], i)
			inDegree[i]++
		}
	}

	queue := make([]int, 0, len(updates))
	for i := range updates {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	ordered := make([]Update, 0, len(updates))
	for len(queue) > 0 {
		sort.Ints(queue)
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, updates[current])
		for _, succ := range edges[current] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if len(ordered) != len(updates) {
		return nil, fmt.Errorf("update dependencies contain a cycle: %w", ErrProtocol)
	}
	return ordered, nil
}

// Stats counts the mutations ApplyUpdates performed.
type Stats struct {
	Plugins    int `yaml:"plugins"`
	Components int `yaml:"components"`
	Templates  int `yaml:"templates"`
	Bindings   int `yaml:"bindings"`
}

// Total returns the number of mutations.
func (s Stats) Total() int { return s.Plugins + s.Components + s.Templates + s.Bindings }

// ApplyUpdates applies the updates of the selected change keys in the
// prepared order. Impacts run around the update mutation: prev impacts
// before it, next impacts after it. Impacts that no longer match the
// project are skipped, so applying twice is harmless.
func ApplyUpdates(data *ServerData, selection []string, api API) (Stats, error) {
	var stats Stats
	if data == nil {
		return stats, nil
	}
	changes := make(map[string]ObjectChange, len(data.Changes))
	for _, change := range data.Changes {
		changes[change.Key] = change
	}
	selected := make(map[string]bool, len(selection))
	for _, key := range selection {
		if _, ok := changes[key]; !ok {
			return stats, fmt.Errorf("selected change %q is not part of the prepared changes: %w", key, ErrProtocol)
		}
		selected[key] = true
	}
	updates := make(map[string]Update, len(data.Updates))
	for _, update := range data.Updates {
		updates[update.ID] = update
	}

	applied := make(map[string]struct{})
	for _, update := range data.Updates {
		ok, err := shouldApply(update, selected, updates)
		if err != nil {
			return stats, err
		}
		if !ok {
			continue
		}
		for _, impact := range update.Prev {
			if err := applyImpact(impact, api, applied, &stats); err != nil {
				return stats, fmt.Errorf("update %s: %w", update.ID, err)
			}
		}
		if err := applyUpdate(update, api, &stats); err != nil {
			return stats, fmt.Errorf("update %s: %w", update.ID, err)
		}
		for _, impact := range update.Next {
			if err := applyImpact(impact, api, applied, &stats); err != nil {
				return stats, fmt.Errorf("update %s: %w", update.ID, err)
			}
		}
	}
	return stats, nil
}

// shouldApply gates an update on its selection: a component is never set
// without its plugin update, and a component deletion is left to the
// deletion of its plugin when both are selected.
func shouldApply(update Update, selected map[string]bool, updates map[string]Update) (bool, error) {
	if !selected[update.ChangeKey] {
		return false, nil
	}
	for _, dep := range update.Dependencies {
		dependency, ok := updates[dep]
		if !ok {
			return false, fmt.Errorf("update %s depends on unknown update %s: %w", update.ID, dep, ErrProtocol)
		}
		if !selected[dependency.ChangeKey] {
			return false, nil
		}
	}
	if update.Type == UpdateComponentDelete {
		if pluginClear, ok := updates[updateID(UpdatePluginClear, update.PluginID)]; ok && selected[pluginClear.ChangeKey] {
			return false, nil
		}
	}
	return true, nil
}

func applyUpdate(update Update, api API, stats *Stats) error {
	switch update.Type {
	case UpdatePluginSet:
		if update.Plugin == nil {
			return fmt.Errorf("missing plugin record: %w", ErrProtocol)
		}
		if err := api.SetPlugin(*update.Plugin); err != nil {
			return err
		}
		stats.Plugins++
	case UpdatePluginClear:
		if !api.HasPlugin(update.PluginID) {
			return nil
		}
		if err := api.ClearPlugin(update.PluginID); err != nil {
			return err
		}
		stats.Plugins++
	case UpdateComponentSet:
		if update.Component == nil {
			return fmt.Errorf("missing component record: %w", ErrProtocol)
		}
		if err := api.SetComponent(*update.Component); err != nil {
			return err
		}
		stats.Components++
	case UpdateComponentDelete:
		ref := model.ComponentRef{ID: update.Component.ID}
		if definition, ok := api.ComponentDefinition(ref); !ok || definition != model.PluginDefinition(update.PluginID) {
			return nil
		}
		if err := api.ClearComponent(ref); err != nil {
			return err
		}
		stats.Components++
	default:
		return fmt.Errorf("unknown update type %q: %w", update.Type, ErrProtocol)
	}
	return nil
}

func applyImpact(impact Impact, api API, applied map[string]struct{}, stats *Stats) error {
	if _, done := applied[impact.ID]; done {
		return nil
	}
	applied[impact.ID] = struct{}{}

	switch impact.Kind {
	case ImpactBindingClear:
		if !api.HasBinding(impact.Template, impact.Binding) {
			return nil
		}
		if err := api.ClearBinding(impact.Template, impact.Binding); err != nil {
			return err
		}
		stats.Bindings++
	case ImpactExportClear:
		if !api.HasExport(impact.Template, impact.ExportKind, impact.Export) {
			return nil
		}
		if err := api.ClearExport(impact.Template, impact.ExportKind, impact.Export); err != nil {
			return err
		}
		stats.Templates++
	case ImpactComponentClear:
		definition, ok := api.ComponentDefinition(impact.Component)
		if !ok || (impact.PluginID != "" && definition != model.PluginDefinition(impact.PluginID)) {
			return nil
		}
		if err := api.ClearComponent(impact.Component); err != nil {
			return err
		}
		stats.Components++
	case ImpactConfigReset:
		if _, ok := api.ComponentDefinition(impact.Component); !ok {
			return nil
		}
		if err := api.ResetComponentConfig(impact.Component, impact.Config); err != nil {
			return err
		}
		stats.Components++
	case ImpactConfigClear:
		if !api.HasComponentConfig(impact.Component, impact.Config) {
			return nil
		}
		if err := api.ClearComponentConfig(impact.Component, impact.Config); err != nil {
			return err
		}
		stats.Components++
	default:
		return fmt.Errorf("unknown impact kind %q: %w", impact.Kind, ErrProtocol)
	}
	return nil
}

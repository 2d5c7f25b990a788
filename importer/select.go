package importer

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SelectChanges returns the keys of the changes matching a boolean
// expression. The expression sees key, kind (plugin or component),
// operation, id, instance, impacts (number of impacts), members and config
// (names of changed fields). An empty filter selects every change.
func SelectChanges(changes []ObjectChange, filter string) ([]string, error) {
	filter = strings.TrimSpace(filter)
	keys := make([]string, 0, len(changes))
	if filter == "" {
		for _, change := range changes {
			keys = append(keys, change.Key)
		}
		return keys, nil
	}

	program, err := expr.Compile(filter, expr.Env(changeEnv(ObjectChange{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter: %w", err)
	}
	for _, change := range changes {
		result, err := vm.Run(program, changeEnv(change))
		if err != nil {
			return nil, fmt.Errorf("filter on %s: %w", change.Key, err)
		}
		if matched, _ := result.(bool); matched {
			keys = append(keys, change.Key)
		}
	}
	return keys, nil
}

func changeEnv(change ObjectChange) map[string]interface{} {
	members := make([]string, 0, len(change.Members))
	for _, member := range change.Members {
		members = append(members, member.Name)
	}
	config := make([]string, 0, len(change.Config))
	for _, item := range change.Config {
		config = append(config, item.Name)
	}
	return map[string]interface{}{
		"key":       change.Key,
		"kind":      string(change.Type),
		"operation": string(change.Operation),
		"id":        change.ID,
		"instance":  change.InstanceName,
		"impacts":   change.Impacts.Count(),
		"members":   members,
		"config":    config,
	}
}

// ExpandSelection adds to the selected keys every change they depend on,
// transitively, so that the selection applies as a whole.
func ExpandSelection(changes []ObjectChange, keys []string) []string {
	byKey := make(map[string]ObjectChange, len(changes))
	for _, change := range changes {
		byKey[change.Key] = change
	}
	selected := make(map[string]struct{}, len(keys))
	var visit func(key string)
	visit = func(key string) {
		if _, ok := selected[key]; ok {
			return
		}
		selected[key] = struct{}{}
		for _, dep := range byKey[key].Dependencies {
			visit(dep)
		}
	}
	for _, key := range keys {
		visit(key)
	}

	result := make([]string, 0, len(selected))
	for _, change := range changes {
		if _, ok := selected[change.Key]; ok {
			result = append(result, change.Key)
			delete(selected, change.Key)
		}
	}
	for _, key := range keys {
		if _, ok := selected[key]; ok {
			result = append(result, key)
			delete(selected, key)
		}
	}
	return result
}

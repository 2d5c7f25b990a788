package model

import (
	"fmt"
	"sort"
	"strings"
)

// IDPlaceholder is replaced by the id of the instantiating component when a
// template is flattened.
const IDPlaceholder = "{{id}}"

// ExpandID substitutes the placeholder of an inner component id with the id of
// the component instantiating its template.
func ExpandID(innerID, outerID string) string {
	return strings.ReplaceAll(innerID, IDPlaceholder, outerID)
}

type namingNode struct {
	id         string
	definition Definition
}

// namingSpace is a detached copy of every component id of a project, keyed by
// owning template ("" for the project view). Mutations are applied to the
// copy and validated before the live model is touched.
type namingSpace map[string][]namingNode

func (s namingSpace) add(view, id string, definition Definition) {
	s[view] = append(s[view], namingNode{id: id, definition: definition})
}

func (s namingSpace) rename(view, id, newID string) {
	nodes := s[view]
	for i := range nodes {
		if nodes[i].id == id {
			nodes[i].id = newID
		}
	}
}

func (s namingSpace) views() []string {
	views := make([]string, 0, len(s))
	for view := range s {
		views = append(views, view)
	}
	sort.Strings(views)
	return views
}

func (p *Project) namingSpace() namingSpace {
	space := make(namingSpace, len(p.templates)+1)
	space[""] = nil
	for _, component := range p.Components() {
		space.add("", component.id, component.definition)
	}
	for id, template := range p.templates {
		space[id] = nil
		for _, component := range template.Components() {
			space.add(id, component.id, component.definition)
		}
	}
	return space
}

// dryRun applies mutate to a copy of the project id space and reports
// whether the result would still be free of template cycles and id collisions.
func (p *Project) dryRun(mutate func(space namingSpace)) error {
	space := p.namingSpace()
	mutate(space)
	if err := space.checkCycles(); err != nil {
		return err
	}
	return space.checkCollisions()
}

func (s namingSpace) checkCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s))
	var visit func(view string, path []string) error
	visit = func(view string, path []string) error {
		switch state[view] {
		case visiting:
			return fmt.Errorf("template %s uses itself through %s: %w", view, strings.Join(append(path, view), " -> "), ErrCircularTemplate)
		case done:
			return nil
		}
		state[view] = visiting
		for _, node := range s[view] {
			if node.definition.Kind != DefinitionTemplate {
				continue
			}
			if _, ok := s[node.definition.ID]; !ok {
				continue
			}
			if err := visit(node.definition.ID, append(path, view)); err != nil {
				return err
			}
		}
		state[view] = done
		return nil
	}
	for _, view := range s.views() {
		if view == "" {
			continue
		}
		if err := visit(view, nil); err != nil {
			return err
		}
	}
	return nil
}

// checkCollisions flattens the project view and every template on its own
// and rejects any flattened id produced twice.
func (s namingSpace) checkCollisions() error {
	for _, view := range s.views() {
		outer := IDPlaceholder
		if view == "" {
			outer = ""
		}
		seen := make(map[string]string)
		if err := s.expand(view, outer, seen); err != nil {
			return err
		}
	}
	return nil
}

func (s namingSpace) expand(view, outerID string, seen map[string]string) error {
	for _, node := range s[view] {
		id := node.id
		if view != "" {
			id = ExpandID(node.id, outerID)
		}
		if node.definition.Kind == DefinitionTemplate {
			if _, ok := s[node.definition.ID]; ok {
				if err := s.expand(node.definition.ID, id, seen); err != nil {
					return err
				}
				continue
			}
		}
		location := view
		if location == "" {
			location = "project"
		}
		if previous, exists := seen[id]; exists {
			return fmt.Errorf("component id %q from %s collides with %s: %w", id, location, previous, ErrDuplicateID)
		}
		seen[id] = location
	}
	return nil
}

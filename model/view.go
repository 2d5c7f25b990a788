package model

import (
	"fmt"
	"sort"

	"github.com/timzifer/coregraph/catalog"
)

// View owns a set of components and the bindings between them. The project
// and every template are views.
//
// Views are not safe for concurrent use.
type View struct {
	project    *Project
	templateID string
	components map[string]*Component
	bindings   map[string]Binding
}

func newView(project *Project, templateID string) *View {
	return &View{
		project:    project,
		templateID: templateID,
		components: make(map[string]*Component),
		bindings:   make(map[string]Binding),
	}
}

// TemplateID returns the owning template, or an empty string for the project view.
func (v *View) TemplateID() string { return v.templateID }

func (v *View) ref(componentID string) ComponentRef {
	return ComponentRef{Template: v.templateID, ID: componentID}
}

func (v *View) describe() string {
	if v.templateID == "" {
		return "project"
	}
	return fmt.Sprintf("template %s", v.templateID)
}

// HasComponent reports whether the component exists in the view.
func (v *View) HasComponent(id string) bool {
	_, ok := v.components[id]
	return ok
}

// Component returns a component of the view.
func (v *View) Component(id string) (*Component, error) {
	component, ok := v.components[id]
	if !ok {
		return nil, fmt.Errorf("%s component %q: %w", v.describe(), id, ErrNotFound)
	}
	return component, nil
}

// ComponentIDs returns the component identifiers in lexical order.
func (v *View) ComponentIDs() []string {
	ids := make([]string, 0, len(v.components))
	for id := range v.components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Components returns the components ordered by identifier.
func (v *View) Components() []*Component {
	ids := v.ComponentIDs()
	components := make([]*Component, 0, len(ids))
	for _, id := range ids {
		components = append(components, v.components[id])
	}
	return components
}

// HasBinding reports whether the binding exists in the view.
func (v *View) HasBinding(id string) bool {
	_, ok := v.bindings[id]
	return ok
}

// Binding returns a binding of the view.
func (v *View) Binding(id string) (Binding, error) {
	binding, ok := v.bindings[id]
	if !ok {
		return Binding{}, fmt.Errorf("%s binding %q: %w", v.describe(), id, ErrNotFound)
	}
	return binding, nil
}

// BindingIDs returns the binding identifiers in lexical order.
func (v *View) BindingIDs() []string {
	ids := make([]string, 0, len(v.bindings))
	for id := range v.bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bindings returns the bindings ordered by identifier.
func (v *View) Bindings() []Binding {
	ids := v.BindingIDs()
	bindings := make([]Binding, 0, len(ids))
	for _, id := range ids {
		bindings = append(bindings, v.bindings[id])
	}
	return bindings
}

// ComponentBindings returns the bindings touching the component.
func (v *View) ComponentBindings(componentID string) []Binding {
	bindings := make([]Binding, 0)
	for _, binding := range v.Bindings() {
		if binding.Touches(componentID) {
			bindings = append(bindings, binding)
		}
	}
	return bindings
}

// ComponentDefinition returns the plugin or template backing a component of the view.
func (v *View) ComponentDefinition(componentID string) (ComponentDefinition, error) {
	component, err := v.Component(componentID)
	if err != nil {
		return nil, err
	}
	return v.project.Definition(component.definition)
}

// CheckComponentID runs the validation SetComponent performs on the id
// without touching the view. The definition does not need to exist yet.
func (v *View) CheckComponentID(id string, definition Definition) error {
	if err := validateComponentID(id); err != nil {
		return err
	}
	if v.HasComponent(id) {
		return fmt.Errorf("%s component %q: %w", v.describe(), id, ErrDuplicateID)
	}
	return v.project.dryRun(func(space namingSpace) {
		space.add(v.templateID, id, definition)
	})
}

// SetComponent creates a component backed by the definition, with the
// definition's default configuration.
func (v *View) SetComponent(id string, definition Definition, x, y float64) (*Component, error) {
	if err := validateComponentID(id); err != nil {
		return nil, err
	}
	if v.HasComponent(id) {
		return nil, fmt.Errorf("%s component %q: %w", v.describe(), id, ErrDuplicateID)
	}
	def, err := v.project.Definition(definition)
	if err != nil {
		return nil, err
	}
	err = v.project.dryRun(func(space namingSpace) {
		space.add(v.templateID, id, definition)
	})
	if err != nil {
		return nil, err
	}

	component := &Component{
		id:         id,
		definition: definition,
		config:     def.ConfigTemplate(),
		position:   Position{X: x, Y: y},
	}
	v.components[id] = component
	def.registerUsage(v.ref(id))
	return component, nil
}

// RenameComponent changes the identifier of a component. Bindings touching
// the component are rebuilt and template exports naming it are rewritten.
func (v *View) RenameComponent(id, newID string) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	if id == newID {
		return nil
	}
	if err := validateComponentID(newID); err != nil {
		return err
	}
	if v.HasComponent(newID) {
		return fmt.Errorf("%s component %q: %w", v.describe(), newID, ErrDuplicateID)
	}
	def, err := v.project.Definition(component.definition)
	if err != nil {
		return err
	}
	err = v.project.dryRun(func(space namingSpace) {
		space.rename(v.templateID, id, newID)
	})
	if err != nil {
		return err
	}

	delete(v.components, id)
	component.id = newID
	v.components[newID] = component
	def.unregisterUsage(v.ref(id))
	def.registerUsage(v.ref(newID))

	for _, binding := range v.ComponentBindings(id) {
		delete(v.bindings, binding.ID())
		renamed := binding.renamed(id, newID)
		v.bindings[renamed.ID()] = renamed
	}

	if template := v.template(); template != nil {
		template.renameExportedComponent(id, newID)
	}
	return nil
}

// ClearComponent removes a component and the bindings touching it. It is
// refused while a template export references the component.
func (v *View) ClearComponent(id string) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	if template := v.template(); template != nil {
		if exports := template.exportsOf(id); len(exports) > 0 {
			return fmt.Errorf("%s component %q is exported as %v: %w", v.describe(), id, exports, ErrInUse)
		}
	}
	def, err := v.project.Definition(component.definition)
	if err != nil {
		return fmt.Errorf("%s component %q: %w", v.describe(), id, err)
	}
	for _, binding := range v.ComponentBindings(id) {
		delete(v.bindings, binding.ID())
	}
	def.unregisterUsage(v.ref(id))
	delete(v.components, id)
	return nil
}

// ConfigureComponent sets one configuration value after type-checking it
// against the component definition.
func (v *View) ConfigureComponent(id, configID string, value any) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	def, err := v.project.Definition(component.definition)
	if err != nil {
		return err
	}
	if err := def.ValidateConfigValue(configID, value); err != nil {
		return fmt.Errorf("%s component %q: %w", v.describe(), id, err)
	}
	component.config[configID] = value
	return nil
}

// ResetComponentConfig sets a configuration value back to the definition default.
func (v *View) ResetComponentConfig(id, configID string) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	def, err := v.project.Definition(component.definition)
	if err != nil {
		return err
	}
	if err := def.EnsureConfig(configID); err != nil {
		return fmt.Errorf("%s component %q: %w", v.describe(), id, err)
	}
	component.config[configID] = def.ConfigTemplate()[configID]
	return nil
}

// ClearComponentConfig removes a configuration key that the definition no longer declares.
func (v *View) ClearComponentConfig(id, configID string) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	def, err := v.project.Definition(component.definition)
	if err != nil {
		return err
	}
	if def.EnsureConfig(configID) == nil {
		return fmt.Errorf("%s component %q config %q is still declared: %w", v.describe(), id, configID, ErrInUse)
	}
	delete(component.config, configID)
	return nil
}

// MoveComponent updates the canvas position.
func (v *View) MoveComponent(id string, x, y float64) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	component.position = Position{X: x, Y: y}
	return nil
}

// SetComponentExternal flags the component as living elsewhere.
func (v *View) SetComponentExternal(id string, external bool) error {
	component, err := v.Component(id)
	if err != nil {
		return err
	}
	component.external = external
	return nil
}

// SetBinding creates a binding after checking both endpoints exist, differ,
// and expose a state and an action of the same value type.
func (v *View) SetBinding(binding Binding) (Binding, error) {
	if err := v.checkBinding(binding); err != nil {
		return Binding{}, err
	}
	if v.HasBinding(binding.ID()) {
		return Binding{}, fmt.Errorf("%s binding %q: %w", v.describe(), binding.ID(), ErrDuplicateBinding)
	}
	v.bindings[binding.ID()] = binding
	return binding, nil
}

// ClearBinding removes a binding.
func (v *View) ClearBinding(id string) error {
	if !v.HasBinding(id) {
		return fmt.Errorf("%s binding %q: %w", v.describe(), id, ErrNotFound)
	}
	delete(v.bindings, id)
	return nil
}

func (v *View) checkBinding(binding Binding) error {
	source, err := v.ComponentDefinition(binding.SourceComponent)
	if err != nil {
		return err
	}
	target, err := v.ComponentDefinition(binding.TargetComponent)
	if err != nil {
		return err
	}
	if binding.SourceComponent == binding.TargetComponent {
		return fmt.Errorf("%s binding %q: %w", v.describe(), binding.ID(), ErrSelfBinding)
	}
	sourceType, err := source.MemberValueType(binding.SourceState, catalog.MemberKindState)
	if err != nil {
		return fmt.Errorf("%s binding %q source: %w", v.describe(), binding.ID(), err)
	}
	targetType, err := target.MemberValueType(binding.TargetAction, catalog.MemberKindAction)
	if err != nil {
		return fmt.Errorf("%s binding %q target: %w", v.describe(), binding.ID(), err)
	}
	if !sourceType.Equal(targetType) {
		return fmt.Errorf("%s binding %q: state is %s but action is %s: %w", v.describe(), binding.ID(), sourceType, targetType, ErrTypeMismatch)
	}
	return nil
}

func (v *View) template() *Template {
	if v.templateID == "" {
		return nil
	}
	return v.project.templates[v.templateID]
}

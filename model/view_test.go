package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/catalog"
)

func switchPlugin(instance, name string) catalog.PluginData {
	return catalog.PluginData{
		InstanceName: instance,
		Module:       "io",
		Name:         name,
		Version:      "1.0.0",
		Usage:        catalog.UsageActuator,
		Members: map[string]catalog.Member{
			"value":    {Kind: catalog.MemberKindState, ValueType: catalog.MustParseValueType("bool")},
			"setValue": {Kind: catalog.MemberKindAction, ValueType: catalog.MustParseValueType("bool")},
		},
		Config: map[string]catalog.ConfigItem{
			"max":   {ValueType: catalog.ConfigTypeInteger},
			"label": {ValueType: catalog.ConfigTypeString},
		},
	}
}

func levelPlugin(instance string) catalog.PluginData {
	return catalog.PluginData{
		InstanceName: instance,
		Module:       "io",
		Name:         "level",
		Version:      "1.0.0",
		Usage:        catalog.UsageSensor,
		Members: map[string]catalog.Member{
			"level": {Kind: catalog.MemberKindState, ValueType: catalog.MustParseValueType("float")},
		},
	}
}

// newSwitchProject builds scenario projects: plugin P on instance I with
// components A and B.
func newSwitchProject(t *testing.T) (*Project, *Plugin) {
	t.Helper()
	project := NewProject()
	plugin, err := project.SetPlugin(switchPlugin("I", "P"))
	require.NoError(t, err)
	_, err = project.SetComponent("A", plugin.Definition(), 0, 0)
	require.NoError(t, err)
	_, err = project.SetComponent("B", plugin.Definition(), 100, 0)
	require.NoError(t, err)
	return project, plugin
}

func TestSetBindingTypeMatched(t *testing.T) {
	project, _ := newSwitchProject(t)

	binding, err := project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)
	require.Equal(t, "A:value:B:setValue", binding.ID())
	require.True(t, project.HasBinding("A:value:B:setValue"))
}

func TestSetBindingRejectsTypeMismatch(t *testing.T) {
	project, _ := newSwitchProject(t)
	level, err := project.SetPlugin(levelPlugin("I"))
	require.NoError(t, err)
	_, err = project.SetComponent("C", level.Definition(), 0, 0)
	require.NoError(t, err)

	_, err = project.SetBinding(Binding{SourceComponent: "C", SourceState: "level", TargetComponent: "B", TargetAction: "setValue"})
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Empty(t, project.BindingIDs())

	// value is a state, not an action
	_, err = project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "value"})
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.Empty(t, project.BindingIDs())
}

func TestSetBindingRejectsInvalidEndpoints(t *testing.T) {
	project, _ := newSwitchProject(t)

	_, err := project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "A", TargetAction: "setValue"})
	require.ErrorIs(t, err, ErrSelfBinding)

	_, err = project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "missing", TargetAction: "setValue"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = project.SetBinding(Binding{SourceComponent: "A", SourceState: "unknown", TargetComponent: "B", TargetAction: "setValue"})
	require.ErrorIs(t, err, ErrNotFound)

	binding := Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"}
	_, err = project.SetBinding(binding)
	require.NoError(t, err)
	_, err = project.SetBinding(binding)
	require.ErrorIs(t, err, ErrDuplicateBinding)
	require.Len(t, project.BindingIDs(), 1)
}

func TestRenameComponentRebuildsBindings(t *testing.T) {
	project, plugin := newSwitchProject(t)
	_, err := project.SetComponent("C", plugin.Definition(), 0, 0)
	require.NoError(t, err)
	_, err = project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)
	_, err = project.SetBinding(Binding{SourceComponent: "B", SourceState: "value", TargetComponent: "C", TargetAction: "setValue"})
	require.NoError(t, err)

	require.NoError(t, project.RenameComponent("A", "A2"))

	require.False(t, project.HasBinding("A:value:B:setValue"))
	require.True(t, project.HasBinding("A2:value:B:setValue"))
	require.True(t, project.HasBinding("B:value:C:setValue"))
	require.Len(t, project.BindingIDs(), 2)
	require.False(t, project.HasComponent("A"))
	require.True(t, project.HasComponent("A2"))
	require.Equal(t, []ComponentRef{{ID: "A2"}, {ID: "B"}, {ID: "C"}}, plugin.Usage())

	require.ErrorIs(t, project.RenameComponent("A2", "B"), ErrDuplicateID)
	require.ErrorIs(t, project.RenameComponent("A2", "x:y"), ErrInvalidID)
}

func TestClearComponentRemovesBindings(t *testing.T) {
	project, plugin := newSwitchProject(t)
	_, err := project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)

	require.NoError(t, project.ClearComponent("B"))
	require.Empty(t, project.BindingIDs())
	require.Equal(t, []ComponentRef{{ID: "A"}}, plugin.Usage())
	require.ErrorIs(t, project.ClearComponent("B"), ErrNotFound)
}

func TestClearComponentReportsMissingDefinition(t *testing.T) {
	project, plugin := newSwitchProject(t)
	_, err := project.SetBinding(Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)
	delete(project.plugins, plugin.ID())

	require.ErrorIs(t, project.ClearComponent("B"), ErrNotFound)
	require.True(t, project.HasComponent("B"))
	require.Equal(t, []string{"A:value:B:setValue"}, project.BindingIDs())
}

func TestComponentConfig(t *testing.T) {
	project, _ := newSwitchProject(t)

	component, err := project.Component("A")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"max": 0, "label": ""}, component.Config())

	require.NoError(t, project.ConfigureComponent("A", "max", 3.0))
	require.ErrorIs(t, project.ConfigureComponent("A", "max", 3.5), ErrInvalidConfig)
	require.ErrorIs(t, project.ConfigureComponent("A", "label", true), ErrInvalidConfig)
	require.ErrorIs(t, project.ConfigureComponent("A", "unknown", 1), ErrNotFound)
	value, ok := component.ConfigValue("max")
	require.True(t, ok)
	require.Equal(t, 3.0, value)

	require.NoError(t, project.ResetComponentConfig("A", "max"))
	value, _ = component.ConfigValue("max")
	require.Equal(t, 0, value)
	require.ErrorIs(t, project.ClearComponentConfig("A", "max"), ErrInUse)

	require.NoError(t, project.MoveComponent("A", 5, 6))
	require.Equal(t, Position{X: 5, Y: 6}, component.Position())
	require.NoError(t, project.SetComponentExternal("A", true))
	require.True(t, component.External())
}

func TestSetComponentValidation(t *testing.T) {
	project, plugin := newSwitchProject(t)

	_, err := project.SetComponent("A", plugin.Definition(), 0, 0)
	require.ErrorIs(t, err, ErrDuplicateID)
	_, err = project.SetComponent("", plugin.Definition(), 0, 0)
	require.ErrorIs(t, err, ErrInvalidID)
	_, err = project.SetComponent("D", PluginDefinition("I:io.missing"), 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = project.SetComponent("D", TemplateDefinition("missing"), 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, []string{"A", "B"}, project.ComponentIDs())
}

package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/model"
)

func switchPlugin() catalog.PluginData {
	return catalog.PluginData{
		InstanceName: "I",
		Module:       "io",
		Name:         "P",
		Version:      "1.0.0",
		Members: map[string]catalog.Member{
			"value":    {Kind: catalog.MemberKindState, ValueType: catalog.MustParseValueType("bool")},
			"setValue": {Kind: catalog.MemberKindAction, ValueType: catalog.MustParseValueType("bool")},
		},
		Config: map[string]catalog.ConfigItem{
			"max": {ValueType: catalog.ConfigTypeInteger},
		},
	}
}

func newProject(t *testing.T) (*model.Project, *model.Plugin) {
	t.Helper()
	project := model.NewProject()
	plugin, err := project.SetPlugin(switchPlugin())
	require.NoError(t, err)
	return project, plugin
}

// newThresholdTemplate builds template T: inner component "{{id}}-X" with
// max exported as threshold and value/setValue exported as out/in.
func newThresholdTemplate(t *testing.T, project *model.Project, plugin *model.Plugin) *model.Template {
	t.Helper()
	template, err := project.SetTemplate("T")
	require.NoError(t, err)
	_, err = template.SetComponent("{{id}}-X", plugin.Definition(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, template.SetExport(model.ExportConfig, "threshold", "{{id}}-X", "max"))
	require.NoError(t, template.SetExport(model.ExportMember, "out", "{{id}}-X", "value"))
	require.NoError(t, template.SetExport(model.ExportMember, "in", "{{id}}-X", "setValue"))
	return template
}

func TestResolveWithoutTemplatesIsIdentity(t *testing.T) {
	project, plugin := newProject(t)
	for _, id := range []string{"A", "B", "C"} {
		_, err := project.SetComponent(id, plugin.Definition(), 0, 0)
		require.NoError(t, err)
	}
	require.NoError(t, project.ConfigureComponent("B", "max", 7))
	require.NoError(t, project.SetComponentExternal("C", true))
	_, err := project.SetBinding(model.Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)

	view, err := Resolve(project)
	require.NoError(t, err)

	require.Equal(t, project.ComponentIDs(), view.ComponentIDs())
	require.Equal(t, project.BindingIDs(), view.BindingIDs())
	for _, component := range project.Components() {
		resolved := view.Components[component.ID()]
		require.Equal(t, component.Config(), resolved.Config)
		require.Equal(t, component.External(), resolved.External)
		require.Equal(t, plugin.ID(), resolved.PluginID)
		require.Equal(t, "I", resolved.InstanceName)
	}
	require.Equal(t, []string{"I"}, view.InstanceNames())
	require.Len(t, view.InstanceComponents("I"), 3)
}

func TestResolveTemplateConfigExport(t *testing.T) {
	project, plugin := newProject(t)
	template := newThresholdTemplate(t, project, plugin)
	_, err := project.SetComponent("Y", template.Definition(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, project.ConfigureComponent("Y", "threshold", 10))

	view, err := Resolve(project)
	require.NoError(t, err)

	require.Equal(t, []string{"Y-X"}, view.ComponentIDs())
	component := view.Components["Y-X"]
	require.Equal(t, map[string]any{"max": 10}, component.Config)
	require.Equal(t, model.ComponentRef{Template: "T", ID: "{{id}}-X"}, component.Origin)

	// resolving twice gives the same result and leaves the project untouched
	again, err := Resolve(project)
	require.NoError(t, err)
	require.Equal(t, view, again)
	require.Equal(t, []string{"Y"}, project.ComponentIDs())
}

func TestResolveInstantiationsAreDisjoint(t *testing.T) {
	project, plugin := newProject(t)
	template := newThresholdTemplate(t, project, plugin)
	_, err := template.SetComponent("{{id}}-Z", plugin.Definition(), 0, 0)
	require.NoError(t, err)
	_, err = template.SetBinding(model.Binding{SourceComponent: "{{id}}-X", SourceState: "value", TargetComponent: "{{id}}-Z", TargetAction: "setValue"})
	require.NoError(t, err)

	for _, id := range []string{"Y1", "Y2"} {
		_, err := project.SetComponent(id, template.Definition(), 0, 0)
		require.NoError(t, err)
	}
	require.NoError(t, project.ConfigureComponent("Y2", "threshold", 3))
	_, err = project.SetBinding(model.Binding{SourceComponent: "Y1", SourceState: "out", TargetComponent: "Y2", TargetAction: "in"})
	require.NoError(t, err)

	view, err := Resolve(project)
	require.NoError(t, err)

	require.Equal(t, []string{"Y1-X", "Y1-Z", "Y2-X", "Y2-Z"}, view.ComponentIDs())
	require.Equal(t, []string{
		"Y1-X:value:Y1-Z:setValue",
		"Y1-X:value:Y2-X:setValue",
		"Y2-X:value:Y2-Z:setValue",
	}, view.BindingIDs())
	require.Equal(t, 0, view.Components["Y1-X"].Config["max"])
	require.Equal(t, 3, view.Components["Y2-X"].Config["max"])
}

func TestResolveNestedTemplates(t *testing.T) {
	project, plugin := newProject(t)
	inner := newThresholdTemplate(t, project, plugin)

	outer, err := project.SetTemplate("outer")
	require.NoError(t, err)
	_, err = outer.SetComponent("{{id}}-in", inner.Definition(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, outer.SetExport(model.ExportConfig, "limit", "{{id}}-in", "threshold"))
	require.NoError(t, outer.SetExport(model.ExportMember, "state", "{{id}}-in", "out"))

	_, err = project.SetComponent("O", outer.Definition(), 0, 0)
	require.NoError(t, err)
	require.NoError(t, project.ConfigureComponent("O", "limit", 42))
	_, err = project.SetComponent("A", plugin.Definition(), 0, 0)
	require.NoError(t, err)
	_, err = project.SetBinding(model.Binding{SourceComponent: "O", SourceState: "state", TargetComponent: "A", TargetAction: "setValue"})
	require.NoError(t, err)
	require.NoError(t, project.SetComponentExternal("O", true))

	view, err := Resolve(project)
	require.NoError(t, err)

	require.Equal(t, []string{"A", "O-in-X"}, view.ComponentIDs())
	require.Equal(t, 42, view.Components["O-in-X"].Config["max"])
	require.True(t, view.Components["O-in-X"].External)
	require.Equal(t, []string{"O-in-X:value:A:setValue"}, view.BindingIDs())
	require.Equal(t, map[string][]string{plugin.ID(): {"A", "O-in-X"}}, view.ComponentsByPlugin())
}

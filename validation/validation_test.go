package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/importer"
	"github.com/timzifer/coregraph/model"
)

func switchPlugin(instance, name string) catalog.PluginData {
	return catalog.PluginData{
		InstanceName: instance,
		Module:       "io",
		Name:         name,
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

func newProject(t *testing.T) *model.Project {
	t.Helper()
	project := model.NewProject()
	for _, data := range []catalog.PluginData{switchPlugin("I", "P"), switchPlugin("I", "Q"), switchPlugin("J", "R")} {
		plugin, err := project.SetPlugin(data)
		require.NoError(t, err)
		_, err = project.SetComponent("on-"+data.Name, plugin.Definition(), 0, 0)
		require.NoError(t, err)
	}
	return project
}

func TestValidateCleanProject(t *testing.T) {
	project := newProject(t)
	registry := catalog.NewMemoryRegistry(importer.ProjectDocument(project))

	items, err := Validate(project, registry, Options{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.False(t, HasErrors(items))
}

func TestValidateReportsDrift(t *testing.T) {
	project := newProject(t)
	changed := switchPlugin("I", "Q")
	changed.Version = "2.0.0"
	delete(changed.Members, "setValue")
	registry := catalog.NewMemoryRegistry(&catalog.Document{
		Plugins: []catalog.PluginData{switchPlugin("J", "R"), changed},
	})

	items, err := Validate(project, registry, Options{OnlineSeverity: SeverityWarning})
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, ItemPluginChanged, items[0].Type)
	require.Equal(t, SeverityWarning, items[0].Severity)
	require.Equal(t, "I:io.Q", items[0].PluginID)
	require.Equal(t, []string{"on-Q"}, items[0].Components)
	require.Len(t, items[0].Members, 1)
	require.Equal(t, "setValue", items[0].Members[0].Name)
	require.Equal(t, importer.OperationDelete, items[0].Members[0].Operation)

	require.Equal(t, ItemPluginDeleted, items[1].Type)
	require.Equal(t, "I:io.P", items[1].PluginID)
	require.Equal(t, []string{"on-P"}, items[1].Components)

	counts := Count(items)
	require.Equal(t, 2, counts[SeverityWarning])
	require.Equal(t, 0, counts[SeverityError])
	require.False(t, HasErrors(items))
}

func TestValidateIgnoresExternalComponents(t *testing.T) {
	project := newProject(t)
	require.NoError(t, project.SetComponentExternal("on-P", true))
	doc := importer.ProjectDocument(project)
	doc.Plugins = doc.Plugins[1:]
	registry := catalog.NewMemoryRegistry(doc)

	items, err := Validate(project, registry, Options{OnlineSeverity: SeverityError})
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestValidateReportsCollisions(t *testing.T) {
	project := newProject(t)
	doc := importer.ProjectDocument(project)
	doc.Components = append(doc.Components[:0], catalog.ComponentData{ID: "on-P", Plugin: "J:io.R"})
	registry := catalog.NewMemoryRegistry(doc)

	items, err := Validate(project, registry, Options{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, ItemComponentCollision, items[0].Type)
	require.Equal(t, SeverityError, items[0].Severity)
	require.Equal(t, "on-P", items[0].ComponentID)
	require.Equal(t, "J", items[0].InstanceName)
	require.True(t, HasErrors(items))
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	_, err := Validate(model.NewProject(), catalog.NewMemoryRegistry(nil), Options{OnlineSeverity: "fatal"})
	require.Error(t, err)
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/config"
	"github.com/timzifer/coregraph/model"
)

func sampleData(t *testing.T) model.ProjectData {
	t.Helper()
	project := model.NewProject()
	plugin, err := project.SetPlugin(catalog.PluginData{
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
	})
	require.NoError(t, err)
	_, err = project.SetComponent("A", plugin.Definition(), 1, 2)
	require.NoError(t, err)
	_, err = project.SetComponent("B", plugin.Definition(), 3, 4)
	require.NoError(t, err)
	_, err = project.SetBinding(model.Binding{SourceComponent: "A", SourceState: "value", TargetComponent: "B", TargetAction: "setValue"})
	require.NoError(t, err)
	require.NoError(t, project.ConfigureComponent("A", "max", 7))
	return project.Data()
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "home")
	require.ErrorIs(t, err, ErrNotFound)

	data := sampleData(t)
	require.NoError(t, s.Save(ctx, "home", data))
	require.NoError(t, s.Save(ctx, "garage", model.ProjectData{}))

	names, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"garage", "home"}, names)

	loaded, err := s.Load(ctx, "home")
	require.NoError(t, err)
	project, err := model.Load(loaded)
	require.NoError(t, err)
	require.True(t, project.HasBinding("A:value:B:setValue"))
	component, err := project.Component("A")
	require.NoError(t, err)
	require.True(t, catalog.EqualValues(7, component.Config()["max"]))

	require.NoError(t, s.Delete(ctx, "garage"))
	require.ErrorIs(t, s.Delete(ctx, "garage"), ErrNotFound)

	names, err = s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"home"}, names)

	require.Error(t, s.Save(ctx, "../escape", data))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Load(cancelled, "home")
	require.ErrorIs(t, err, context.Canceled)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "projects"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	_, err = os.Stat(s.SourceFile("home"))
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "projects"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStoreListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.yaml"), []byte("{}"), 0o600))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "projects.db"), 0)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpenSelectsDriver(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StoreConfig{Driver: config.StoreDriverFile, Path: filepath.Join(dir, "files")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(config.StoreConfig{Driver: config.StoreDriverBolt, Path: filepath.Join(dir, "db", "p.db")})
	require.NoError(t, err)
	require.IsType(t, &BoltStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.StoreConfig{Driver: "sqlite"})
	require.Error(t, err)
}

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("home"))
	for _, name := range []string{"", " ", "a/b", `a\b`, "a:b", "..", ".hidden"} {
		require.Error(t, ValidateName(name), name)
	}
}

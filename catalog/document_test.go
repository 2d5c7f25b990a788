package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCatalog = `plugins:
  - instance_name: core
    module: logic-base
    name: value-binary
    version: 1.0.0
    usage: logic
    members:
      value:
        kind: state
        value_type: bool
      setValue:
        kind: action
        value_type: bool
    config:
      initial:
        value_type: bool
components:
  - id: light
    plugin: core:logic-base.value-binary
    config:
      initial: true
`

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, doc.Plugins, 1)
	require.Len(t, doc.Components, 1)

	plugin := doc.Plugins[0]
	require.Equal(t, "core:logic-base.value-binary", plugin.ID())
	require.Equal(t, MemberKindAction, plugin.Members["setValue"].Kind)
	require.Equal(t, ConfigTypeBool, plugin.Config["initial"].ValueType)
	require.Equal(t, true, doc.Components[0].Config["initial"])
	require.Equal(t, "core", doc.Components[0].InstanceName())
	require.Contains(t, doc.Instances(), "core")
}

func TestDecodeDocumentRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing instance": `plugins:
  - module: m
    name: n
    version: "1"
`,
		"bad member kind": `plugins:
  - instance_name: i
    module: m
    name: n
    version: "1"
    members:
      value:
        kind: output
        value_type: bool
`,
		"bad value type": `plugins:
  - instance_name: i
    module: m
    name: n
    version: "1"
    members:
      value:
        kind: state
        value_type: number
`,
		"unknown field": `components:
  - id: a
    plugin: i:m.n
    color: red
`,
	}
	for name, raw := range cases {
		_, err := DecodeDocument([]byte(raw))
		require.Error(t, err, name)
	}
}

func TestDecodeDocumentRejectsDuplicates(t *testing.T) {
	raw := `components:
  - id: a
    plugin: i:m.n
  - id: a
    plugin: i:m.n
`
	_, err := DecodeDocument([]byte(raw))
	require.ErrorContains(t, err, "duplicate component")
}

func TestDecodeEmptyDocument(t *testing.T) {
	doc, err := DecodeDocument([]byte("  \n"))
	require.NoError(t, err)
	require.Empty(t, doc.Plugins)
}

func TestLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	require.Len(t, doc.Plugins, 1)

	_, err = LoadDocument(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestMemoryRegistry(t *testing.T) {
	doc, err := DecodeDocument([]byte(sampleCatalog))
	require.NoError(t, err)

	registry := NewMemoryRegistry(doc)
	plugin, ok := registry.Plugin("core:logic-base.value-binary")
	require.True(t, ok)
	require.Equal(t, "1.0.0", plugin.Version)
	require.Len(t, registry.Components(), 1)

	registry.Replace(nil)
	_, ok = registry.Plugin("core:logic-base.value-binary")
	require.False(t, ok)
	require.Empty(t, registry.Components())
}

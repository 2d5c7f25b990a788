package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/config"
	"github.com/timzifer/coregraph/service"
)

const catalogDoc = `plugins:
  - instance_name: I
    module: io
    name: P
    version: 1.0.0
    members:
      value: {kind: state, value_type: bool}
      setValue: {kind: action, value_type: bool}
    config:
      max: {value_type: integer}
components:
  - id: A
    plugin: I:io.P
    config: {max: 4}
`

func TestRunImportResolveValidate(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogDoc), 0o600))
	doc, err := catalog.LoadDocument(catalogPath)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "projects")
	srv, err := service.New(cfg, zerolog.Nop(), service.WithRegistry(catalog.NewMemoryRegistry(doc)))
	require.NoError(t, err)
	defer srv.Close()

	ctx := context.Background()
	opts := options{project: "home", apply: true}

	var out bytes.Buffer
	code, err := run(ctx, &out, srv, "init", opts, nil)
	require.NoError(t, err)
	require.Equal(t, 0, code)

	out.Reset()
	code, err = run(ctx, &out, srv, "import", opts, doc)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "plugin:I:io.P")
	require.Contains(t, out.String(), "component:A")
	require.Contains(t, out.String(), "applied:")

	out.Reset()
	code, err = run(ctx, &out, srv, "resolve", opts, nil)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "max: 4")

	out.Reset()
	code, err = run(ctx, &out, srv, "deploy-check", opts, nil)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, "[]\n", out.String())

	code, err = run(ctx, &out, srv, "import", opts, nil)
	require.Error(t, err)
	require.Equal(t, 2, code)

	code, err = run(ctx, &out, srv, "resolve", options{}, nil)
	require.Error(t, err)
	require.Equal(t, 2, code)

	code, err = run(ctx, &out, srv, "unknown", opts, nil)
	require.Error(t, err)
	require.Equal(t, 2, code)
}

func TestExecuteConfigCheck(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, executeConfigCheck(&out, config.Default()))
	require.Contains(t, out.String(), "Configuration check completed successfully.")

	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	require.Equal(t, 1, executeConfigCheck(&out, cfg))
}

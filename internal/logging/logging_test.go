package logging

import (
	"bytes"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/coregraph/config"
)

func TestSetupWriterJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "lab"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	logger, cleanup, err := SetupWriter(&buf, cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("hidden")
	logger.Warn().Str("project", "home").Msg("shown")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"project":"home"`)
	require.Contains(t, out, `"app":"lab"`)
	require.Contains(t, out, `"store":"file"`)
	require.Contains(t, out, `"message":"shown"`)
}

func TestSetupWriterText(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "text"

	var buf bytes.Buffer
	logger, cleanup, err := SetupWriter(&buf, cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("ready")
	require.Contains(t, buf.String(), "ready")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestSetupRejectsInvalidSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "loud"
	_, _, err := SetupWriter(&bytes.Buffer{}, cfg)
	require.Error(t, err)

	cfg = config.Default()
	cfg.Logging.Loki.Enabled = true
	_, _, err = SetupWriter(&bytes.Buffer{}, cfg)
	require.Error(t, err)

	cfg = config.Default()
	cfg.Logging.Loki = config.LokiConfig{Enabled: true, URL: "http://localhost:3100/loki/api/v1/push", Labels: map[string]string{"bad-label": "x"}}
	_, _, err = SetupWriter(&bytes.Buffer{}, cfg)
	require.Error(t, err)
}

func TestStreamLabels(t *testing.T) {
	cfg := config.Default()
	cfg.Name = "lab"
	cfg.Store.Driver = config.StoreDriverBolt

	labels, err := streamLabels(cfg)
	require.NoError(t, err)
	require.Equal(t, model.LabelSet{"app": "lab", "store": "bolt"}, labels)

	cfg.Logging.Loki.Labels = map[string]string{"app": "site", "env": "test"}
	labels, err = streamLabels(cfg)
	require.NoError(t, err)
	require.Equal(t, model.LabelSet{"app": "site", "store": "bolt", "env": "test"}, labels)
}

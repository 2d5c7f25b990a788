package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/timzifer/coregraph/config"
)

// Setup builds the process logger. Output goes to stderr so that command
// output on stdout stays parseable.
func Setup(cfg *config.Config) (zerolog.Logger, func(), error) {
	return SetupWriter(os.Stderr, cfg)
}

// SetupWriter is Setup with an explicit local writer. Every entry carries the
// configured application name and store driver.
func SetupWriter(w io.Writer, cfg *config.Config) (zerolog.Logger, func(), error) {
	if cfg == nil {
		cfg = config.Default()
	}
	level, err := parseLevel(cfg.Logging.Level)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	writers := []io.Writer{localWriter(w, cfg.Logging.Format)}
	cleanup := func() {}
	if cfg.Logging.Loki.Enabled {
		labels, err := streamLabels(cfg)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writer, err := newLokiWriter(cfg.Logging.Loki.URL, labels)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, writer)
		cleanup = writer.client.Stop
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", cfg.Name).
		Str("store", cfg.Store.Driver).
		Logger()
	return logger, cleanup, nil
}

func parseLevel(raw string) (zerolog.Level, error) {
	if raw == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return level, nil
}

func localWriter(w io.Writer, format string) io.Writer {
	if strings.EqualFold(format, "text") {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return w
}

// streamLabels derives the Loki stream labels. Configured labels override
// the app and store defaults.
func streamLabels(cfg *config.Config) (model.LabelSet, error) {
	labels := model.LabelSet{
		"app":   model.LabelValue(cfg.Name),
		"store": model.LabelValue(cfg.Store.Driver),
	}
	for name, value := range cfg.Logging.Loki.Labels {
		label := model.LabelName(name)
		if !label.IsValid() {
			return nil, fmt.Errorf("loki label %q is not a valid label name", name)
		}
		labels[label] = model.LabelValue(value)
	}
	if err := labels.Validate(); err != nil {
		return nil, fmt.Errorf("loki labels: %w", err)
	}
	return labels, nil
}

// lokiWriter ships entries to one stream per log level.
type lokiWriter struct {
	client *loki.Client
	labels model.LabelSet
}

func newLokiWriter(url string, labels model.LabelSet) (*lokiWriter, error) {
	if url == "" {
		return nil, fmt.Errorf("loki url is required")
	}
	lokiCfg, err := loki.NewDefaultConfig(url)
	if err != nil {
		return nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, fmt.Errorf("create loki client: %w", err)
	}
	return &lokiWriter{client: client, labels: labels}, nil
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	return l.WriteLevel(zerolog.NoLevel, p)
}

func (l *lokiWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	labels := l.labels
	if level != zerolog.NoLevel {
		labels = labels.Merge(model.LabelSet{"level": model.LabelValue(level.String())})
	}
	return len(p), l.client.Handle(labels, time.Now(), entry)
}

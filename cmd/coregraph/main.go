package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/config"
	"github.com/timzifer/coregraph/importer"
	"github.com/timzifer/coregraph/internal/logging"
	"github.com/timzifer/coregraph/service"
	"github.com/timzifer/coregraph/telemetry"
	"github.com/timzifer/coregraph/validation"
)

const usage = `usage: coregraph [flags] <command>

commands:
  init          create an empty project
  resolve       print the flattened components and bindings
  validate      check the project against the live catalog (-catalog)
  deploy-check  validate with the deploy severity
  import        diff a catalog (-catalog) against the project, apply with -apply
  watch         reload projects edited on disk until interrupted
  check-config  validate the configuration file and exit

flags:
`

type options struct {
	configPath  string
	project     string
	catalogPath string
	filter      string
	apply       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.project, "project", "", "Project name")
	flag.StringVar(&opts.catalogPath, "catalog", "", "Catalog document (YAML)")
	flag.StringVar(&opts.filter, "select", "", "Change selection expression for import")
	flag.BoolVar(&opts.apply, "apply", false, "Apply the selected import changes")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(execute(flag.Arg(0), opts))
}

func execute(command string, opts options) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	if command == "check-config" {
		return executeConfigCheck(os.Stdout, cfg)
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to setup logger")
		return 1
	}
	defer cleanup()
	log.Logger = logger

	collector, err := newTelemetryCollector(cfg.Telemetry)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		collector = telemetry.Noop()
	}

	registry := catalog.NewMemoryRegistry(nil)
	var doc *catalog.Document
	if opts.catalogPath != "" {
		doc, err = catalog.LoadDocument(opts.catalogPath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load catalog")
			return 1
		}
		registry.Replace(doc)
	}

	srv, err := service.New(cfg, logger, service.WithRegistry(registry), service.WithTelemetry(collector))
	if err != nil {
		logger.Error().Err(err).Msg("failed to create service")
		return 1
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code, err := run(ctx, os.Stdout, srv, command, opts, doc)
	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("command failed")
		if code == 0 {
			code = 1
		}
	}
	return code
}

func run(ctx context.Context, out io.Writer, srv *service.Service, command string, opts options, doc *catalog.Document) (int, error) {
	if command != "watch" && opts.project == "" {
		return 2, errors.New("-project is required")
	}
	switch command {
	case "init":
		return 0, srv.Create(ctx, opts.project)
	case "resolve":
		view, err := srv.Resolve(ctx, opts.project)
		if err != nil {
			return 1, err
		}
		return 0, writeYAML(out, view)
	case "validate", "deploy-check":
		var items []validation.Item
		var err error
		if command == "validate" {
			items, err = srv.Validate(ctx, opts.project)
		} else {
			items, err = srv.CheckDeploy(ctx, opts.project)
		}
		if err != nil && !errors.Is(err, service.ErrDeployBlocked) {
			return 1, err
		}
		if werr := writeYAML(out, items); werr != nil {
			return 1, werr
		}
		if validation.HasErrors(items) {
			return 1, nil
		}
		return 0, nil
	case "import":
		if doc == nil {
			return 2, errors.New("-catalog is required for import")
		}
		return runImport(ctx, out, srv, opts, doc)
	case "watch":
		err := srv.Run(ctx, time.Second)
		if errors.Is(err, context.Canceled) {
			return 0, nil
		}
		return 1, err
	default:
		return 2, fmt.Errorf("unknown command %q", command)
	}
}

type importReport struct {
	Changes  []importer.ObjectChange `yaml:"changes"`
	Selected []string                `yaml:"selected"`
	Applied  *importer.Stats         `yaml:"applied,omitempty"`
}

func runImport(ctx context.Context, out io.Writer, srv *service.Service, opts options, doc *catalog.Document) (int, error) {
	result, err := srv.PrepareImport(ctx, opts.project, doc)
	if err != nil {
		return 1, err
	}
	selected, err := srv.SelectImport(result, opts.filter)
	if err != nil {
		return 1, err
	}
	report := importReport{Changes: result.Changes, Selected: selected}
	if opts.apply {
		stats, err := srv.ApplyImport(ctx, opts.project, selected)
		if err != nil {
			return 1, err
		}
		report.Applied = &stats
	}
	return 0, writeYAML(out, report)
}

func writeYAML(out io.Writer, value any) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(value); err != nil {
		return err
	}
	return encoder.Close()
}

func executeConfigCheck(out io.Writer, cfg *config.Config) int {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}
	source := cfg.Source
	if source == "" {
		source = "<defaults>"
	}
	fmt.Fprintf(out, "Configuration %s\n", source)
	fmt.Fprintf(out, "  Name: %s\n", cfg.Name)
	fmt.Fprintf(out, "  Store: %s (%s, timeout %s)\n", cfg.Store.Driver, cfg.Store.Path, cfg.StoreTimeout())
	fmt.Fprintf(out, "  Validation: online %s, deploy %s\n", cfg.Validation.OnlineSeverity, cfg.Validation.DeploySeverity)
	if filter := strings.TrimSpace(cfg.Import.Filter); filter != "" {
		fmt.Fprintf(out, "  Import filter: %s\n", filter)
	}
	fmt.Fprintln(out, "Configuration check completed successfully.")
	return 0
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

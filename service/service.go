package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/coregraph/catalog"
	"github.com/timzifer/coregraph/config"
	"github.com/timzifer/coregraph/importer"
	"github.com/timzifer/coregraph/internal/reload"
	"github.com/timzifer/coregraph/model"
	"github.com/timzifer/coregraph/resolver"
	"github.com/timzifer/coregraph/store"
	"github.com/timzifer/coregraph/telemetry"
	"github.com/timzifer/coregraph/validation"
)

var (
	// ErrExists is returned by Create for a name already in the store.
	ErrExists = errors.New("project already exists")
	// ErrNoImport is returned by ApplyImport when no import was prepared
	// against the current state of the project.
	ErrNoImport = errors.New("no prepared import")
	// ErrDeployBlocked is returned by CheckDeploy when validation reports
	// error-severity items.
	ErrDeployBlocked = errors.New("deploy blocked by validation errors")
)

// Service serializes access to projects: one writer per project, the model
// cached in memory and written back to the store after every mutation.
type Service struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     store.Store
	ownsStore bool
	registry  catalog.Registry
	telemetry telemetry.Collector
	watcher   *reload.Watcher
	files     *store.FileStore

	mu       sync.Mutex
	projects map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	project  *model.Project
	prepared *importer.ServerData
}

type options struct {
	store     store.Store
	registry  catalog.Registry
	telemetry telemetry.Collector
}

// Option customises the service dependencies.
type Option func(*options)

// WithStore replaces the store built from the configuration. The caller
// keeps ownership and closes it.
func WithStore(s store.Store) Option {
	return func(o *options) {
		if o == nil || s == nil {
			return
		}
		o.store = s
	}
}

// WithRegistry sets the live catalog consulted by validation.
func WithRegistry(registry catalog.Registry) Option {
	return func(o *options) {
		if o == nil || registry == nil {
			return
		}
		o.registry = registry
	}
}

// WithTelemetry sets the metrics collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(o *options) {
		if o == nil || collector == nil {
			return
		}
		o.telemetry = collector
	}
}

// New builds a service from configuration and dependencies.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	svc := &Service{
		cfg:       cfg,
		logger:    logger.With().Str("component", "service").Logger(),
		store:     o.store,
		registry:  o.registry,
		telemetry: o.telemetry,
		projects:  make(map[string]*entry),
	}
	if svc.store == nil {
		s, err := store.Open(cfg.Store)
		if err != nil {
			return nil, err
		}
		svc.store = s
		svc.ownsStore = true
	}
	if svc.registry == nil {
		svc.registry = catalog.NewMemoryRegistry(nil)
	}
	if svc.telemetry == nil {
		svc.telemetry = telemetry.Noop()
	}
	if files, ok := svc.store.(*store.FileStore); ok && cfg.Store.Watch {
		watcher, err := reload.NewWatcher()
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.files = files
		svc.watcher = watcher
	}
	return svc, nil
}

// Close releases the store when the service opened it.
func (s *Service) Close() error {
	if s == nil || !s.ownsStore || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Projects lists the stored project names.
func (s *Service) Projects(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

func (s *Service) entry(name string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.projects[name]
	if !ok {
		e = &entry{}
		s.projects[name] = e
	}
	return e
}

// load returns the cached project, reading it from the store on first use.
// The entry lock must be held.
func (s *Service) load(ctx context.Context, name string, e *entry) (*model.Project, error) {
	if e.project != nil {
		return e.project, nil
	}
	data, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	project, err := model.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", name, err)
	}
	e.project = project
	e.prepared = nil
	s.track(name)
	return project, nil
}

func (s *Service) save(ctx context.Context, name string, project *model.Project) error {
	if err := s.store.Save(ctx, name, project.Data()); err != nil {
		return err
	}
	s.track(name)
	return nil
}

func (s *Service) track(name string) {
	if s.watcher == nil {
		return
	}
	s.watcher.Track(s.files.SourceFile(name))
}

// Create stores a new empty project.
func (s *Service) Create(ctx context.Context, name string) error {
	if err := store.ValidateName(name); err != nil {
		return err
	}
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := s.store.Load(ctx, name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrExists, name)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	project := model.NewProject()
	if err := s.save(ctx, name, project); err != nil {
		return err
	}
	e.project = project
	e.prepared = nil
	s.telemetry.IncMutation("create-project")
	s.logger.Info().Str("project", name).Msg("project created")
	return nil
}

// Delete removes a project from the store and the cache.
func (s *Service) Delete(ctx context.Context, name string) error {
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	e.project = nil
	e.prepared = nil
	s.telemetry.IncMutation("delete-project")
	s.logger.Info().Str("project", name).Msg("project deleted")
	return nil
}

// Update runs fn with exclusive access to the project and persists the
// result. When fn or the save fails the cached model is dropped so that the
// next access reads the last stored state again.
func (s *Service) Update(ctx context.Context, name, operation string, fn func(*model.Project) error) error {
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	project, err := s.load(ctx, name, e)
	if err != nil {
		return err
	}
	if err := fn(project); err != nil {
		e.project = nil
		e.prepared = nil
		s.logger.Debug().Err(err).Str("project", name).Str("operation", operation).Msg("mutation rejected")
		return err
	}
	if err := s.save(ctx, name, project); err != nil {
		e.project = nil
		e.prepared = nil
		return err
	}
	e.prepared = nil
	s.telemetry.IncMutation(operation)
	s.logger.Debug().Str("project", name).Str("operation", operation).Msg("mutation committed")
	return nil
}

// View runs fn with the project locked. fn must not mutate the project.
func (s *Service) View(ctx context.Context, name string, fn func(*model.Project) error) error {
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	project, err := s.load(ctx, name, e)
	if err != nil {
		return err
	}
	return fn(project)
}

// Resolve returns the flattened deployable view of a project.
func (s *Service) Resolve(ctx context.Context, name string) (*resolver.View, error) {
	var view *resolver.View
	err := s.View(ctx, name, func(project *model.Project) error {
		resolved, err := resolver.Resolve(project)
		if err != nil {
			return err
		}
		view = resolved
		return nil
	})
	return view, err
}

// Validate checks a project against the live catalog with the configured
// online severity.
func (s *Service) Validate(ctx context.Context, name string) ([]validation.Item, error) {
	return s.validate(ctx, name, validation.Severity(s.cfg.Validation.OnlineSeverity))
}

// CheckDeploy validates with the deploy severity and fails with
// ErrDeployBlocked when an item has error severity.
func (s *Service) CheckDeploy(ctx context.Context, name string) ([]validation.Item, error) {
	items, err := s.validate(ctx, name, validation.Severity(s.cfg.Validation.DeploySeverity))
	if err != nil {
		return nil, err
	}
	if validation.HasErrors(items) {
		return items, fmt.Errorf("%w: %s", ErrDeployBlocked, name)
	}
	return items, nil
}

func (s *Service) validate(ctx context.Context, name string, severity validation.Severity) ([]validation.Item, error) {
	var items []validation.Item
	err := s.View(ctx, name, func(project *model.Project) error {
		result, err := validation.Validate(project, s.registry, validation.Options{OnlineSeverity: severity})
		if err != nil {
			return err
		}
		items = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	for severity, count := range validation.Count(items) {
		s.telemetry.SetValidationIssues(string(severity), count)
	}
	s.logger.Debug().Str("project", name).Int("items", len(items)).Msg("project validated")
	return items, nil
}

// PrepareImport diffs a catalog document against the project and keeps the
// update set for ApplyImport. Any later mutation discards it.
func (s *Service) PrepareImport(ctx context.Context, name string, doc *catalog.Document) (*importer.Result, error) {
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	project, err := s.load(ctx, name, e)
	if err != nil {
		return nil, err
	}
	result, err := importer.PrepareChanges(doc, project)
	if err != nil {
		return nil, err
	}
	e.prepared = result.ServerData
	s.logger.Info().Str("project", name).Int("changes", len(result.Changes)).Msg("import prepared")
	return result, nil
}

// ApplyImport applies the selected change keys of the prepared import.
func (s *Service) ApplyImport(ctx context.Context, name string, selection []string) (importer.Stats, error) {
	e := s.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.prepared == nil || e.project == nil {
		return importer.Stats{}, fmt.Errorf("%w: %s", ErrNoImport, name)
	}
	project := e.project
	stats, err := importer.ApplyUpdates(e.prepared, selection, importer.ProjectAPI(project))
	e.prepared = nil
	if err != nil {
		e.project = nil
		return stats, err
	}
	if stats.Total() > 0 {
		if err := s.save(ctx, name, project); err != nil {
			e.project = nil
			return stats, err
		}
	}
	s.telemetry.IncMutation("import")
	s.telemetry.AddImportApplied("plugins", stats.Plugins)
	s.telemetry.AddImportApplied("components", stats.Components)
	s.telemetry.AddImportApplied("templates", stats.Templates)
	s.telemetry.AddImportApplied("bindings", stats.Bindings)
	s.logger.Info().
		Str("project", name).
		Int("plugins", stats.Plugins).
		Int("components", stats.Components).
		Int("templates", stats.Templates).
		Int("bindings", stats.Bindings).
		Msg("import applied")
	return stats, nil
}

// SelectImport resolves a selection expression against prepared changes and
// closes it over dependencies. An empty filter falls back to the configured
// default filter.
func (s *Service) SelectImport(result *importer.Result, filter string) ([]string, error) {
	if result == nil {
		return nil, nil
	}
	if strings.TrimSpace(filter) == "" {
		filter = s.cfg.Import.Filter
	}
	keys, err := importer.SelectChanges(result.Changes, filter)
	if err != nil {
		return nil, err
	}
	return importer.ExpandSelection(result.Changes, keys), nil
}

// Reload drops cached projects whose record changed on disk since the
// service last read or wrote it, and returns their names. It does nothing
// unless the file store is watched.
func (s *Service) Reload() ([]string, error) {
	if s.watcher == nil {
		return nil, nil
	}
	changed, err := s.watcher.Check()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(changed))
	for _, path := range changed {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		e := s.entry(name)
		e.mu.Lock()
		e.project = nil
		e.prepared = nil
		e.mu.Unlock()
		s.watcher.Track(path)
		names = append(names, name)
		s.telemetry.IncMutation("reload")
		s.logger.Info().Str("project", name).Str("file", path).Msg("project changed on disk, cache dropped")
	}
	sort.Strings(names)
	return names, nil
}

// Run polls for on-disk project changes until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Reload(); err != nil {
				s.logger.Error().Err(err).Msg("failed to check project changes")
			}
		}
	}
}

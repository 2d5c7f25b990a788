// Package store persists project records. A record is written back as a
// whole after every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timzifer/coregraph/config"
	"github.com/timzifer/coregraph/model"
)

// ErrNotFound is returned when no record exists under the given name.
var ErrNotFound = errors.New("project not found")

// Store loads and saves project records by name.
type Store interface {
	Load(ctx context.Context, name string) (model.ProjectData, error)
	Save(ctx context.Context, name string, data model.ProjectData) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateName rejects names that cannot be used as a file name or key.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("project name must not be empty")
	}
	if strings.ContainsAny(name, `/\:`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid project name %q", name)
	}
	return nil
}

// Open builds the store selected by the configuration.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverFile, "":
		return NewFileStore(cfg.Path)
	case config.StoreDriverBolt:
		return OpenBolt(cfg.Path, cfg.Timeout.Duration)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

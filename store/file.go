package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/coregraph/model"
)

const fileExt = ".yaml"

// FileStore keeps one YAML document per project inside a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// SourceFile returns the path of the record of a project.
func (s *FileStore) SourceFile(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, name string) (model.ProjectData, error) {
	if err := ValidateName(name); err != nil {
		return model.ProjectData{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.ProjectData{}, err
	}
	raw, err := os.ReadFile(s.SourceFile(name))
	if errors.Is(err, fs.ErrNotExist) {
		return model.ProjectData{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return model.ProjectData{}, fmt.Errorf("read project %s: %w", name, err)
	}
	var data model.ProjectData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return model.ProjectData{}, fmt.Errorf("decode project %s: %w", name, err)
	}
	return data, nil
}

// Save implements Store. The document is written to a temporary file and
// renamed over the previous record.
func (s *FileStore) Save(ctx context.Context, name string, data model.ProjectData) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode project %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write project %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close project %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.SourceFile(name)); err != nil {
		return fmt.Errorf("replace project %s: %w", name, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.SourceFile(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return err
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), fileExt)
		if ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

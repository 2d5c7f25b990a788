package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/coregraph/model"
)

var projectsBucket = []byte("projects")

// BoltStore keeps every project as a YAML value in a single bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the database file. Timeout bounds the wait for
// the file lock held by another process.
func OpenBolt(path string, timeout time.Duration) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("bolt path must not be empty")
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(projectsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load implements Store.
func (s *BoltStore) Load(ctx context.Context, name string) (model.ProjectData, error) {
	if err := ValidateName(name); err != nil {
		return model.ProjectData{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.ProjectData{}, err
	}
	var data model.ProjectData
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(projectsBucket).Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode project %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return model.ProjectData{}, err
	}
	return data, nil
}

// Save implements Store.
func (s *BoltStore) Save(ctx context.Context, name string, data model.ProjectData) error {
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
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(projectsBucket).Put([]byte(name), raw)
	})
}

// Delete implements Store.
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(projectsBucket)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return b.Delete([]byte(name))
	})
}

// List implements Store. Keys come back in byte order.
func (s *BoltStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	names := make([]string, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(projectsBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

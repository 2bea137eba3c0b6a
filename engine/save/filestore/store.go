// Package filestore keeps saves as JSON files in a directory.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nathoo/talecore/engine/save"
)

const ext = ".json"

// Store implements save.Store on the local filesystem.
type Store struct {
	Dir string
}

// New creates a store rooted at dir. An empty dir defaults to "saves".
func New(dir string) *Store {
	if dir == "" {
		dir = "saves"
	}
	return &Store{Dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name+ext)
}

// Save writes the save atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, name string, sd *save.SaveData) error {
	if err := save.ValidateName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating save directory: %w", err)
	}
	data, err := save.Marshal(sd)
	if err != nil {
		return fmt.Errorf("encoding save: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "tmp-"+name+"-*"+ext)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Windows cannot rename over an existing file.
	dest := s.path(name)
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("replacing existing save: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Load reads a save by name.
func (s *Store) Load(ctx context.Context, name string) (*save.SaveData, error) {
	if err := save.ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", save.ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading save: %w", err)
	}
	return save.Unmarshal(data)
}

// Delete removes a save. Deleting a missing save is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := save.ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting save: %w", err)
	}
	return nil
}

// List returns save names in sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing saves: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || filepath.Ext(n) != ext || strings.HasPrefix(n, "tmp-") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ext))
	}
	sort.Strings(names)
	return names, nil
}

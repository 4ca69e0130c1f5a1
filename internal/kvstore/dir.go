package kvstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// interrupted writes leave files with this prefix behind
const tmpPrefix = ".tmp-"

// DirStore keeps one file per record in a single directory.
type DirStore struct {
	dir    string
	logger *logrus.Logger
}

// NewDirStore opens (creating if needed) a directory-backed store.
func NewDirStore(dir string, logger *logrus.Logger) (*DirStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir store: empty path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dir store: mkdir %s: %w", dir, err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &DirStore{dir: dir, logger: logger}, nil
}

func (s *DirStore) List(pattern *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("dir store: list %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		if pattern == nil || pattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("dir store: read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces the record atomically through a temp file and rename.
func (s *DirStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, tmpPrefix+name+"-*")
	if err != nil {
		return fmt.Errorf("dir store: create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("dir store: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("dir store: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("dir store: rename %s: %w", name, err)
	}

	s.logger.WithFields(logrus.Fields{"record": name, "bytes": len(data)}).Debug("Record written")
	return nil
}

func (s *DirStore) Erase(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("dir store: erase %s: %w", name, err)
	}
	return nil
}

func (s *DirStore) Close() error { return nil }

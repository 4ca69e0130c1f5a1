// Package kvstore provides the flat, name-keyed record store that holds the
// device configuration. Records are opaque byte blobs; lookups by name pattern
// mirror the listing semantics of small flash filesystems.
package kvstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind names a store backend.
type Kind string

const (
	KindDir    Kind = "dir"
	KindSQLite Kind = "sqlite"
	KindMemory Kind = "memory"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrInvalidName = errors.New("invalid record name")
)

// Store is a persistent record store.
//
// Write creates or replaces a record. Callers that need create-if-absent
// semantics check List first; the device is the only writer.
type Store interface {
	List(pattern *regexp.Regexp) ([]string, error)
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Erase(name string) error
	Close() error
}

// Open creates the store backend named by kind. The path is a directory for
// KindDir, a database file for KindSQLite and ignored for KindMemory.
func Open(kind Kind, path string, logger *logrus.Logger) (Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch kind {
	case KindDir:
		return NewDirStore(path, logger)
	case KindSQLite:
		return NewSQLiteStore(path, logger)
	case KindMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q (must be dir, sqlite or memory)", kind)
	}
}

// validateName rejects names that cannot be stored as a flat file name.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// PatternFor compiles name as an unanchored regular expression. Names that are
// not valid expressions are matched literally.
func PatternFor(name string) *regexp.Regexp {
	if re, err := regexp.Compile(name); err == nil {
		return re
	}
	return regexp.MustCompile(regexp.QuoteMeta(name))
}

package kvstore

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cornelk/hashmap"
)

// MemStore is a process-local store, used for bench runs and tests.
type MemStore struct {
	records *hashmap.Map[string, []byte]
}

func NewMemStore() *MemStore {
	return &MemStore{records: hashmap.New[string, []byte]()}
}

func (s *MemStore) List(pattern *regexp.Regexp) ([]string, error) {
	var names []string
	s.records.Range(func(name string, _ []byte) bool {
		if pattern == nil || pattern.MatchString(name) {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names, nil
}

func (s *MemStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, ok := s.records.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.records.Set(name, append([]byte(nil), data...))
	return nil
}

func (s *MemStore) Erase(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !s.records.Del(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *MemStore) Close() error { return nil }

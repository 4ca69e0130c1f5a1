package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore keeps records in a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens the database at path and ensures the schema exists.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: empty path")
	}
	if logger == nil {
		logger = logrus.New()
	}

	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// single writer; the device is the only client
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func sqliteDSN(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("sqlite store: mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path), nil
}

func (s *SQLiteStore) List(pattern *regexp.Regexp) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite store: list scan: %w", err)
		}
		if pattern == nil || pattern.MatchString(name) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list: %w", err)
	}
	return names, nil
}

func (s *SQLiteStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM records WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: read %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLiteStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO records (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: write %s: %w", name, err)
	}
	s.logger.WithFields(logrus.Fields{"record": name, "bytes": len(data)}).Debug("Record written")
	return nil
}

func (s *SQLiteStore) Erase(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM records WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite store: erase %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Package characteristic holds the ordered characteristic table: the single
// source of truth for what the radio layer currently advertises.
package characteristic

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ID identifies a characteristic: the characteristic UUID in lowercase hex
// without dashes ("2a19", "34defd2cc8fe...").
type ID string

func IDFromUUID(u ble.UUID) ID {
	return ID(strings.ReplaceAll(strings.ToLower(u.String()), "-", ""))
}

// ParseID accepts any UUID spelling ble.Parse understands.
func ParseID(s string) (ID, error) {
	u, err := ble.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid characteristic uuid %q: %w", s, err)
	}
	return IDFromUUID(u), nil
}

// UUID parses the identifier back into a ble.UUID.
func (id ID) UUID() (ble.UUID, error) {
	return ble.Parse(string(id))
}

// Record is the value record of one characteristic.
type Record struct {
	Value       []byte
	Readable    bool
	Writable    bool
	Notify      bool
	Description string
}

func (r Record) clone() Record {
	r.Value = append([]byte(nil), r.Value...)
	return r
}

// Patch changes part of a record. A nil Value or Notify leaves the field as is.
type Patch struct {
	Value  []byte
	Notify *bool
}

// Entry is one row of a table snapshot.
type Entry struct {
	ID ID
	Record
}

// MarshalJSON renders the entry with a hex encoded value.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UUID        string `json:"uuid"`
		Value       string `json:"value"`
		Readable    bool   `json:"readable"`
		Writable    bool   `json:"writable"`
		Notify      bool   `json:"notify"`
		Description string `json:"description,omitempty"`
	}{
		UUID:        string(e.ID),
		Value:       hex.EncodeToString(e.Value),
		Readable:    e.Readable,
		Writable:    e.Writable,
		Notify:      e.Notify,
		Description: e.Description,
	})
}

// Table is an insertion-ordered mapping from ID to Record.
//
// The table is owned by the control loop and is not safe for concurrent use.
// Once sealed (at first publish) no entries may be added.
type Table struct {
	entries *orderedmap.OrderedMap[ID, *Record]
	sealed  bool
	logger  *logrus.Logger
}

func NewTable(logger *logrus.Logger) *Table {
	if logger == nil {
		logger = logrus.New()
	}
	return &Table{
		entries: orderedmap.New[ID, *Record](),
		logger:  logger,
	}
}

// Add inserts a new entry. Adding to a sealed table or re-adding an existing
// id is a precondition violation and leaves the table untouched.
func (t *Table) Add(id ID, rec Record) bool {
	if t.sealed {
		violation(t.logger, "add after publish", id)
		return false
	}
	if _, exists := t.entries.Get(id); exists {
		violation(t.logger, "duplicate add", id)
		return false
	}
	r := rec.clone()
	t.entries.Set(id, &r)
	return true
}

// Update applies patch to an existing entry. Updating an id that was never
// added is a precondition violation and leaves the table untouched.
func (t *Table) Update(id ID, patch Patch) bool {
	rec, ok := t.entries.Get(id)
	if !ok {
		violation(t.logger, "update of unknown characteristic", id)
		return false
	}
	if patch.Value != nil {
		rec.Value = append([]byte(nil), patch.Value...)
	}
	if patch.Notify != nil {
		rec.Notify = *patch.Notify
	}
	return true
}

// Set replaces the value of an existing entry.
func (t *Table) Set(id ID, value []byte) bool {
	return t.Update(id, Patch{Value: value})
}

// Get returns a copy of the record stored under id.
func (t *Table) Get(id ID) (Record, bool) {
	rec, ok := t.entries.Get(id)
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Snapshot returns a deep copy of all entries in insertion order.
func (t *Table) Snapshot() []Entry {
	out := make([]Entry, 0, t.entries.Len())
	for pair := t.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Entry{ID: pair.Key, Record: pair.Value.clone()})
	}
	return out
}

func (t *Table) Len() int {
	return t.entries.Len()
}

// Seal freezes the set of entries. Values can still be updated.
func (t *Table) Seal() {
	t.sealed = true
}

func (t *Table) Sealed() bool {
	return t.sealed
}

func violation(logger *logrus.Logger, what string, id ID) {
	msg := fmt.Sprintf("characteristic table: %s (%s)", what, id)
	if strictPreconditions {
		panic(msg)
	}
	logger.WithField("uuid", id).Error(msg)
}

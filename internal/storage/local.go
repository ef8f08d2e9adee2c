package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Fixed keys of the local store. Each key is one JSON file holding an array of rows.
const (
	KeyClients       = "widget-clients"
	KeyScripts       = "widget-scripts"
	KeyConversations = "widget-conversations"

	// KeyLegacyScripts is the earlier layout: one JSON object keyed by script id.
	KeyLegacyScripts = "chatbot-scripts"
)

var tableKeys = map[Table]string{
	TableClients:       KeyClients,
	TableScripts:       KeyScripts,
	TableConversations: KeyConversations,
}

// LocalStore persists rows as JSON arrays in files under a data directory.
// Writes go through a temp file and a rename so a crash never leaves a torn file.
type LocalStore struct {
	dir        string
	numericIDs bool
	now        func() time.Time

	locks sync.Map // key -> *sync.RWMutex
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithNumericIDs makes Create generate digits-only ids.
func WithNumericIDs(enabled bool) LocalOption {
	return func(s *LocalStore) {
		s.numericIDs = enabled
	}
}

// WithClock overrides the time source used for ids.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStore) {
		s.now = now
	}
}

// NewLocalStore creates the data directory if needed.
func NewLocalStore(dir string, opts ...LocalOption) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: data dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	s := &LocalStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *LocalStore) lock(key string) *sync.RWMutex {
	v, _ := s.locks.LoadOrStore(key, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func keyFor(table Table) (string, error) {
	key, ok := tableKeys[table]
	if !ok {
		return "", fmt.Errorf("storage: unknown table %q", table)
	}
	return key, nil
}

// Create appends row and returns its generated id.
func (s *LocalStore) Create(_ context.Context, table Table, row Row) (string, error) {
	key, err := keyFor(table)
	if err != nil {
		return "", err
	}
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	rows, err := s.readRows(key)
	if err != nil {
		return "", fmt.Errorf("storage: Create: %w", err)
	}
	id := s.newID()
	stored := row.Clone()
	stored[FieldID] = id
	rows = append(rows, stored)
	if err := s.writeJSON(key, rows); err != nil {
		return "", fmt.Errorf("storage: Create: %w", err)
	}
	return id, nil
}

// List returns every row of table in insertion order.
func (s *LocalStore) List(_ context.Context, table Table) ([]Row, error) {
	key, err := keyFor(table)
	if err != nil {
		return nil, err
	}
	mu := s.lock(key)
	mu.RLock()
	defer mu.RUnlock()

	rows, err := s.readRows(key)
	if err != nil {
		return nil, fmt.Errorf("storage: List: %w", err)
	}
	return rows, nil
}

// Get returns the row with id or ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, table Table, id string) (Row, error) {
	rows, err := s.List(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.String(FieldID) == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Update merges partial into the row with id.
func (s *LocalStore) Update(_ context.Context, table Table, id string, partial Row) error {
	key, err := keyFor(table)
	if err != nil {
		return err
	}
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	rows, err := s.readRows(key)
	if err != nil {
		return fmt.Errorf("storage: Update: %w", err)
	}
	idx := indexOf(rows, id)
	if idx < 0 {
		return ErrNotFound
	}
	for k, v := range partial {
		if k == FieldID {
			continue
		}
		rows[idx][k] = v
	}
	if err := s.writeJSON(key, rows); err != nil {
		return fmt.Errorf("storage: Update: %w", err)
	}
	return nil
}

// Delete removes the row with id.
func (s *LocalStore) Delete(_ context.Context, table Table, id string) error {
	key, err := keyFor(table)
	if err != nil {
		return err
	}
	mu := s.lock(key)
	mu.Lock()
	defer mu.Unlock()

	rows, err := s.readRows(key)
	if err != nil {
		return fmt.Errorf("storage: Delete: %w", err)
	}
	idx := indexOf(rows, id)
	if idx < 0 {
		return ErrNotFound
	}
	rows = append(rows[:idx], rows[idx+1:]...)
	if err := s.writeJSON(key, rows); err != nil {
		return fmt.Errorf("storage: Delete: %w", err)
	}
	return nil
}

// LegacyScripts reads the earlier single-object layout. A missing key yields
// an empty map.
func (s *LocalStore) LegacyScripts() (map[string]json.RawMessage, error) {
	mu := s.lock(KeyLegacyScripts)
	mu.RLock()
	defer mu.RUnlock()

	raw, err := os.ReadFile(s.path(KeyLegacyScripts))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read legacy scripts: %w", err)
	}
	out := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("storage: decode legacy scripts: %w", err)
	}
	return out, nil
}

// PutLegacyScript writes one entry in the legacy layout. Only seeding and
// tests write there; the service itself never does.
func (s *LocalStore) PutLegacyScript(id string, entry any) error {
	mu := s.lock(KeyLegacyScripts)
	mu.Lock()
	defer mu.Unlock()

	out := map[string]any{}
	raw, err := os.ReadFile(s.path(KeyLegacyScripts))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("storage: read legacy scripts: %w", err)
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("storage: decode legacy scripts: %w", err)
		}
	}
	out[id] = entry
	return s.writeJSON(KeyLegacyScripts, out)
}

func (s *LocalStore) newID() string {
	if s.numericIDs {
		return newNumericID(s.now())
	}
	return newLocalID(s.now())
}

func (s *LocalStore) readRows(key string) ([]Row, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []Row{}, nil
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return rows, nil
}

func (s *LocalStore) writeJSON(key string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	full := s.path(key)
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func indexOf(rows []Row, id string) int {
	for i, r := range rows {
		if r.String(FieldID) == id {
			return i
		}
	}
	return -1
}

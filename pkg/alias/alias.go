package alias

import (
	"encoding/json"
	"sync"
)

// SenderTable maps transport sender ids to display usernames.
type SenderTable struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewSenderTable() *SenderTable {
	return &SenderTable{m: make(map[string]string)}
}

// Register records a sender id -> username mapping. Empty ids are ignored;
// an empty username never replaces a known one.
func (t *SenderTable) Register(id, username string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if username == "" {
		if _, ok := t.m[id]; ok {
			return
		}
	}
	t.m[id] = username
}

// Lookup returns the username for id and whether an entry exists.
func (t *SenderTable) Lookup(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[id]
	return v, ok
}

func (t *SenderTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// ThreadTable maps any of the several observed thread identifiers to a
// display name. The empty string is a sentinel meaning "a group thread
// without a configured name"; it is distinct from a missing key, which
// means the thread was never registered (probably a direct/1:1 thread).
// The resolver depends on that distinction.
type ThreadTable struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewThreadTable() *ThreadTable {
	return &ThreadTable{m: make(map[string]string)}
}

// Register records a thread id -> display name mapping. The sentinel
// empty name never replaces a known non-empty name, so replaying a
// snapshot after live traffic (or vice versa) is idempotent.
func (t *ThreadTable) Register(id, name string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if name == "" {
		if existing, ok := t.m[id]; ok && existing != "" {
			return
		}
	}
	t.m[id] = name
}

// RegisterIfAbsent records the mapping only when id has no entry at all.
// Used for guessed names (e.g. a scraped heading): a guess must never
// overwrite a known name or the group sentinel.
func (t *ThreadTable) RegisterIfAbsent(id, name string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; ok {
		return
	}
	t.m[id] = name
}

// Lookup returns the display name for id and whether an entry exists.
// A (""; true) result is the unnamed-group sentinel.
func (t *ThreadTable) Lookup(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[id]
	return v, ok
}

func (t *ThreadTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// pairs serializes a table as a JSON array of [key, value] pairs.
func pairs(m map[string]string) ([]byte, error) {
	out := make([][2]string, 0, len(m))
	for k, v := range m {
		out = append(out, [2]string{k, v})
	}
	return json.Marshal(out)
}

func fromPairs(b []byte) (map[string]string, error) {
	var in [][2]string
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(in))
	for _, p := range in {
		if p[0] == "" {
			continue
		}
		m[p[0]] = p[1]
	}
	return m, nil
}

// MarshalPairs serializes the sender table for persistence.
func (t *SenderTable) MarshalPairs() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return pairs(t.m)
}

// LoadPairs replaces the table contents from serialized pairs.
func (t *SenderTable) LoadPairs(b []byte) error {
	m, err := fromPairs(b)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = m
	return nil
}

// MarshalPairs serializes the thread table for persistence.
func (t *ThreadTable) MarshalPairs() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return pairs(t.m)
}

// LoadPairs replaces the table contents from serialized pairs.
func (t *ThreadTable) LoadPairs(b []byte) error {
	m, err := fromPairs(b)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = m
	return nil
}

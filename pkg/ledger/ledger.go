package ledger

import (
	"encoding/json"
	"sort"
	"sync"

	"msgledger/pkg/logger"
	"msgledger/pkg/models"
	"msgledger/pkg/store"
	"msgledger/pkg/telemetry"
)

// Ledger is the append-mostly, persisted collection of resolved
// deleted-message records, keyed by message id and kept in insertion
// order. Reads sort by deletion time; the ledger itself does not maintain
// sort order.
type Ledger struct {
	mu    sync.RWMutex
	order []string
	m     map[string]models.DeletedMessage
}

func New() *Ledger {
	return &Ledger{m: make(map[string]models.DeletedMessage)}
}

// Load restores the ledger from the store. An absent or unparsable record
// loads as an empty ledger.
func (l *Ledger) Load() {
	b, err := store.GetKey(store.KeyLedger)
	if err != nil {
		if !store.IsNotFound(err) {
			logger.Warn("ledger_read_failed", "error", err)
		}
		return
	}
	var entries []models.DeletedMessage
	if err := json.Unmarshal(b, &entries); err != nil {
		logger.Warn("ledger_load_failed", "error", err)
		return
	}
	l.mu.Lock()
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, ok := l.m[e.ID]; !ok {
			l.order = append(l.order, e.ID)
		}
		l.m[e.ID] = e
	}
	n := len(l.m)
	l.mu.Unlock()
	telemetry.LedgerSize.Set(float64(n))
	logger.Info("ledger_loaded", "entries", n)
}

// Append adds a resolved deletion record exactly once per message id and
// persists the full collection, fire-and-forget. Reports whether the
// record was appended.
func (l *Ledger) Append(rec models.DeletedMessage) bool {
	if rec.ID == "" {
		return false
	}
	l.mu.Lock()
	if _, ok := l.m[rec.ID]; ok {
		l.mu.Unlock()
		return false
	}
	l.m[rec.ID] = rec
	l.order = append(l.order, rec.ID)
	n := len(l.m)
	l.mu.Unlock()
	telemetry.LedgerAppends.Inc()
	telemetry.LedgerSize.Set(float64(n))
	l.Persist()
	return true
}

// Remove deletes an entry (user-initiated) and re-persists. Reports
// whether the entry existed.
func (l *Ledger) Remove(id string) bool {
	l.mu.Lock()
	if _, ok := l.m[id]; !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.m, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	n := len(l.m)
	l.mu.Unlock()
	telemetry.LedgerSize.Set(float64(n))
	l.Persist()
	return true
}

// Get returns the stored entry for id, if present.
func (l *Ledger) Get(id string) (models.DeletedMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.m[id]
	return e, ok
}

// Entries returns a copy of all records sorted by deletion time, newest
// first.
func (l *Ledger) Entries() []models.DeletedMessage {
	l.mu.RLock()
	out := make([]models.DeletedMessage, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.m[id])
	}
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DeletedAt > out[j].DeletedAt })
	return out
}

// Len returns the number of ledger entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.m)
}

// Persist serializes the full collection in insertion order and writes it
// to the store. Failures are counted and logged; the in-memory ledger
// stays authoritative for the session. A crash between a mutation and
// this write loses at most one event.
func (l *Ledger) Persist() {
	l.mu.RLock()
	entries := make([]models.DeletedMessage, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, l.m[id])
	}
	l.mu.RUnlock()
	b, err := json.Marshal(entries)
	if err != nil {
		telemetry.PersistFailures.WithLabelValues("ledger").Inc()
		logger.Warn("ledger_marshal_failed", "error", err)
		return
	}
	if err := store.SaveKey(store.KeyLedger, b); err != nil {
		telemetry.PersistFailures.WithLabelValues("ledger").Inc()
		logger.Warn("ledger_persist_failed", "error", err)
	}
}

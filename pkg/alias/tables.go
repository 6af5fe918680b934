package alias

import (
	"sync"

	"msgledger/pkg/logger"
	"msgledger/pkg/store"
	"msgledger/pkg/telemetry"
)

// Tables bundles the two alias tables and the viewer identity, the three
// persisted namespaces that enrich deletion attribution. It is an
// explicitly owned state object injected into the components that share
// it, rather than ambient package globals.
type Tables struct {
	Senders *SenderTable
	Threads *ThreadTable

	viewerMu sync.RWMutex
	viewer   string
}

func NewTables() *Tables {
	return &Tables{Senders: NewSenderTable(), Threads: NewThreadTable()}
}

// SetViewer records the local viewer's transport id, learned
// opportunistically from the snapshot feed. Empty values are ignored.
func (t *Tables) SetViewer(id string) {
	if id == "" {
		return
	}
	t.viewerMu.Lock()
	t.viewer = id
	t.viewerMu.Unlock()
}

// Viewer returns the viewer transport id, or "" when never learned.
func (t *Tables) Viewer() string {
	t.viewerMu.RLock()
	defer t.viewerMu.RUnlock()
	return t.viewer
}

// Load restores both tables and the viewer identity from the store.
// Absent or unparsable records load as empty state.
func (t *Tables) Load() {
	if b, err := store.GetKey(store.KeySenderAlias); err == nil {
		if err := t.Senders.LoadPairs(b); err != nil {
			logger.Warn("sender_alias_load_failed", "error", err)
		}
	} else if !store.IsNotFound(err) {
		logger.Warn("sender_alias_read_failed", "error", err)
	}
	if b, err := store.GetKey(store.KeyThreadAlias); err == nil {
		if err := t.Threads.LoadPairs(b); err != nil {
			logger.Warn("thread_alias_load_failed", "error", err)
		}
	} else if !store.IsNotFound(err) {
		logger.Warn("thread_alias_read_failed", "error", err)
	}
	if b, err := store.GetKey(store.KeyViewer); err == nil {
		t.SetViewer(string(b))
	}
	logger.Info("alias_tables_loaded",
		"senders", t.Senders.Len(),
		"threads", t.Threads.Len(),
		"viewer_known", t.Viewer() != "")
}

// Persist writes both tables and the viewer identity to the store.
// Fire-and-forget: failures are counted and logged, in-memory state stays
// authoritative for the session.
func (t *Tables) Persist() {
	if b, err := t.Senders.MarshalPairs(); err == nil {
		if err := store.SaveKey(store.KeySenderAlias, b); err != nil {
			telemetry.PersistFailures.WithLabelValues("alias_sender").Inc()
			logger.Warn("sender_alias_persist_failed", "error", err)
		}
	}
	if b, err := t.Threads.MarshalPairs(); err == nil {
		if err := store.SaveKey(store.KeyThreadAlias, b); err != nil {
			telemetry.PersistFailures.WithLabelValues("alias_thread").Inc()
			logger.Warn("thread_alias_persist_failed", "error", err)
		}
	}
	if v := t.Viewer(); v != "" {
		if err := store.SaveKey(store.KeyViewer, []byte(v)); err != nil {
			telemetry.PersistFailures.WithLabelValues("viewer").Inc()
			logger.Warn("viewer_persist_failed", "error", err)
		}
	}
}

package snapshot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"msgledger/pkg/alias"
	"msgledger/pkg/cache"
	"msgledger/pkg/logger"
	"msgledger/pkg/models"
	"msgledger/pkg/telemetry"
)

// Wire shapes for the directory snapshot. Every field is optional; a
// malformed thread or message is skipped without aborting the rest.
type payload struct {
	ViewerID string   `json:"viewer_id"`
	Threads  []thread `json:"threads"`
}

type thread struct {
	// Two distinct thread id fields are common and not guaranteed equal.
	ID   string `json:"thread_id"`
	FBID string `json:"thread_fbid"`
	Key  string `json:"thread_key"`
	// Name distinguishes three states: absent (probably a 1:1 thread),
	// present-but-empty (unnamed group), and a configured group name.
	Name         *string       `json:"name"`
	Participants []participant `json:"participants"`
	Messages     []message     `json:"messages"`
}

type participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type message struct {
	ID       string `json:"id"`
	Snippet  string `json:"snippet"`
	TS       int64  `json:"timestamp_ms"`
	SenderID string `json:"sender_id"`
	// Kind marks previews with no text payload (attachment, reaction,
	// call events); those are skipped.
	Kind string `json:"kind"`
}

// Ingestor seeds the alias tables and the message cache from directory
// snapshots. It races with live traffic over both; the race is resolved
// by never overwriting live or known data with snapshot guesses, which
// makes the merge commutative and idempotent regardless of arrival order.
type Ingestor struct {
	tables *alias.Tables
	cache  *cache.Cache
}

func New(tables *alias.Tables, c *cache.Cache) *Ingestor {
	return &Ingestor{tables: tables, cache: c}
}

// Ingest parses one raw snapshot body and merges it into the shared
// state. Only a top-level parse failure is an error; per-item problems
// are skipped and counted.
func (ing *Ingestor) Ingest(body []byte) error {
	var snap payload
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("snapshot parse failed: %w", err)
	}

	ing.tables.SetViewer(snap.ViewerID)

	now := time.Now().UnixMilli()
	for _, th := range snap.Threads {
		ing.ingestThread(th, now)
		// alias data is cheap and valuable; flush after every thread so a
		// mid-snapshot crash keeps what was already learned
		ing.tables.Persist()
	}
	logger.Info("snapshot_ingested",
		"threads", len(snap.Threads),
		"senders", ing.tables.Senders.Len(),
		"thread_aliases", ing.tables.Threads.Len())
	return nil
}

func (ing *Ingestor) ingestThread(th thread, now int64) {
	candidates := threadCandidates(th)
	if len(candidates) == 0 {
		telemetry.SnapshotSkipped.Inc()
		return
	}
	telemetry.SnapshotThreads.Inc()

	named := th.Name != nil && *th.Name != ""
	// present-but-empty name, or more than two participants: a group
	// thread without a configured name, registered under the sentinel
	group := (th.Name != nil && *th.Name == "") || len(th.Participants) > 2
	switch {
	case named:
		for _, id := range candidates {
			ing.tables.Threads.Register(id, *th.Name)
		}
	case group:
		for _, id := range candidates {
			ing.tables.Threads.Register(id, "")
		}
	}
	// otherwise: looks like a direct/1:1 thread; absence of an entry is
	// what tells the resolver so, register nothing

	for _, p := range th.Participants {
		ing.tables.Senders.Register(p.ID, firstNonEmpty(p.Username, p.Name))
	}

	for _, m := range th.Messages {
		ing.ingestMessage(m, candidates, now)
	}
}

func (ing *Ingestor) ingestMessage(m message, threadAliases []string, now int64) {
	if m.ID == "" {
		telemetry.SnapshotSkipped.Inc()
		return
	}
	switch m.Kind {
	case "attachment", "reaction", "call_event":
		telemetry.SnapshotSkipped.Inc()
		return
	}
	text := ing.previewText(m)
	if text == "" {
		telemetry.SnapshotSkipped.Inc()
		return
	}
	rec := models.ActiveMessage{
		ID:            m.ID,
		Text:          text,
		TS:            m.TS,
		SenderAlias:   m.SenderID,
		ThreadAliases: append([]string(nil), threadAliases...),
		Origin:        models.OriginSnapshot,
		StoredAt:      now,
	}
	// a live-sourced record is strictly more complete; never replace it
	if ing.cache.PutIfAbsent(rec) {
		telemetry.SnapshotMessages.Inc()
	}
}

func threadCandidates(th thread) []string {
	var out []string
	add := func(v string) {
		if v == "" {
			return
		}
		for _, c := range out {
			if c == v {
				return
			}
		}
		out = append(out, v)
	}
	add(th.ID)
	add(th.FBID)
	add(th.Key)
	return out
}

// previewText drops the leading "username: " decoration the directory
// feed puts on message previews, but only when the prefix matches the
// sender's known username. A preview whose own text happens to contain
// ": " keeps its head.
func (ing *Ingestor) previewText(m message) string {
	u, ok := ing.tables.Senders.Lookup(m.SenderID)
	if ok && u != "" && strings.HasPrefix(m.Snippet, u+": ") {
		return m.Snippet[len(u)+2:]
	}
	return m.Snippet
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

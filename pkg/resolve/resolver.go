package resolve

import (
	"strings"
	"time"

	"msgledger/pkg/alias"
	"msgledger/pkg/models"
)

// HeadingProbe reports a freshly observed thread heading, best-effort.
type HeadingProbe func() (string, bool)

// LocationProbe reports the viewer's current navigation path, best-effort.
type LocationProbe func() (string, bool)

// Resolver reconstructs human-readable attribution for deletion events by
// probing the alias tables under every known identifier alias. Every
// method is best-effort and total: missing data degrades to raw
// identifiers or "Unknown", never to an error.
type Resolver struct {
	tables   *alias.Tables
	heading  HeadingProbe
	location LocationProbe
}

func New(tables *alias.Tables, heading HeadingProbe, location LocationProbe) *Resolver {
	if heading == nil {
		heading = func() (string, bool) { return "", false }
	}
	if location == nil {
		location = func() (string, bool) { return "", false }
	}
	return &Resolver{tables: tables, heading: heading, location: location}
}

// ThreadName resolves a display name from candidate thread identifiers,
// in order. The first candidate with any table entry wins; the
// empty-string sentinel means an unnamed group, shown by its id. With no
// entry anywhere the raw first candidate is used, then "Unknown".
func (r *Resolver) ThreadName(candidates ...string) string {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		name, ok := r.tables.Threads.Lookup(c)
		if !ok {
			continue
		}
		if name == "" {
			// registered but unnamed group: show the id itself
			return c
		}
		return name
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "Unknown"
}

// DeletedBy resolves the deleting party from the original sender alias.
// Computed at read time, not write time, because alias data may still
// arrive after the ledger entry was written.
func (r *Resolver) DeletedBy(senderAlias string) string {
	if senderAlias == "" {
		return "Unknown"
	}
	if viewer := r.tables.Viewer(); viewer != "" && senderAlias == viewer {
		if u, ok := r.tables.Senders.Lookup(viewer); ok && u != "" {
			return "you (" + u + ")"
		}
		return "you"
	}
	if u, ok := r.tables.Senders.Lookup(senderAlias); ok && u != "" {
		return u
	}
	return senderAlias
}

// Resolve builds the ledger record for a deletion delta that matched the
// still-live record rec. deltaThread is the deletion delta's own thread
// identifier. Candidate order: delta thread id, the cached record's
// primary and secondary thread fields, a freshly probed heading, and a
// path-derived identifier from the current navigation location.
func (r *Resolver) Resolve(rec models.ActiveMessage, deltaThread string, deletedAt time.Time) models.DeletedMessage {
	candidates := make([]string, 0, 5)
	add := func(v string) {
		if v == "" {
			return
		}
		for _, c := range candidates {
			if c == v {
				return
			}
		}
		candidates = append(candidates, v)
	}
	add(deltaThread)
	for _, a := range rec.ThreadAliases {
		add(a)
	}
	if h, ok := r.heading(); ok {
		add(h)
	}
	if p, ok := r.location(); ok {
		add(pathID(p))
	}

	return models.DeletedMessage{
		ID:            rec.ID,
		Text:          rec.Text,
		TS:            rec.TS,
		DeletedAt:     deletedAt.UnixMilli(),
		ThreadName:    r.ThreadName(candidates...),
		ThreadAliases: candidates,
		SenderAlias:   rec.SenderAlias,
	}
}

// ResolvedDeletion is the read-side view of a ledger entry with the
// attribution fields recomputed against the current alias tables.
type ResolvedDeletion struct {
	ID         string   `json:"id"`
	Text       string   `json:"text,omitempty"`
	TS         int64    `json:"ts_ms,omitempty"`
	DeletedAt  int64    `json:"deleted_at_ms"`
	ThreadName string   `json:"thread_display_name"`
	Aliases    []string `json:"thread_aliases,omitempty"`
	DeletedBy  string   `json:"deleted_by"`
}

// Render recomputes display attribution for ledger entries at read time.
// A stored raw-id fallback name upgrades silently once the alias tables
// learn the real name.
func (r *Resolver) Render(entries []models.DeletedMessage) []ResolvedDeletion {
	out := make([]ResolvedDeletion, 0, len(entries))
	for _, e := range entries {
		name := r.ThreadName(e.ThreadAliases...)
		if name == "Unknown" && e.ThreadName != "" {
			name = e.ThreadName
		}
		out = append(out, ResolvedDeletion{
			ID:         e.ID,
			Text:       e.Text,
			TS:         e.TS,
			DeletedAt:  e.DeletedAt,
			ThreadName: name,
			Aliases:    e.ThreadAliases,
			DeletedBy:  r.DeletedBy(e.SenderAlias),
		})
	}
	return out
}

// pathID extracts a thread identifier from a navigation path like
// "/direct/t/12345/" by taking the last non-empty segment.
func pathID(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	return p
}

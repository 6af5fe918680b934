package snapshot

import (
	"testing"
	"time"

	"msgledger/pkg/alias"
	"msgledger/pkg/cache"
	"msgledger/pkg/models"
	"msgledger/pkg/store"
)

func setup(t *testing.T) (*alias.Tables, *cache.Cache, *Ingestor) {
	t.Helper()
	if !store.Ready() {
		if err := store.Open(t.TempDir()); err != nil {
			t.Fatalf("store.Open: %v", err)
		}
	}
	tables := alias.NewTables()
	c := cache.New(100, time.Hour)
	return tables, c, New(tables, c)
}

const snapBody = `{
  "viewer_id": "me-1",
  "threads": [
    {
      "thread_id": "t1",
      "thread_fbid": "fb1",
      "name": "Team Chat",
      "participants": [
        {"id": "s1", "username": "alice"},
        {"id": "s2", "username": "bob"}
      ],
      "messages": [
        {"id": "m1", "snippet": "alice: hello there", "timestamp_ms": 100, "sender_id": "s1"},
        {"id": "m2", "snippet": "bob shared a photo", "timestamp_ms": 200, "sender_id": "s2", "kind": "attachment"}
      ]
    },
    {
      "thread_id": "g1",
      "thread_key": "gk1",
      "name": "",
      "participants": [
        {"id": "s1", "username": "alice"},
        {"id": "s2", "username": "bob"},
        {"id": "s3", "username": "carol"}
      ],
      "messages": []
    },
    {
      "thread_id": "d1",
      "participants": [
        {"id": "s4", "username": "dave"},
        {"id": "me-1", "username": "me"}
      ],
      "messages": [
        {"id": "m3", "snippet": "dave: direct hello", "timestamp_ms": 300, "sender_id": "s4"}
      ]
    }
  ]
}`

func TestIngestRegistersAliasesAndSeedsCache(t *testing.T) {
	tables, c, ing := setup(t)
	if err := ing.Ingest([]byte(snapBody)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// both candidate ids of a named thread map to the same name
	for _, id := range []string{"t1", "fb1"} {
		if name, ok := tables.Threads.Lookup(id); !ok || name != "Team Chat" {
			t.Fatalf("thread alias %s: %q %v", id, name, ok)
		}
	}

	// unnamed group: sentinel entry under every candidate id
	for _, id := range []string{"g1", "gk1"} {
		name, ok := tables.Threads.Lookup(id)
		if !ok {
			t.Fatalf("group alias %s should have a sentinel entry", id)
		}
		if name != "" {
			t.Fatalf("group alias %s should be the sentinel, got %q", id, name)
		}
	}

	// direct thread: registered nowhere
	if _, ok := tables.Threads.Lookup("d1"); ok {
		t.Fatalf("direct thread must have no entry")
	}

	if u, _ := tables.Senders.Lookup("s1"); u != "alice" {
		t.Fatalf("sender alias: %q", u)
	}
	if tables.Viewer() != "me-1" {
		t.Fatalf("viewer: %q", tables.Viewer())
	}

	// m1 seeded with the sender prefix stripped; m2 (attachment) skipped
	got, ok := c.Get("m1")
	if !ok {
		t.Fatalf("m1 not seeded")
	}
	if got.Text != "hello there" {
		t.Fatalf("sender prefix not stripped: %q", got.Text)
	}
	if got.Origin != models.OriginSnapshot {
		t.Fatalf("origin: %q", got.Origin)
	}
	if _, ok := c.Get("m2"); ok {
		t.Fatalf("attachment preview should be skipped")
	}
	if _, ok := c.Get("m3"); !ok {
		t.Fatalf("m3 not seeded")
	}
}

func TestIngestIdempotent(t *testing.T) {
	tables, c, ing := setup(t)
	if err := ing.Ingest([]byte(snapBody)); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	before, _ := c.Get("m1")
	threadsBefore := tables.Threads.Len()

	if err := ing.Ingest([]byte(snapBody)); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	after, _ := c.Get("m1")
	if after.Text != before.Text || after.Origin != before.Origin {
		t.Fatalf("re-ingest changed the record: %+v vs %+v", before, after)
	}
	if tables.Threads.Len() != threadsBefore {
		t.Fatalf("re-ingest grew the thread table: %d vs %d", tables.Threads.Len(), threadsBefore)
	}
}

func TestIngestNeverOverwritesLiveRecord(t *testing.T) {
	// live before snapshot
	_, c1, ing1 := setup(t)
	live := models.ActiveMessage{ID: "m1", Text: "live text", Origin: models.OriginLive, StoredAt: 1}
	c1.Put(live)
	if err := ing1.Ingest([]byte(snapBody)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	got, _ := c1.Get("m1")
	if got.Text != "live text" || got.Origin != models.OriginLive {
		t.Fatalf("snapshot overwrote live record: %+v", got)
	}

	// snapshot before live: live replaces via Put, same end state
	_, c2, ing2 := setup(t)
	if err := ing2.Ingest([]byte(snapBody)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c2.Put(live)
	got2, _ := c2.Get("m1")
	if got2.Text != "live text" || got2.Origin != models.OriginLive {
		t.Fatalf("live record did not win: %+v", got2)
	}
}

func TestIngestSkipsMalformedItems(t *testing.T) {
	tables, c, ing := setup(t)
	body := `{"threads":[
	  {"participants":[{"id":"s1","username":"alice"}]},
	  {"thread_id":"ok1","name":"Survivor","messages":[
	    {"snippet":"no id here"},
	    {"id":"m9","snippet":"x: kept","timestamp_ms":1,"sender_id":"s1"}
	  ]}
	]}`
	if err := ing.Ingest([]byte(body)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if name, ok := tables.Threads.Lookup("ok1"); !ok || name != "Survivor" {
		t.Fatalf("later thread should survive earlier malformed one: %q %v", name, ok)
	}
	if _, ok := c.Get("m9"); !ok {
		t.Fatalf("valid message after malformed one should be seeded")
	}
}

func TestPreviewPrefixStripRequiresSenderMatch(t *testing.T) {
	_, c, ing := setup(t)
	body := `{"threads":[
	  {"thread_id":"t1","name":"Chat","participants":[{"id":"s1","username":"alice"}],
	   "messages":[
	     {"id":"p1","snippet":"alice: hello","timestamp_ms":1,"sender_id":"s1"},
	     {"id":"p2","snippet":"note: details","timestamp_ms":2,"sender_id":"s1"},
	     {"id":"p3","snippet":"bob: hi","timestamp_ms":3,"sender_id":"s-unknown"}
	   ]}
	]}`
	if err := ing.Ingest([]byte(body)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, _ := c.Get("p1")
	if got.Text != "hello" {
		t.Fatalf("matching sender prefix not stripped: %q", got.Text)
	}
	// ": " inside the message's own text is not sender decoration
	got, _ = c.Get("p2")
	if got.Text != "note: details" {
		t.Fatalf("non-sender prefix was stripped: %q", got.Text)
	}
	// unknown sender: nothing to match against, keep the whole preview
	got, _ = c.Get("p3")
	if got.Text != "bob: hi" {
		t.Fatalf("prefix stripped without a known sender: %q", got.Text)
	}
}

func TestIngestRejectsUnparsableBody(t *testing.T) {
	_, _, ing := setup(t)
	if err := ing.Ingest([]byte("not json at all")); err == nil {
		t.Fatalf("expected top-level parse error")
	}
}

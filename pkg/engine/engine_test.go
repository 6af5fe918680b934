package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"msgledger/pkg/alias"
	"msgledger/pkg/cache"
	"msgledger/pkg/frame"
	"msgledger/pkg/ledger"
	"msgledger/pkg/resolve"
	"msgledger/pkg/store"
)

type fixture struct {
	eng    *Engine
	cache  *cache.Cache
	tables *alias.Tables
	ledger *ledger.Ledger
	res    *resolve.Resolver
}

func newFixture(t *testing.T, capacity int, heading resolve.HeadingProbe) *fixture {
	t.Helper()
	if !store.Ready() {
		if err := store.Open(t.TempDir()); err != nil {
			t.Fatalf("store.Open: %v", err)
		}
	}
	tables := alias.NewTables()
	c := cache.New(capacity, time.Hour)
	led := ledger.New()
	res := resolve.New(tables, heading, nil)
	eng := New(Options{
		Decoder:  frame.NewDecoder("deltas"),
		Cache:    c,
		Tables:   tables,
		Resolver: res,
		Ledger:   led,
		Heading:  heading,
	})
	// deterministic monotonic clock so insertion order is unambiguous
	var tick int64
	base := time.UnixMilli(1_700_000_000_000)
	eng.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return &fixture{eng: eng, cache: c, tables: tables, ledger: led, res: res}
}

func decode(t *testing.T, f *fixture, raw string) []frame.Envelope {
	t.Helper()
	envs, ok := frame.NewDecoder("deltas").Decode([]byte(raw))
	if !ok {
		t.Fatalf("decode failed for %q", raw)
	}
	return envs
}

func TestNewMessageThenDeletion(t *testing.T) {
	f := newFixture(t, 100, nil)

	f.eng.Process(decode(t, f, `{"deltas":[{"class":"NewMessage","id":"m1","text":"hi","sender":"s1","thread":"t1","timestamp":100}]}`))
	rec, ok := f.cache.Get("m1")
	if !ok {
		t.Fatalf("m1 not cached")
	}
	if rec.Text != "hi" || rec.SenderAlias != "s1" {
		t.Fatalf("cached record: %+v", rec)
	}
	if len(rec.ThreadAliases) != 1 || rec.ThreadAliases[0] != "t1" {
		t.Fatalf("thread aliases: %v", rec.ThreadAliases)
	}

	f.eng.Process(decode(t, f, `{"deltas":[{"class":"DeleteMessage","message_id":"m1","thread_fbid":"t1"}]}`))
	if _, ok := f.cache.Get("m1"); ok {
		t.Fatalf("deleted message still in cache")
	}
	entry, ok := f.ledger.Get("m1")
	if !ok {
		t.Fatalf("deletion not recorded")
	}
	if entry.Text != "hi" {
		t.Fatalf("captured text: %q", entry.Text)
	}
	// no alias data yet: raw-id fallbacks at write time
	if entry.ThreadName != "t1" || entry.SenderAlias != "s1" {
		t.Fatalf("write-time fallbacks: %+v", entry)
	}

	// alias data arriving later upgrades the rendered view
	f.tables.Threads.Register("t1", "Team Chat")
	f.tables.Senders.Register("s1", "alice")
	views := f.res.Render(f.ledger.Entries())
	if views[0].ThreadName != "Team Chat" || views[0].DeletedBy != "alice" {
		t.Fatalf("read-time view: %+v", views[0])
	}
}

func TestDeletionWithoutLiveRecordIsNoOp(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"DeleteMessage","message_id":"never-seen"}]}`))
	if f.ledger.Len() != 0 {
		t.Fatalf("ledger grew for an uncorrelated deletion")
	}
}

func TestDeletionRecordedOncePerID(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"NewMessage","id":"m1","text":"hi","sender":"s1","thread":"t1"}]}`))
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"DeleteMessage","message_id":"m1"}]}`))
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"DeleteMessage","message_id":"m1"}]}`))
	if f.ledger.Len() != 1 {
		t.Fatalf("ledger len = %d", f.ledger.Len())
	}
}

func TestCapacityEvictionThroughPipeline(t *testing.T) {
	f := newFixture(t, 3, nil)
	for i := 1; i <= 4; i++ {
		f.eng.Process(decode(t, f,
			fmt.Sprintf(`{"deltas":[{"class":"NewMessage","id":"m%d","text":"x","thread":"t1"}]}`, i)))
	}
	if _, ok := f.cache.Get("m1"); ok {
		t.Fatalf("oldest record should have been evicted")
	}
	for _, id := range []string{"m2", "m3", "m4"} {
		if _, ok := f.cache.Get(id); !ok {
			t.Fatalf("%s should be resident", id)
		}
	}

	// deleting the evicted id is silent, not an error
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"DeleteMessage","message_id":"m1"}]}`))
	if f.ledger.Len() != 0 {
		t.Fatalf("eviction miss still produced a ledger entry")
	}
}

func TestHeadingGuessOnlyWhenUnknown(t *testing.T) {
	heading := func() (string, bool) { return "Rendered Heading", true }
	f := newFixture(t, 100, heading)

	f.eng.Process(decode(t, f, `{"deltas":[{"class":"NewMessage","id":"m1","text":"x","thread":"t-new"}]}`))
	if name, _ := f.tables.Threads.Lookup("t-new"); name != "Rendered Heading" {
		t.Fatalf("guess not applied to unknown thread: %q", name)
	}

	f.tables.Threads.Register("t-known", "Real Name")
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"NewMessage","id":"m2","text":"x","thread":"t-known"}]}`))
	if name, _ := f.tables.Threads.Lookup("t-known"); name != "Real Name" {
		t.Fatalf("guess overwrote a known name: %q", name)
	}

	f.tables.Threads.Register("t-group", "")
	f.eng.Process(decode(t, f, `{"deltas":[{"class":"NewMessage","id":"m3","text":"x","thread":"t-group"}]}`))
	if name, _ := f.tables.Threads.Lookup("t-group"); name != "" {
		t.Fatalf("guess overwrote the group sentinel: %q", name)
	}
}

func TestUnparsableFrameLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 100, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.eng.Run(ctx)

	garbage := []byte{0x00, 0x01, 0xFF, 'h', 'i', 0x00}
	if err := f.eng.EnqueueFrame(garbage, "trace-1"); err != nil {
		t.Fatalf("EnqueueFrame: %v", err)
	}
	if err := f.eng.EnqueueFrame([]byte("[1,2,3]"), "trace-2"); err != nil {
		t.Fatalf("EnqueueFrame: %v", err)
	}
	// valid frame after the garbage proves the worker survived it
	if err := f.eng.EnqueueFrame([]byte(`{"deltas":[{"class":"NewMessage","id":"ok","text":"x"}]}`), "trace-3"); err != nil {
		t.Fatalf("EnqueueFrame: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := f.cache.Get("ok"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker never processed the valid frame")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.cache.Len() != 1 {
		t.Fatalf("garbage frames mutated the cache: len=%d", f.cache.Len())
	}
	if f.ledger.Len() != 0 {
		t.Fatalf("garbage frames mutated the ledger")
	}
}

func TestQueueBackpressure(t *testing.T) {
	f := newFixture(t, 100, nil)
	f.eng.queue = newFrameQueue(2)

	if err := f.eng.EnqueueFrame([]byte("a"), "t1"); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := f.eng.EnqueueFrame([]byte("b"), "t2"); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := f.eng.EnqueueFrame([]byte("c"), "t3"); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if n := f.eng.DroppedFrames(); n != 1 {
		t.Fatalf("dropped = %d", n)
	}
}

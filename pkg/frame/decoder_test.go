package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func decodeOne(t *testing.T, d *Decoder, payload []byte) []Envelope {
	t.Helper()
	envs, ok := d.Decode(payload)
	if !ok {
		t.Fatalf("expected payload to decode: %q", payload)
	}
	return envs
}

func TestDecodeMarkerExtraction(t *testing.T) {
	d := NewDecoder("")
	payload := []byte("\x00\x10garbage{\"deltas\":[{\"id\":\"m1\",\"text\":\"hi\",\"sender\":\"s1\",\"thread\":\"t1\"}]}trailer")
	envs := decodeOne(t, d, payload)
	var found bool
	for _, env := range envs {
		for _, dl := range env.Deltas {
			nm, ok := dl.(NewMessage)
			if !ok {
				continue
			}
			found = true
			if nm.ID != "m1" || nm.Text != "hi" || nm.Sender != "s1" || nm.Thread != "t1" {
				t.Fatalf("unexpected delta: %+v", nm)
			}
		}
	}
	if !found {
		t.Fatalf("no NewMessage decoded from %d envelopes", len(envs))
	}
}

func TestDecodeEnvelopeBatch(t *testing.T) {
	// marker absent so the whole batch array parses as envelope objects
	d := NewDecoder("@@framed")
	payload := []byte(`[{"deltas":[{"id":"m1","text":"a"},{"message_id":"m2"}]},{"deltas":[{"type":"unknown_thing"}]}]`)
	envs := decodeOne(t, d, payload)
	if len(envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(envs))
	}
	if len(envs[0].Deltas) != 2 {
		t.Fatalf("expected 2 deltas in first envelope, got %d", len(envs[0].Deltas))
	}
	if _, ok := envs[0].Deltas[0].(NewMessage); !ok {
		t.Fatalf("expected NewMessage, got %T", envs[0].Deltas[0])
	}
	if _, ok := envs[0].Deltas[1].(DeleteMessage); !ok {
		t.Fatalf("expected DeleteMessage, got %T", envs[0].Deltas[1])
	}
	if _, ok := envs[1].Deltas[0].(Unknown); !ok {
		t.Fatalf("expected Unknown, got %T", envs[1].Deltas[0])
	}
}

func TestDecodeRegexFallback(t *testing.T) {
	// no marker anywhere: the greedy array match should still find the batch
	d := NewDecoder("nosuchmarker")
	payload := []byte(`noise [{"events":[],"d":[{"id":"m9","text":"x"}]}] noise`)
	if _, ok := d.Decode(payload); !ok {
		t.Fatalf("expected regex fallback to parse an array")
	}
}

func TestDecodeWholeStringObject(t *testing.T) {
	d := NewDecoder("zzz")
	payload := []byte(`{"id":"m3","text":"whole","sender":"s3"}`)
	envs := decodeOne(t, d, payload)
	nm, ok := envs[0].Deltas[0].(NewMessage)
	if !ok {
		t.Fatalf("expected NewMessage, got %T", envs[0].Deltas[0])
	}
	if nm.ID != "m3" || nm.Text != "whole" {
		t.Fatalf("unexpected delta: %+v", nm)
	}
}

func TestDecodeGarbageYieldsNoEvent(t *testing.T) {
	d := NewDecoder("")
	payloads := [][]byte{
		nil,
		{},
		{0x00, 0x01, 0x02, 0xff, 0xfe},
		[]byte("plain text with no structure"),
		[]byte("almost [ but never closed"),
		[]byte(`[1,2,3]`),
	}
	for _, p := range payloads {
		if envs, ok := d.Decode(p); ok {
			t.Fatalf("expected no event for %q, got %d envelopes", p, len(envs))
		}
	}
}

func TestDecodeDropsControlBytes(t *testing.T) {
	// NUL bytes interleaved through the JSON body must not break parsing
	raw := []byte(`{"deltas":[{"id":"m5","text":"ok"}]}`)
	var noisy []byte
	for _, c := range raw {
		noisy = append(noisy, c, 0x00)
	}
	d := NewDecoder("")
	envs := decodeOne(t, d, noisy)
	nm, ok := envs[0].Deltas[0].(NewMessage)
	if !ok || nm.ID != "m5" {
		t.Fatalf("unexpected decode result: %+v", envs[0].Deltas[0])
	}
}

func TestDecodeBracketDepthInStrings(t *testing.T) {
	// brackets inside string literals must not confuse the depth scan
	d := NewDecoder("")
	payload := []byte(`{"deltas":[{"id":"m6","text":"a ] weird [ text"}]}`)
	envs := decodeOne(t, d, payload)
	nm, ok := envs[0].Deltas[0].(NewMessage)
	if !ok || nm.Text != "a ] weird [ text" {
		t.Fatalf("unexpected decode result: %+v", envs[0].Deltas[0])
	}
}

func TestDecodeDeltaClassification(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"tagged new", `{"type":"new_message","id":"m1","text":"x"}`, "new_message"},
		{"tagged insert", `{"class":"deltaInsertMessage","mid":"m1"}`, "new_message"},
		{"tagged delete", `{"type":"delete_message","message_id":"m1"}`, "delete_message"},
		{"tagged recall", `{"class":"deltaRecallMessageData","mid":"m1"}`, "delete_message"},
		{"heuristic new", `{"id":"m1","text":"hi","sender":"s1","thread":"t1"}`, "new_message"},
		{"heuristic delete", `{"message_id":"m1","thread_fbid":"t1"}`, "delete_message"},
		{"unknown tag", `{"type":"read_receipt","id":"m1"}`, "unknown"},
		{"empty object", `{}`, "unknown"},
		{"tagged but no id", `{"type":"new_message","text":"x"}`, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := DecodeDelta([]byte(tc.raw))
			assert.Equal(t, tc.want, d.Kind())
		})
	}
}

func TestDecodeDeltaFieldAliases(t *testing.T) {
	d := DecodeDelta([]byte(`{"message_id":"m1","thread_fbid":"t-fb"}`))
	del, ok := d.(DeleteMessage)
	if !ok {
		t.Fatalf("expected DeleteMessage, got %T", d)
	}
	assert.Equal(t, "m1", del.MessageID)
	assert.Equal(t, "t-fb", del.Thread)

	d2 := DecodeDelta([]byte(`{"type":"new_message","mid":"m2","body":"b","sender_id":"s2","thread_id":"t2","thread_key":"tk2","timestamp_ms":"1700000000000"}`))
	nm, ok := d2.(NewMessage)
	if !ok {
		t.Fatalf("expected NewMessage, got %T", d2)
	}
	assert.Equal(t, "m2", nm.ID)
	assert.Equal(t, "b", nm.Text)
	assert.Equal(t, "s2", nm.Sender)
	assert.Equal(t, "t2", nm.Thread)
	assert.Equal(t, "tk2", nm.ThreadAlt)
	assert.Equal(t, int64(1700000000000), nm.TS, "quoted timestamp")
}

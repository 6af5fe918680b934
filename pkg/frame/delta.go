package frame

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Delta is one typed event inside a decoded frame. Unknown type tags
// decode to Unknown, a no-op variant, never an error.
type Delta interface {
	Kind() string
}

// NewMessage is a "new message" delta.
type NewMessage struct {
	ID          string
	Text        string
	TS          int64
	Sender      string
	Thread      string
	ThreadAlt   string
	ContentType string
}

func (NewMessage) Kind() string { return "new_message" }

// DeleteMessage is a "delete message" delta.
type DeleteMessage struct {
	MessageID string
	Thread    string
}

func (DeleteMessage) Kind() string { return "delete_message" }

// Unknown is the no-op variant for unrecognized deltas.
type Unknown struct {
	Tag string
}

func (Unknown) Kind() string { return "unknown" }

// flexInt64 accepts a JSON number or a quoted number; upstream feeds are
// inconsistent about which they send.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt64(n)
	return nil
}

// deltaProbe is the defensive envelope used to classify a raw delta.
// Field aliases cover the identifier spellings observed across message
// subtypes; none are guaranteed present.
type deltaProbe struct {
	Type  string `json:"type"`
	Class string `json:"class"`

	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	MID       string `json:"mid"`

	Text string `json:"text"`
	Body string `json:"body"`

	Sender   string `json:"sender"`
	SenderID string `json:"sender_id"`

	Thread     string `json:"thread"`
	ThreadID   string `json:"thread_id"`
	ThreadFBID string `json:"thread_fbid"`
	ThreadKey  string `json:"thread_key"`

	TS          flexInt64 `json:"ts"`
	Timestamp   flexInt64 `json:"timestamp"`
	TimestampMS flexInt64 `json:"timestamp_ms"`

	ContentType string `json:"content_type"`
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// DecodeDelta classifies one raw delta object. The type tag wins when
// present; otherwise field-shape heuristics decide, matching the
// optimistic probing the upstream framing forces on us.
func DecodeDelta(raw json.RawMessage) Delta {
	var p deltaProbe
	if err := json.Unmarshal(raw, &p); err != nil {
		return Unknown{}
	}

	tag := strings.ToLower(first(p.Type, p.Class))
	id := first(p.ID, p.MessageID, p.MID)
	text := first(p.Text, p.Body)
	sender := first(p.Sender, p.SenderID)
	thread := first(p.Thread, p.ThreadID)
	threadAlt := first(p.ThreadFBID, p.ThreadKey)
	ts := int64(p.TimestampMS)
	if ts == 0 {
		ts = int64(p.TS)
	}
	if ts == 0 {
		ts = int64(p.Timestamp)
	}

	newMsg := func() Delta {
		if id == "" {
			return Unknown{Tag: tag}
		}
		return NewMessage{
			ID: id, Text: text, TS: ts, Sender: sender,
			Thread: thread, ThreadAlt: threadAlt, ContentType: p.ContentType,
		}
	}
	delMsg := func() Delta {
		if id == "" {
			return Unknown{Tag: tag}
		}
		return DeleteMessage{MessageID: id, Thread: first(thread, threadAlt)}
	}

	switch {
	case tag != "":
		switch {
		case strings.Contains(tag, "new") || strings.Contains(tag, "insert"):
			return newMsg()
		case strings.Contains(tag, "delete") || strings.Contains(tag, "recall") || strings.Contains(tag, "remove"):
			return delMsg()
		default:
			return Unknown{Tag: tag}
		}
	case p.MessageID != "" && text == "":
		return delMsg()
	case id != "" && text != "":
		return newMsg()
	default:
		return Unknown{}
	}
}

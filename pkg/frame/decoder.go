package frame

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Envelope is one event-batch object from a decoded frame.
type Envelope struct {
	Deltas []Delta
}

// anyArrayRe greedily matches any balanced-looking array in a normalized
// frame, from the first '[' to the last ']'.
var anyArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// Decoder turns opaque transport payloads into event batches. The
// upstream framing is undocumented and varies by message subtype, so
// decoding is an ordered list of parse attempts, short-circuiting on the
// first success; total failure yields no event, silently.
type Decoder struct {
	marker string
}

// NewDecoder returns a decoder searching for the given delimiter marker.
// An empty marker selects the default "deltas".
func NewDecoder(marker string) *Decoder {
	if marker == "" {
		marker = "deltas"
	}
	return &Decoder{marker: marker}
}

// Decode converts one transport payload into a batch of envelopes. It
// never fails loudly: an unparsable payload returns (nil, false).
func (d *Decoder) Decode(payload []byte) ([]Envelope, bool) {
	s := normalize(payload)
	if s == "" {
		return nil, false
	}
	if body, ok := d.afterMarker(s); ok {
		if envs, ok := parseBatch(body); ok {
			return envs, true
		}
	}
	if m := anyArrayRe.FindString(s); m != "" {
		if envs, ok := parseBatch(m); ok {
			return envs, true
		}
	}
	return parseBatch(s)
}

// normalize filters the payload to printable ASCII plus whitespace,
// dropping NUL and other control bytes that the binary framings embed
// around the JSON body.
func normalize(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if (c >= 0x20 && c < 0x7f) || c == '\t' || c == '\n' || c == '\r' {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// afterMarker finds the delimiter marker and extracts the first balanced
// top-level array following it.
func (d *Decoder) afterMarker(s string) (string, bool) {
	idx := strings.Index(s, d.marker)
	if idx < 0 {
		return "", false
	}
	return balancedArray(s, idx+len(d.marker))
}

// balancedArray scans forward from `from` for the first '[' and walks
// bracket depth (string-literal aware) until it closes.
func balancedArray(s string, from int) (string, bool) {
	start := strings.IndexByte(s[from:], '[')
	if start < 0 {
		return "", false
	}
	start += from
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// envelopeJSON is the raw wire shape of one event-batch object.
type envelopeJSON struct {
	Deltas []json.RawMessage `json:"deltas"`
}

// parseBatch parses a candidate JSON fragment into envelopes. It accepts
// an array of envelope objects, a single envelope object, or a bare array
// of delta objects (some subtypes frame the delta list directly).
func parseBatch(s string) ([]Envelope, bool) {
	b := []byte(strings.TrimSpace(s))
	if len(b) == 0 {
		return nil, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		if b[0] != '{' {
			return nil, false
		}
		elems = []json.RawMessage{json.RawMessage(b)}
	}

	var envs []Envelope
	var bare Envelope
	for _, el := range elems {
		el = json.RawMessage(strings.TrimSpace(string(el)))
		if len(el) == 0 || el[0] != '{' {
			continue
		}
		var ej envelopeJSON
		if err := json.Unmarshal(el, &ej); err == nil && len(ej.Deltas) > 0 {
			env := Envelope{Deltas: make([]Delta, 0, len(ej.Deltas))}
			for _, raw := range ej.Deltas {
				env.Deltas = append(env.Deltas, DecodeDelta(raw))
			}
			envs = append(envs, env)
			continue
		}
		// not an envelope: treat as a bare delta object
		bare.Deltas = append(bare.Deltas, DecodeDelta(el))
	}
	if len(bare.Deltas) > 0 {
		envs = append(envs, bare)
	}
	if len(envs) == 0 {
		return nil, false
	}
	return envs, true
}

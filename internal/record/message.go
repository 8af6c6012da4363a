package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Message is one scraped post. The typed fields are a projection of Payload,
// which keeps the full platform record for later reprocessing.
type Message struct {
	ID        int64
	ChannelID int64
	Text      string
	Date      time.Time
	FromID    string
	HasMedia  bool
	Payload   Mapping
}

// Value returns the message payload as a record tree.
func (m Message) Value() Value {
	if m.Payload == nil {
		return Mapping{}
	}
	return m.Payload
}

// Fields is the relational projection of a decoded record. Nil pointers are
// absent or unparseable fields.
type Fields struct {
	MessageID *int64
	Text      *string
	Date      *time.Time
	FromID    *string
}

// Project extracts the persisted fields from a decoded record. The sender is
// taken from from_id.user_id, falling back to channel_id and chat_id.
func Project(m Mapping) Fields {
	var f Fields
	if id, ok := asInt(m["id"]); ok {
		f.MessageID = &id
	}
	if s, ok := asString(m["message"]); ok {
		f.Text = &s
	}
	if s, ok := asString(m["date"]); ok {
		if t, err := ParseTime(s); err == nil {
			f.Date = &t
		}
	} else if t, ok := m["date"].(Temporal); ok {
		d := t.T.UTC()
		f.Date = &d
	}
	if from, ok := m["from_id"].(Mapping); ok {
		for _, key := range []string{"user_id", "channel_id", "chat_id"} {
			if id, ok := asInt(from[key]); ok {
				s := strconv.FormatInt(id, 10)
				f.FromID = &s
				break
			}
			if s, ok := asString(from[key]); ok && s != "" {
				f.FromID = &s
				break
			}
		}
	}
	return f
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime accepts TimeLayout, RFC 3339 and offset-less ISO-8601 forms.
// Values without an offset are taken as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("record: unrecognized time %q", s)
}

// FromJSON converts a value produced by encoding/json (preferably decoded
// with UseNumber) into a record tree. Strings stay strings; no temporal
// detection is attempted.
func FromJSON(v any) Value {
	switch n := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool(n)
	case string:
		return String(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return Int(i)
		}
		if f, err := n.Float64(); err == nil {
			return Float(f)
		}
		return String(n.String())
	case float64:
		if n == float64(int64(n)) {
			return Int(int64(n))
		}
		return Float(n)
	case []any:
		out := make(Sequence, len(n))
		for i, item := range n {
			out[i] = FromJSON(item)
		}
		return out
	case map[string]any:
		out := make(Mapping, len(n))
		for k, item := range n {
			out[k] = FromJSON(item)
		}
		return out
	default:
		return String(fmt.Sprint(n))
	}
}

func asInt(v Value) (int64, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return 0, false
	}
	switch n := s.V.(type) {
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asString(v Value) (string, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return "", false
	}
	str, ok := s.V.(string)
	return str, ok
}

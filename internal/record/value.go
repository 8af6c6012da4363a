// Package record models scraped channel messages as a closed set of
// structural values and normalizes them into JSON-safe trees.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// TimeLayout is the canonical text form of a normalized Temporal. Fixed width
// and always UTC, so lexicographic order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// ErrTemporal is returned when a Temporal is encoded without normalization.
var ErrTemporal = errors.New("record: temporal value must be normalized before encoding")

// Value is one node of a message record tree. The concrete kinds are Scalar,
// Temporal, Sequence and Mapping; no other implementation exists.
type Value interface {
	isValue()
}

// Scalar is a JSON primitive leaf: nil, bool, int64, float64 or string.
type Scalar struct {
	V any
}

// Temporal is a point in time that still needs rendering.
type Temporal struct {
	T time.Time
}

// Sequence is an ordered list of values.
type Sequence []Value

// Mapping is a keyed set of values.
type Mapping map[string]Value

func (Scalar) isValue()   {}
func (Temporal) isValue() {}
func (Sequence) isValue() {}
func (Mapping) isValue()  {}

// Null is the nil scalar.
var Null = Scalar{}

// String wraps s as a Scalar.
func String(s string) Scalar { return Scalar{V: s} }

// Int wraps n as a Scalar.
func Int(n int64) Scalar { return Scalar{V: n} }

// Float wraps f as a Scalar.
func Float(f float64) Scalar { return Scalar{V: f} }

// Bool wraps b as a Scalar.
func Bool(b bool) Scalar { return Scalar{V: b} }

// Time wraps t as a Temporal.
func Time(t time.Time) Temporal { return Temporal{T: t} }

// MarshalJSON implements json.Marshaler. HTML characters stay literal; an
// outer encoder with SetEscapeHTML(true) still escapes them when compacting.
func (s Scalar) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.V); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalJSON always fails: temporals are rendered by Normalize.
func (Temporal) MarshalJSON() ([]byte, error) {
	return nil, ErrTemporal
}

// Format renders the temporal in TimeLayout.
func (t Temporal) Format() string {
	return t.T.UTC().Format(TimeLayout)
}

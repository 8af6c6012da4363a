package record

import "fmt"

// Normalize returns a copy of v in which every Temporal is replaced by its
// TimeLayout string. Other leaves pass through unchanged and containers are
// rebuilt with the same shape. Normalize is idempotent. Cyclic input is not
// supported.
func Normalize(v Value) Value {
	switch n := v.(type) {
	case nil:
		return Null
	case Scalar:
		return n
	case Temporal:
		return String(n.Format())
	case Sequence:
		if n == nil {
			return Sequence(nil)
		}
		out := make(Sequence, len(n))
		for i, item := range n {
			out[i] = Normalize(item)
		}
		return out
	case Mapping:
		if n == nil {
			return Mapping(nil)
		}
		out := make(Mapping, len(n))
		for k, item := range n {
			out[k] = Normalize(item)
		}
		return out
	default:
		panic(fmt.Sprintf("record: unknown value kind %T", v))
	}
}

// NormalizeAll normalizes every value in vs into a new Sequence.
func NormalizeAll(vs []Value) Sequence {
	out := make(Sequence, len(vs))
	for i, v := range vs {
		out[i] = Normalize(v)
	}
	return out
}

package record

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Mapping {
	return Mapping{
		"_":    String("Message"),
		"id":   Int(42),
		"date": Time(time.Date(2024, 3, 9, 8, 7, 6, 500, time.FixedZone("EAT", 3*3600))),
		"peer_id": Mapping{
			"_":          String("PeerChannel"),
			"channel_id": Int(1001),
		},
		"message": String("ሰላም <b>world</b>"),
		"from_id": Null,
		"views":   Float(12.5),
		"post":    Bool(true),
		"entities": Sequence{
			Mapping{"offset": Int(0), "edited": Time(time.Unix(0, 0))},
			Sequence{Time(time.Unix(60, 0)), String("x")},
		},
	}
}

func TestNormalizeRendersTemporalsRecursively(t *testing.T) {
	t.Parallel()

	out, ok := Normalize(sampleRecord()).(Mapping)
	require.True(t, ok)

	assert.Equal(t, String("2024-03-09T05:07:06.000000Z"), out["date"])
	assert.Equal(t, Int(42), out["id"])
	assert.Equal(t, Null, out["from_id"])
	assert.Equal(t, Mapping{"_": String("PeerChannel"), "channel_id": Int(1001)}, out["peer_id"])

	entities, ok := out["entities"].(Sequence)
	require.True(t, ok)
	require.Len(t, entities, 2)
	assert.Equal(t, String("1970-01-01T00:00:00.000000Z"), entities[0].(Mapping)["edited"])
	assert.Equal(t, Sequence{String("1970-01-01T00:01:00.000000Z"), String("x")}, entities[1])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	once := Normalize(sampleRecord())
	twice := Normalize(once)
	assert.Equal(t, once, twice)

	first, err := json.Marshal(once)
	require.NoError(t, err)
	second, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := sampleRecord()
	_ = Normalize(in)
	_, stillTemporal := in["date"].(Temporal)
	assert.True(t, stillTemporal)
}

func TestNormalizedTemporalsSortChronologically(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	times := make([]time.Time, 200)
	for i := range times {
		sec := rng.Int63n(4_000_000_000)
		nsec := rng.Int63n(1_000_000) * 1000
		zone := time.FixedZone("", (rng.Intn(25)-12)*3600)
		times[i] = time.Unix(sec, nsec).In(zone)
	}

	rendered := make([]string, len(times))
	for i, ts := range times {
		s, ok := Normalize(Time(ts)).(Scalar)
		require.True(t, ok)
		rendered[i] = s.V.(string)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	sort.Strings(rendered)
	for i := range times {
		assert.Equal(t, times[i].UTC().Format(TimeLayout), rendered[i])
	}
}

func TestTemporalRefusesJSON(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(Mapping{"date": Time(time.Now())})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemporal)
}

func TestNormalizeNilBecomesNull(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Null, Normalize(nil))
	assert.Equal(t, Sequence{Null}, NormalizeAll([]Value{nil}))
}

func TestScalarKeepsHTMLLiteral(t *testing.T) {
	t.Parallel()

	raw, err := String("ዋጋ <50 ብር> & more").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"ዋጋ <50 ብር> & more"`, string(raw))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(Normalize(Mapping{"message": String("<b>&</b>"), "id": Int(3)})))
	assert.JSONEq(t, `{"id":3,"message":"<b>&</b>"}`, buf.String())
	assert.Contains(t, buf.String(), `"<b>&</b>"`)
}

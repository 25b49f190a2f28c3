package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"escaped backslash kept", `\u2028`, `"\\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"zebra":1}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, which sorts before
	// U+FF61 in UTF-16 but after it in UTF-8.
	got, err := MarshalCanonical(map[string]any{"\uFF61": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFF61\":1}", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical([]any{struct{}{}})
	assert.Error(t, err)
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	got, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
	assert.Equal(t, "\u00e9", NormalizeLabel(decomposed))
}

func TestTraceDigest_IgnoresRunID(t *testing.T) {
	a := []Event{
		{RunID: "run-a", Seq: 1, Tick: 1, Kind: EventVisit, Handle: "1.1", Label: "A", Action: "unary"},
		{RunID: "run-a", Seq: 2, Tick: 1, Kind: EventDespawn, Handle: "1.1", Label: "A"},
	}
	b := []Event{
		{RunID: "run-b", Seq: 1, Tick: 1, Kind: EventVisit, Handle: "1.1", Label: "A", Action: "unary"},
		{RunID: "run-b", Seq: 2, Tick: 1, Kind: EventDespawn, Handle: "1.1", Label: "A"},
	}

	da, err := TraceDigest(a)
	require.NoError(t, err)
	db, err := TraceDigest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
}

func TestTraceDigest_OrderSensitive(t *testing.T) {
	e1 := Event{Seq: 1, Tick: 1, Kind: EventVisit, Label: "A"}
	e2 := Event{Seq: 2, Tick: 1, Kind: EventVisit, Label: "B"}

	d1, err := TraceDigest([]Event{e1, e2})
	require.NoError(t, err)
	d2, err := TraceDigest([]Event{e2, e1})
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2)
}

func TestVisitLabels(t *testing.T) {
	events := []Event{
		{Tick: 1, Kind: EventVisit, Label: "A"},
		{Tick: 1, Kind: EventSpawn, Label: "N"},
		{Tick: 1, Kind: EventVisit, Label: "B"},
		{Tick: 2, Kind: EventVisit, Label: "A"},
	}

	assert.Equal(t, []string{"A", "B"}, VisitLabels(events, 1))
	assert.Equal(t, []string{"A"}, VisitLabels(events, 2))
	assert.Nil(t, VisitLabels(events, 3))
}

func TestEventKind_Valid(t *testing.T) {
	assert.True(t, EventVisit.Valid())
	assert.True(t, EventError.Valid())
	assert.False(t, EventKind("bogus").Valid())
}

func TestEvent_String(t *testing.T) {
	e := Event{Seq: 3, Tick: 2, Kind: EventDespawn, Label: "C", Handle: "3.1", Detail: "by B"}
	assert.Equal(t, "#3 tick=2 despawn C [3.1]: by B", e.String())
}

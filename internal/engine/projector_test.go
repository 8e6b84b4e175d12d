package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalPreservesOrder(t *testing.T) {
	rec := Record{
		{Key: "Zeta", Value: 1},
		{Key: "Alpha", Value: "x"},
		{Key: "Mid", Value: nil},
	}

	body, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"Zeta":1,"Alpha":"x","Mid":null}`, string(body))
}

func TestEmptyRecordMarshalsToEmptyObject(t *testing.T) {
	body, err := json.Marshal(Record{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestRecordGet(t *testing.T) {
	rec := Record{{Key: "Name", Value: "Ada"}}

	v, ok := rec.Get("Name")
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	_, ok = rec.Get("Missing")
	assert.False(t, ok)
}

func TestCellToString(t *testing.T) {
	assert.Equal(t, "", CellToString(nil))
	assert.Equal(t, "hello", CellToString("hello"))
	assert.Equal(t, "hello", CellToString([]byte("hello")))
	assert.Equal(t, "42", CellToString(int64(42)))

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:00:00Z", CellToString(ts))

	assert.Equal(t, `{"a":1}`, CellToString(map[string]interface{}{"a": 1}))
}

package sqltool

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowMarshalPreservesFieldOrder(t *testing.T) {
	row := Row{
		{Name: "zzz", Value: 1},
		{Name: "aaa", Value: "two"},
		{Name: "mmm", Value: nil},
	}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zzz":1,"aaa":"two","mmm":null}`, string(data))
}

func TestRowMarshalEmptyRow(t *testing.T) {
	data, err := json.Marshal(Row{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestRowMarshalEscapesNames(t *testing.T) {
	row := Row{{Name: `count("x")`, Value: 3}}

	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"count(\"x\")":3}`, string(data))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "hello", normalizeValue([]byte("hello")))
	assert.Equal(t, int64(7), normalizeValue(int64(7)))
	assert.Nil(t, normalizeValue(nil))

	ts := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01T12:30:00Z", normalizeValue(ts))
}

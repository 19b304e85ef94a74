package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2024-10-10T10:10:10Z")
	assert.True(t, ok)
	assert.Equal(t, "2024-10-10T10:10:10Z", got.UTC().Format(time.RFC3339))

	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok = ParseTime(strconv.FormatInt(ts, 10))
	assert.True(t, ok)
	assert.Equal(t, ts, got.Unix())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
}

func TestAlignFromTo(t *testing.T) {
	from := time.Date(2024, 1, 1, 10, 7, 31, 0, time.UTC)
	to := time.Date(2024, 1, 1, 10, 12, 59, 0, time.UTC)
	f, tt := AlignFromTo(from, to, "5m")
	assert.Equal(t, 5, f.Minute())
	assert.Equal(t, 10, tt.Minute())
	assert.Equal(t, 0, tt.Second())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault(" 7 ", 1))
	assert.Equal(t, 1, ParseIntDefault("x", 1))
	assert.Equal(t, []string{"a:1", "b:2"}, SplitTrim(" a:1 ,, b:2 ", ","))
	assert.Equal(t, "AAPL", NormalizeSymbol(" aapl "))
}

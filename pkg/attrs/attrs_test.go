package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	kv := []any{"decision", "rejected", "version", int64(4), 7, "ignored", "reason", "missing docs", "dangling"}

	assert.Equal(t, "rejected", ExtractString(kv, "decision"))
	assert.Equal(t, "missing docs", ExtractString(kv, "reason"))
	assert.Empty(t, ExtractString(kv, "actor_id"))
	assert.Empty(t, ExtractString(kv, "dangling"))
	assert.Empty(t, ExtractString(kv, "version"), "non-string values are not coerced")

	v, ok := Extract[int64](kv, "version")
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok = Extract[int](kv, "version")
	assert.False(t, ok)

	first := []any{"reason", "first", "reason", "second"}
	assert.Equal(t, "first", ExtractString(first, "reason"))
}

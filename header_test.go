package harbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderGetReportsPresenceSeparatelyFromValue(t *testing.T) {
	h := NewHeader()

	_, ok := h.Get("X-Empty")
	assert.False(t, ok)

	h.Set("X-Empty", "")
	v, ok := h.Get("X-Empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestHeaderCaseInsensitiveLookupPreservesFirstSeenCasing(t *testing.T) {
	h := NewHeader()

	h.Set("Content-Type", "application/json")
	h.Add("content-type", "charset=utf-8")

	v, ok := h.Get("CONTENT-TYPE")
	require.True(t, ok)
	assert.Equal(t, "charset=utf-8", v)

	assert.Equal(t, []string{"Content-Type"}, h.Names())
}

func TestHeaderAddAccumulatesValues(t *testing.T) {
	h := NewHeader()

	h.Add("Accept-Encoding", "gzip")
	h.Add("Accept-Encoding", "deflate")

	assert.Equal(t, []string{"gzip", "deflate"}, h.Values("accept-encoding"))
}

func TestHeaderDelRemovesNameEntirely(t *testing.T) {
	h := NewHeader()
	h.Set("X-A", "1")
	h.Set("X-B", "2")

	h.Del("X-A")

	assert.False(t, h.Has("X-A"))
	assert.Equal(t, []string{"X-B"}, h.Names())
}

func TestHeaderSetRejectsEmptyName(t *testing.T) {
	h := NewHeader()
	h.Set("", "value")

	assert.Empty(t, h.Names())
}

func TestHeaderCloneIsIndependent(t *testing.T) {
	h := NewHeader()
	h.Set("X-A", "1")

	c := h.Clone()
	c.Set("X-A", "2")
	c.Set("X-B", "3")

	v, _ := h.Get("X-A")
	assert.Equal(t, "1", v)
	assert.False(t, h.Has("X-B"))
}

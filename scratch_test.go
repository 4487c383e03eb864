package harbor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratchSetGetDel(t *testing.T) {
	s := NewScratch()

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("key", 42)
	v, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	s.Del("key")
	_, ok = s.Get("key")
	assert.False(t, ok)
}

func TestScratchConcurrentAccess(t *testing.T) {
	s := NewScratch()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Set("k", i)
			s.Get("k")
		}(i)
	}
	wg.Wait()

	_, ok := s.Get("k")
	assert.True(t, ok)
}

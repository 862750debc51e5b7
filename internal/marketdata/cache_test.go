package marketdata

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache_EvictsOldestAtCapacity(t *testing.T) {
	c := newResponseCache(time.Minute, 3)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("k%d", i), []byte{byte(i)})
		now = now.Add(time.Second)
	}
	c.put("k3", []byte{3})

	assert.Equal(t, 3, c.len())
	_, ok := c.get("k0")
	assert.False(t, ok, "oldest entry should be evicted")
	v, ok := c.get("k3")
	assert.True(t, ok)
	assert.Equal(t, []byte{3}, v)
}

func TestResponseCache_DropsExpiredBeforeEvictingLive(t *testing.T) {
	c := newResponseCache(10*time.Second, 2)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.put("stale", []byte("a"))
	now = now.Add(9 * time.Second)
	c.put("fresh", []byte("b"))
	now = now.Add(2 * time.Second) // stale is now expired, fresh is not

	c.put("new", []byte("c"))
	_, ok := c.get("fresh")
	assert.True(t, ok)
	_, ok = c.get("new")
	assert.True(t, ok)
}

func TestResponseCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newResponseCache(time.Minute, 2)
	c.put("a", []byte("1"))
	c.put("b", []byte("2"))
	c.put("a", []byte("3"))

	assert.Equal(t, 2, c.len())
	v, _ := c.get("a")
	assert.Equal(t, []byte("3"), v)
}

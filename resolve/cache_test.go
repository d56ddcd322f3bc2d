// SPDX-License-Identifier: GPL-3.0-or-later

package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheGetMiss(t *testing.T) {
	c := newTTLCache[string, int](10)
	_, ok := c.get("missing")
	assert.False(t, ok)
}

func TestTTLCacheSetAndGet(t *testing.T) {
	c := newTTLCache[string, int](10)
	c.set("a", 1, time.Minute)

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestTTLCacheNonPositiveTTLNotStored(t *testing.T) {
	c := newTTLCache[string, int](10)
	c.set("a", 1, 0)

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := newTTLCache[string, int](10)
	c.set("a", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestTTLCacheEvictsOldestBeyondCapacity(t *testing.T) {
	c := newTTLCache[string, int](2)
	c.set("a", 1, time.Minute)
	c.set("b", 2, time.Minute)
	c.set("c", 3, time.Minute)

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestTTLCacheGetRefreshesRecency(t *testing.T) {
	c := newTTLCache[string, int](2)
	c.set("a", 1, time.Minute)
	c.set("b", 2, time.Minute)

	// Touch "a" so "b" becomes the least recently used entry.
	_, _ = c.get("a")
	c.set("c", 3, time.Minute)

	_, ok := c.get("b")
	assert.False(t, ok, "least recently used entry should have been evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestTTLCacheDefaultMaxEntries(t *testing.T) {
	c := newTTLCache[string, int](0)
	assert.Equal(t, defaultCacheMaxEntries, c.maxEntries)
}

func TestTTLCacheOverwriteUpdatesValue(t *testing.T) {
	c := newTTLCache[string, int](10)
	c.set("a", 1, time.Minute)
	c.set("a", 2, time.Minute)

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

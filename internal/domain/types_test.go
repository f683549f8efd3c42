package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEntry_ExpiredReportsAfterDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry[string]{Value: "v", ExpiresAt: now.Add(-time.Second)}
	assert.True(t, entry.Expired(now))
}

func TestCacheEntry_NotExpiredBeforeDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry[string]{Value: "v", ExpiresAt: now.Add(time.Second)}
	assert.False(t, entry.Expired(now))
}

func TestQueuedSignal_SeqRoundTrips(t *testing.T) {
	q := &QueuedSignal{}
	q.SetSeq(42)
	assert.Equal(t, uint64(42), q.Seq())
}

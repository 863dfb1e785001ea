package bus

import (
	"sync"
	"time"
)

// DedupeCache suppresses platform delivery retries. Socket Mode redelivers
// events that were not acked in time; without this a single case message
// would be triaged twice.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	seen    map[string]time.Time
}

// NewDedupeCache creates a bounded TTL cache.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		ttl:     ttl,
		maxSize: maxSize,
		seen:    map[string]time.Time{},
	}
}

// Seen reports whether key was observed within the TTL, recording it either way.
func (d *DedupeCache) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	if len(d.seen) >= d.maxSize {
		for k, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, k)
			}
		}
		// Still full: evict arbitrary entries until under the cap.
		for len(d.seen) >= d.maxSize {
			for k := range d.seen {
				delete(d.seen, k)
				break
			}
		}
	}

	d.seen[key] = now
	return false
}

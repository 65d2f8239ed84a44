package services

import (
	"context"
	"sync"
	"time"

	types "github.com/yungbote/trackchat-backend/internal/domain"
)

// HeartbeatCache holds the newest heartbeat per visitor. Implementations keep
// the maximum timestamp seen, so writes may arrive in any order.
type HeartbeatCache interface {
	Touch(ctx context.Context, mark types.HeartbeatMark) error
	Last(ctx context.Context, visitorID string) (types.HeartbeatMark, bool, error)
	// Since lists marks at or after since. websiteID 0 spans all websites.
	Since(ctx context.Context, websiteID uint64, since time.Time) ([]types.HeartbeatMark, error)
}

type siteVisitor struct {
	websiteID uint64
	visitorID string
}

// memoryHeartbeatCache mirrors the redis layout: one mark per website and
// visitor, plus the newest mark per visitor across websites.
type memoryHeartbeatCache struct {
	mu     sync.RWMutex
	marks  map[siteVisitor]types.HeartbeatMark
	newest map[string]types.HeartbeatMark
}

func NewMemoryHeartbeatCache() HeartbeatCache {
	return &memoryHeartbeatCache{
		marks:  make(map[siteVisitor]types.HeartbeatMark),
		newest: make(map[string]types.HeartbeatMark),
	}
}

func (c *memoryHeartbeatCache) Touch(_ context.Context, mark types.HeartbeatMark) error {
	if mark.VisitorID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.newest[mark.VisitorID]; !ok || mark.At.After(cur.At) {
		c.newest[mark.VisitorID] = mark
	}
	if mark.WebsiteID == 0 {
		return nil
	}
	key := siteVisitor{websiteID: mark.WebsiteID, visitorID: mark.VisitorID}
	if cur, ok := c.marks[key]; !ok || mark.At.After(cur.At) {
		c.marks[key] = mark
	}
	return nil
}

func (c *memoryHeartbeatCache) Last(_ context.Context, visitorID string) (types.HeartbeatMark, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.newest[visitorID]
	return m, ok, nil
}

func (c *memoryHeartbeatCache) Since(_ context.Context, websiteID uint64, since time.Time) ([]types.HeartbeatMark, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.HeartbeatMark, 0)
	if websiteID == 0 {
		for _, m := range c.newest {
			if !m.At.Before(since) {
				out = append(out, m)
			}
		}
		return out, nil
	}
	for key, m := range c.marks {
		if key.websiteID != websiteID || m.At.Before(since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/trackchat-backend/internal/domain"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

// PresenceCache keeps the newest heartbeat per visitor in sorted sets scored
// by unix milliseconds. ZADD GT makes every write monotonic, so replayed or
// reordered heartbeats never move a visitor backwards.
//
//	{prefix}:hb:visitors        zset visitor_id -> last heartbeat
//	{prefix}:hb:site:{id}       zset visitor_id -> last heartbeat on that website
//	{prefix}:hb:website         hash visitor_id -> website id of the newest heartbeat
type PresenceCache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewPresenceCache(log *logger.Logger, rdb goredis.UniversalClient, prefix string) *PresenceCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "trackchat"
	}
	return &PresenceCache{
		log:    log.With("client", "RedisPresenceCache"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (c *PresenceCache) visitorsKey() string { return c.prefix + ":hb:visitors" }
func (c *PresenceCache) websiteKey() string  { return c.prefix + ":hb:website" }
func (c *PresenceCache) siteKey(websiteID uint64) string {
	return c.prefix + ":hb:site:" + strconv.FormatUint(websiteID, 10)
}

func (c *PresenceCache) Touch(ctx context.Context, mark types.HeartbeatMark) error {
	if mark.VisitorID == "" {
		return nil
	}
	score := float64(mark.At.UTC().UnixMilli())
	member := goredis.Z{Score: score, Member: mark.VisitorID}

	// Only the write that advances the global score may repoint the website.
	prev, err := c.rdb.ZScore(ctx, c.visitorsKey(), mark.VisitorID).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	newest := errors.Is(err, goredis.Nil) || score > prev

	_, err = c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZAddGT(ctx, c.visitorsKey(), member)
		if mark.WebsiteID != 0 {
			p.ZAddGT(ctx, c.siteKey(mark.WebsiteID), member)
			if newest {
				p.HSet(ctx, c.websiteKey(), mark.VisitorID, strconv.FormatUint(mark.WebsiteID, 10))
			}
		}
		return nil
	})
	return err
}

func (c *PresenceCache) Last(ctx context.Context, visitorID string) (types.HeartbeatMark, bool, error) {
	score, err := c.rdb.ZScore(ctx, c.visitorsKey(), visitorID).Result()
	if errors.Is(err, goredis.Nil) {
		return types.HeartbeatMark{}, false, nil
	}
	if err != nil {
		return types.HeartbeatMark{}, false, err
	}
	mark := types.HeartbeatMark{VisitorID: visitorID, At: fromScore(score)}
	if raw, err := c.rdb.HGet(ctx, c.websiteKey(), visitorID).Result(); err == nil {
		mark.WebsiteID, _ = strconv.ParseUint(raw, 10, 64)
	} else if !errors.Is(err, goredis.Nil) {
		return types.HeartbeatMark{}, false, err
	}
	return mark, true, nil
}

// Since lists marks at or after since. websiteID 0 spans all websites.
func (c *PresenceCache) Since(ctx context.Context, websiteID uint64, since time.Time) ([]types.HeartbeatMark, error) {
	key := c.visitorsKey()
	if websiteID != 0 {
		key = c.siteKey(websiteID)
	}
	zs, err := c.rdb.ZRangeByScoreWithScores(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UTC().UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.HeartbeatMark, 0, len(zs))
	if len(zs) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected zset member %T", z.Member)
		}
		ids = append(ids, id)
		out = append(out, types.HeartbeatMark{VisitorID: id, WebsiteID: websiteID, At: fromScore(z.Score)})
	}
	if websiteID != 0 {
		return out, nil
	}
	sites, err := c.rdb.HMGet(ctx, c.websiteKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range sites {
		if s, ok := v.(string); ok {
			out[i].WebsiteID, _ = strconv.ParseUint(s, 10, 64)
		}
	}
	return out, nil
}

func fromScore(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}

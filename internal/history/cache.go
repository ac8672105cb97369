// internal/history/cache.go
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// cacheTTL bounds how long a historical page is kept. Pages fetched with a
// before-cursor are immutable slices of the stream, so a long TTL is safe.
const cacheTTL = 24 * time.Hour

// CachedFetcher is a Redis read-through cache in front of another Fetcher.
// Only before-cursor (historical) pages are cached; latest-window and
// forward fetches change as the match progresses and always pass through.
type CachedFetcher struct {
	inner  Fetcher
	rdb    *redis.Client
	logger *logrus.Entry
}

func NewCachedFetcher(inner Fetcher, rdb *redis.Client, logger *logrus.Entry) *CachedFetcher {
	return &CachedFetcher{inner: inner, rdb: rdb, logger: logger}
}

// ConnectRedis dials addr and verifies the connection.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (c *CachedFetcher) Fetch(ctx context.Context, matchID int64, limit int, before, after int64) (*Page, error) {
	if before == 0 {
		return c.inner.Fetch(ctx, matchID, limit, before, after)
	}

	key := fmt.Sprintf("ahr:history:%d:%d:%d", matchID, limit, before)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var page Page
		if err := json.Unmarshal(data, &page); err == nil {
			return &page, nil
		}
		c.logger.WithField("key", key).Warn("dropping corrupt cached page")
		c.rdb.Del(ctx, key)
	}

	page, err := c.inner.Fetch(ctx, matchID, limit, before, after)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(page); err == nil {
		if err := c.rdb.Set(ctx, key, data, cacheTTL).Err(); err != nil {
			c.logger.WithError(err).Debug("page cache write failed")
		}
	}
	return page, nil
}

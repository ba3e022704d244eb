package redis

import (
	"context"
	"errors"

	"github.com/DRSN-tech/kaspi-conveyor/internal/cfg"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/clients"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/e"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// feedKey — ключ последнего успешно собранного фида.
const feedKey = "feed:xml"

// FeedCacheRepo кэширует готовый XML-фид в Redis на FeedTTL.
type FeedCacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewFeedCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *FeedCacheRepo {
	return &FeedCacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Get возвращает e.ErrCacheMiss, если фид не закэширован или срок истёк.
func (c *FeedCacheRepo) Get(ctx context.Context) ([]byte, error) {
	data, err := c.client.Client.Get(ctx, feedKey).Bytes()
	if err != nil {
		if errors.Is(err, r.Nil) {
			return nil, e.ErrCacheMiss
		}
		c.logger.Warnf("Redis GET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if len(data) == 0 {
		return nil, e.ErrCacheMiss
	}

	return data, nil
}

func (c *FeedCacheRepo) Set(ctx context.Context, body []byte) error {
	if err := c.client.Client.Set(ctx, feedKey, body, c.cfg.FeedTTL).Err(); err != nil {
		c.logger.Warnf("Redis SET failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (c *FeedCacheRepo) Invalidate(ctx context.Context) error {
	if err := c.client.Client.Del(ctx, feedKey).Err(); err != nil {
		c.logger.Warnf("Redis DEL failed: %v", e.Wrap(whereami.WhereAmI(), err))
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// NopFeedCache используется, когда Redis выключен: каждый запрос фида собирает документ заново.
type NopFeedCache struct{}

func NewNopFeedCache() NopFeedCache {
	return NopFeedCache{}
}

func (NopFeedCache) Get(context.Context) ([]byte, error) { return nil, e.ErrCacheMiss }

func (NopFeedCache) Set(context.Context, []byte) error { return nil }

func (NopFeedCache) Invalidate(context.Context) error { return nil }

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/LinkShield/internal/app/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	linkCachePrefix     = "shield:link:"
	defaultLinkCacheTTL = time.Minute
	flightTimeout       = 5 * time.Second
)

// cachedLinkRepository keeps links by slug in Redis. Concurrent misses for the
// same slug share one database read. Cache failures fall through to the store.
type cachedLinkRepository struct {
	LinkRepository

	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCachedLinkRepository wraps next with a Redis read-through cache.
func NewCachedLinkRepository(next LinkRepository, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) LinkRepository {
	if ttl <= 0 {
		ttl = defaultLinkCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cachedLinkRepository{LinkRepository: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (r *cachedLinkRepository) GetBySlug(ctx context.Context, slug string) (*model.Link, error) {
	if link, ok := r.fromCache(ctx, slug); ok {
		return link, nil
	}

	// The flight is shared, so one caller's cancellation must not fail the
	// others; each caller still stops waiting on its own context.
	ch := r.group.DoChan(slug, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		link, err := r.LinkRepository.GetBySlug(flightCtx, slug)
		if err != nil {
			return nil, err
		}
		r.store(flightCtx, link)
		return link, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers may mutate the result; never hand out the shared pointer.
		link := *res.Val.(*model.Link)
		return &link, nil
	}
}

func (r *cachedLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if err := r.LinkRepository.Update(ctx, link); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, linkCachePrefix+link.Slug).Err(); err != nil {
		r.logger.Warn("failed to evict cached link", zap.String("slug", link.Slug), zap.Error(err))
	}
	return nil
}

func (r *cachedLinkRepository) fromCache(ctx context.Context, slug string) (*model.Link, bool) {
	data, err := r.rdb.Get(ctx, linkCachePrefix+slug).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("link cache read failed", zap.String("slug", slug), zap.Error(err))
		}
		return nil, false
	}

	var link model.Link
	if err := json.Unmarshal(data, &link); err != nil {
		r.logger.Warn("dropping corrupt cached link", zap.String("slug", slug), zap.Error(err))
		return nil, false
	}
	return &link, true
}

func (r *cachedLinkRepository) store(ctx context.Context, link *model.Link) {
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, linkCachePrefix+link.Slug, data, r.ttl).Err(); err != nil {
		r.logger.Warn("link cache write failed", zap.String("slug", link.Slug), zap.Error(err))
	}
}

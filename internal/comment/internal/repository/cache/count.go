package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ecodeclub/ecache"
	"github.com/pkg/errors"
)

var ErrCountNotFound = errors.New("评论数不在缓存里")

const countExpiration = 10 * time.Minute

// CountCache 文章评论数的跨实例缓存。
// 评论数在列表页被批量展示，命中率高而且可以容忍短暂不一致
type CountCache interface {
	Get(ctx context.Context, postSlug string) (int64, error)
	Set(ctx context.Context, postSlug string, count int64) error
	Del(ctx context.Context, postSlug string) error
}

type countECache struct {
	ec ecache.Cache
}

func NewCountCache(ec ecache.Cache) CountCache {
	return &countECache{
		ec: &ecache.NamespaceCache{
			C:         ec,
			Namespace: "comment:cnt:",
		},
	}
}

func (c *countECache) Get(ctx context.Context, postSlug string) (int64, error) {
	val := c.ec.Get(ctx, c.key(postSlug))
	if val.KeyNotFound() {
		return 0, ErrCountNotFound
	}
	if val.Err != nil {
		return 0, val.Err
	}
	ans, err := val.String()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(ans, 10, 64)
}

func (c *countECache) Set(ctx context.Context, postSlug string, count int64) error {
	return c.ec.Set(ctx, c.key(postSlug), count, countExpiration)
}

func (c *countECache) Del(ctx context.Context, postSlug string) error {
	_, err := c.ec.Delete(ctx, c.key(postSlug))
	return err
}

func (c *countECache) key(postSlug string) string {
	return fmt.Sprintf("post:%s", postSlug)
}

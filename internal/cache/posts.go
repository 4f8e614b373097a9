// Package cache 在合约只读调用前加一层 redis 缓存
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

// PostSource 帖子的链上读取来源，*contract.QuteeMedia 即满足
type PostSource interface {
	Address() chain.Address
	SearchPost(ctx context.Context, postID uint64) (*contract.Post, error)
	PostIDs(ctx context.Context) ([]uint64, error)
	FetchPostsByIDs(ctx context.Context, ids []uint64) ([]contract.Post, error)
}

// PostCache 帖子详情按 post:<media>:<id> 缓存，列表按 posts:index:<media> 缓存 ID
type PostCache struct {
	rdb *redis.Client
	ttl time.Duration

	postReads  atomic.Int64
	indexLoads atomic.Int64
	bulkLoads  atomic.Int64
}

func NewPostCache(rdb *redis.Client, ttl time.Duration) *PostCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PostCache{rdb: rdb, ttl: ttl}
}

func postKey(media chain.Address, id uint64) string {
	return fmt.Sprintf("post:%s:%d", media.Lower(), id)
}

func indexKey(media chain.Address) string {
	return "posts:index:" + media.Lower()
}

// versionKey 失效计数；回源写入前后版本不一致说明期间发生过失效，放弃写入
func versionKey(key string) string { return key + ":v" }

var errVersionChanged = errors.New("cache: invalidated during read-through")

// version 读取失效计数，键不存在为 0；redis 不可用时 ok 为 false，调用方不再回写
func (c *PostCache) version(ctx context.Context, key string) (int64, bool) {
	v, err := c.rdb.Get(ctx, versionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	return v, err == nil
}

// setIfVersion 仅当版本仍为 seen 时写入
func (c *PostCache) setIfVersion(ctx context.Context, key string, seen int64, write func(redis.Pipeliner)) error {
	vkey := versionKey(key)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vkey).Int64()
		if errors.Is(err, redis.Nil) {
			cur, err = 0, nil
		}
		if err != nil {
			return err
		}
		if cur != seen {
			return errVersionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			return nil
		})
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return errVersionChanged
	}
	return err
}

// bump 失效：版本加一并删除数据键。版本键比数据键活得久，保证回源期间不会过期
func (c *PostCache) bump(ctx context.Context, key string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(key))
		pipe.Expire(ctx, versionKey(key), c.ttl+time.Hour)
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

// SearchPost 先读缓存，未命中再走链上 view
func (c *PostCache) SearchPost(ctx context.Context, media PostSource, id uint64) (*contract.Post, error) {
	key := postKey(media.Address(), id)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var p contract.Post
		if uErr := json.Unmarshal(data, &p); uErr == nil {
			return &p, nil
		}
	}

	seen, ok := c.version(ctx, key)
	c.postReads.Add(1)
	p, err := media.SearchPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, media.Address(), *p, seen)
	}
	return p, nil
}

// FetchPosts ID 列表走 LRANGE，详情走 MGET，只回源缺失的部分
func (c *PostCache) FetchPosts(ctx context.Context, media PostSource) ([]contract.Post, error) {
	ids, err := c.postIDs(ctx, media)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []contract.Post{}, nil
	}

	keys := lo.Map(ids, func(id uint64, _ int) string { return postKey(media.Address(), id) })
	cached := make(map[uint64]contract.Post, len(ids))
	if vals, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var p contract.Post
			if uErr := json.Unmarshal([]byte(str), &p); uErr == nil {
				cached[ids[i]] = p
			}
		}
	}

	missing := lo.Reject(ids, func(id uint64, _ int) bool {
		_, ok := cached[id]
		return ok
	})
	if len(missing) > 0 {
		seen := c.versions(ctx, media.Address(), missing)
		c.bulkLoads.Add(1)
		posts, err := media.FetchPostsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, p := range posts {
			cached[p.PostID] = p
			if v, ok := seen[p.PostID]; ok {
				c.store(ctx, media.Address(), p, v)
			}
		}
	}

	// 索引里有但链上已删除的帖子直接跳过
	return lo.FilterMap(ids, func(id uint64, _ int) (contract.Post, bool) {
		p, ok := cached[id]
		return p, ok
	}), nil
}

func (c *PostCache) postIDs(ctx context.Context, media PostSource) ([]uint64, error) {
	key := indexKey(media.Address())
	if n, _ := c.rdb.Exists(ctx, key).Result(); n > 0 {
		if raw, err := c.rdb.LRange(ctx, key, 0, -1).Result(); err == nil && len(raw) > 0 {
			ids := make([]uint64, 0, len(raw))
			for _, s := range raw {
				id, err := strconv.ParseUint(s, 10, 64)
				if err != nil {
					ids = nil
					break
				}
				ids = append(ids, id)
			}
			if ids != nil {
				return ids, nil
			}
		}
	}

	seen, ok := c.version(ctx, key)
	c.indexLoads.Add(1)
	ids, err := media.PostIDs(ctx)
	if err != nil {
		return nil, err
	}
	if ok && len(ids) > 0 {
		err := c.setIfVersion(ctx, key, seen, func(pipe redis.Pipeliner) {
			pipe.Del(ctx, key)
			pipe.RPush(ctx, key, lo.ToAnySlice(lo.Map(ids, func(id uint64, _ int) string {
				return strconv.FormatUint(id, 10)
			}))...)
			pipe.Expire(ctx, key, c.ttl)
		})
		if err != nil && !errors.Is(err, errVersionChanged) {
			logger.Warn("cache post index failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ids, nil
}

// versions 批量读取帖子的失效计数；redis 不可用时返回空 map，不回写
func (c *PostCache) versions(ctx context.Context, media chain.Address, ids []uint64) map[uint64]int64 {
	out := make(map[uint64]int64, len(ids))
	keys := lo.Map(ids, func(id uint64, _ int) string { return versionKey(postKey(media, id)) })
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return out
	}
	for i, v := range vals {
		switch raw := v.(type) {
		case nil:
			out[ids[i]] = 0
		case string:
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				out[ids[i]] = n
			}
		}
	}
	return out
}

func (c *PostCache) store(ctx context.Context, media chain.Address, p contract.Post, seen int64) {
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := postKey(media, p.PostID)
	err = c.setIfVersion(ctx, key, seen, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, key, payload, c.ttl)
	})
	if err != nil && !errors.Is(err, errVersionChanged) {
		logger.Warn("cache post failed", zap.Uint64("post_id", p.PostID), zap.Error(err))
	}
}

// Invalidate 删除单个帖子缓存（投票、删除后调用），进行中的回源不会再写回旧值
func (c *PostCache) Invalidate(ctx context.Context, media chain.Address, id uint64) error {
	return c.bump(ctx, postKey(media, id))
}

// InvalidateIndex 删除帖子 ID 列表（发帖、删帖后调用）
func (c *PostCache) InvalidateIndex(ctx context.Context, media chain.Address) error {
	return c.bump(ctx, indexKey(media))
}

// ResetCounters clears recorded chain read counters.
func (c *PostCache) ResetCounters() {
	c.postReads.Store(0)
	c.indexLoads.Store(0)
	c.bulkLoads.Store(0)
}

// Counters reports how many underlying chain reads were executed.
func (c *PostCache) Counters() Counters {
	return Counters{
		PostReads:  c.postReads.Load(),
		IndexLoads: c.indexLoads.Load(),
		BulkLoads:  c.bulkLoads.Load(),
	}
}

// Counters summarises chain reads behind the cache.
type Counters struct {
	PostReads  int64
	IndexLoads int64
	BulkLoads  int64
}

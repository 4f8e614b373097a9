package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/qutee-media/internal/cache"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

func setup(t *testing.T) (*contract.QuteeMedia, *cache.PostCache, *miniredis.Miniredis) {
	t.Helper()
	ctx := context.Background()
	c := testutil.NewChain(t, 4)
	s := c.Signers()

	factory, _, err := contract.DeployNFTFactory(ctx, c, s[0])
	require.NoError(t, err)
	media, _, err := contract.DeployQuteeMedia(ctx, c, s[0], s[0], factory.Address())
	require.NoError(t, err)

	for _, who := range s[1:3] {
		_, err := media.Connect(who).RegisterUser(ctx)
		require.NoError(t, err)
		_, err = media.Connect(who).CreatePost(ctx, "hello from "+who.Hex(), "ipfs://img", "post")
		require.NoError(t, err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return media, cache.NewPostCache(rdb, time.Minute), mr
}

func TestSearchPostCached(t *testing.T) {
	ctx := context.Background()
	media, pc, mr := setup(t)

	p, err := pc.SearchPost(ctx, media, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.PostID)
	assert.True(t, mr.Exists("post:"+media.Address().Lower()+":1"))

	again, err := pc.SearchPost(ctx, media, 1)
	require.NoError(t, err)
	assert.Equal(t, p.Text, again.Text)
	assert.Equal(t, int64(1), pc.Counters().PostReads)

	_, err = pc.SearchPost(ctx, media, 9)
	assert.ErrorIs(t, err, contract.ErrPostNotFound)
	assert.Equal(t, int64(2), pc.Counters().PostReads)
}

func TestFetchPostsUsesIndexAndMGet(t *testing.T) {
	ctx := context.Background()
	media, pc, _ := setup(t)

	// 预热单个帖子，列表只需回源另一个
	_, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	pc.ResetCounters()

	posts, err := pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint64(0), posts[0].PostID)
	assert.Equal(t, uint64(1), posts[1].PostID)
	assert.Equal(t, cache.Counters{IndexLoads: 1, BulkLoads: 1}, pc.Counters())

	_, err = pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	assert.Equal(t, cache.Counters{IndexLoads: 1, BulkLoads: 1}, pc.Counters())
}

func TestInvalidateAfterVote(t *testing.T) {
	ctx := context.Background()
	media, pc, _ := setup(t)
	s := media.Caller()

	before, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), before.Upvote)

	_, err = media.Connect(s).VotePost(ctx, 0)
	require.NoError(t, err)

	stale, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stale.Upvote)

	require.NoError(t, pc.Invalidate(ctx, media.Address(), 0))
	fresh, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fresh.Upvote)
}

func TestInvalidateIndexAfterNewPost(t *testing.T) {
	ctx := context.Background()
	media, pc, _ := setup(t)

	posts, err := pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	author := posts[0].PostOwner
	_, err = media.Connect(author).CreatePost(ctx, "third", "ipfs://3", "three")
	require.NoError(t, err)

	posts, err = pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	require.NoError(t, pc.InvalidateIndex(ctx, media.Address()))
	posts, err = pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestRedisDownFallsBackToChain(t *testing.T) {
	ctx := context.Background()
	media, pc, mr := setup(t)
	mr.Close()

	p, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.PostID)

	posts, err := pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

// interleavedSource 在链上读取完成、写回缓存之前插入一段操作
type interleavedSource struct {
	*contract.QuteeMedia
	afterSearch func()
	afterBulk   func()
	afterIDs    func()
}

func runOnce(f *func()) {
	if *f != nil {
		hook := *f
		*f = nil
		hook()
	}
}

func (s *interleavedSource) SearchPost(ctx context.Context, id uint64) (*contract.Post, error) {
	p, err := s.QuteeMedia.SearchPost(ctx, id)
	runOnce(&s.afterSearch)
	return p, err
}

func (s *interleavedSource) FetchPostsByIDs(ctx context.Context, ids []uint64) ([]contract.Post, error) {
	posts, err := s.QuteeMedia.FetchPostsByIDs(ctx, ids)
	runOnce(&s.afterBulk)
	return posts, err
}

func (s *interleavedSource) PostIDs(ctx context.Context) ([]uint64, error) {
	ids, err := s.QuteeMedia.PostIDs(ctx)
	runOnce(&s.afterIDs)
	return ids, err
}

func TestInvalidateDuringSearchKeepsStaleOut(t *testing.T) {
	ctx := context.Background()
	media, pc, mr := setup(t)
	voter := media.Caller()
	src := &interleavedSource{QuteeMedia: media}
	src.afterSearch = func() {
		_, err := media.Connect(voter).VotePost(ctx, 0)
		require.NoError(t, err)
		require.NoError(t, pc.Invalidate(ctx, media.Address(), 0))
	}

	old, err := pc.SearchPost(ctx, src, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), old.Upvote)
	assert.False(t, mr.Exists("post:"+media.Address().Lower()+":0"))

	fresh, err := pc.SearchPost(ctx, media, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fresh.Upvote)
	assert.Equal(t, int64(2), pc.Counters().PostReads)
}

func TestInvalidateDuringBulkLoadKeepsStaleOut(t *testing.T) {
	ctx := context.Background()
	media, pc, _ := setup(t)
	voter := media.Caller()
	src := &interleavedSource{QuteeMedia: media}
	src.afterBulk = func() {
		_, err := media.Connect(voter).DownVoteCourse(ctx, 1)
		require.NoError(t, err)
		require.NoError(t, pc.Invalidate(ctx, media.Address(), 1))
	}

	posts, err := pc.FetchPosts(ctx, src)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint64(0), posts[1].Downvote)

	posts, err = pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint64(1), posts[1].Downvote)
	// 只有被失效的帖子需要再次回源
	assert.Equal(t, cache.Counters{IndexLoads: 1, BulkLoads: 2}, pc.Counters())
}

func TestInvalidateIndexDuringLoadKeepsStaleOut(t *testing.T) {
	ctx := context.Background()
	media, pc, _ := setup(t)
	src := &interleavedSource{QuteeMedia: media}
	src.afterIDs = func() {
		posts, err := media.FetchPosts(ctx)
		require.NoError(t, err)
		_, err = media.Connect(posts[0].PostOwner).CreatePost(ctx, "third", "ipfs://3", "three")
		require.NoError(t, err)
		require.NoError(t, pc.InvalidateIndex(ctx, media.Address()))
	}

	posts, err := pc.FetchPosts(ctx, src)
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	posts, err = pc.FetchPosts(ctx, media)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

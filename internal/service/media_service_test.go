package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/qutee-media/internal/cache"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

func newMediaService(t *testing.T, withCache bool) (service.MediaService, *service.Deployment, []chain.Address) {
	t.Helper()
	c := testutil.NewChain(t, 4)
	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(context.Background(), c.Signers()[0])
	require.NoError(t, err)

	var pc *cache.PostCache
	if withCache {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		pc = cache.NewPostCache(rdb, time.Minute)
	}
	return service.NewMediaService(c, pc, repository.NewActivityRepository(c.DB())), d, c.Signers()
}

func TestMediaServiceFlow(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		name := "direct"
		if withCache {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc, d, s := newMediaService(t, withCache)
			admin, author, voter := s[0], s[1], s[2]

			_, err := svc.Register(ctx, d.Media, author)
			require.NoError(t, err)
			ok, err := svc.IsRegistered(ctx, d.Media, author)
			require.NoError(t, err)
			assert.True(t, ok)

			post, rcpt, err := svc.CreatePost(ctx, d.Media, author, "first", "ipfs://1", "one")
			require.NoError(t, err)
			assert.True(t, rcpt.Succeeded())
			assert.Equal(t, uint64(0), post.PostID)
			assert.Equal(t, author, post.PostOwner)

			// 读一次让缓存生效，写之后必须看到新值
			posts, err := svc.ListPosts(ctx, d.Media)
			require.NoError(t, err)
			require.Len(t, posts, 1)

			_, err = svc.Upvote(ctx, d.Media, voter, 0)
			require.NoError(t, err)
			got, err := svc.GetPost(ctx, d.Media, 0)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), got.Upvote)

			_, _, err = svc.CreatePost(ctx, d.Media, author, "second", "ipfs://2", "two")
			require.NoError(t, err)
			posts, err = svc.ListPosts(ctx, d.Media)
			require.NoError(t, err)
			assert.Len(t, posts, 2)

			_, err = svc.Downvote(ctx, d.Media, voter, 1)
			require.NoError(t, err)
			got, err = svc.GetPost(ctx, d.Media, 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), got.Downvote)

			_, err = svc.RemovePost(ctx, d.Media, author, 1)
			require.ErrorIs(t, err, contract.ErrNotAdmin)
			_, err = svc.RemovePost(ctx, d.Media, admin, 1)
			require.NoError(t, err)
			_, err = svc.GetPost(ctx, d.Media, 1)
			assert.ErrorIs(t, err, contract.ErrPostNotFound)
			posts, err = svc.ListPosts(ctx, d.Media)
			require.NoError(t, err)
			assert.Len(t, posts, 1)

			next, err := svc.NextPostID(ctx, d.Media)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), next)

			tok, err := svc.Token(ctx, d.NFTFactory, post.TokenID)
			require.NoError(t, err)
			assert.Equal(t, author, tok.Owner)
			assert.Equal(t, "ipfs://1", tok.URI)
			bal, err := svc.Balance(ctx, d.NFTFactory, author)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), bal)
		})
	}
}

func TestMediaServiceUnknownContract(t *testing.T) {
	ctx := context.Background()
	svc, d, s := newMediaService(t, false)

	_, err := svc.Register(ctx, s[3], s[1])
	assert.ErrorIs(t, err, chain.ErrContractNotFound)
	_, err = svc.ListPosts(ctx, d.NFTFactory)
	assert.ErrorIs(t, err, contract.ErrWrongContractKind)
	_, err = svc.Token(ctx, d.Media, 0)
	assert.ErrorIs(t, err, contract.ErrWrongContractKind)
}

func TestMediaServiceActivity(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 3)
	activities := repository.NewActivityRepository(c.DB())
	svc := service.NewMediaService(c, nil, activities)
	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, c.Signers()[0])
	require.NoError(t, err)

	idx := service.NewActivityIndexer(activities, nil, 16)
	rcpt, err := svc.Register(ctx, d.Media, c.Signers()[1])
	require.NoError(t, err)
	idx.Enqueue(rcpt)
	stop := idx.Start(1)
	require.Eventually(t, func() bool { return idx.QueueLen() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop(ctx))

	feed, err := svc.ListActivity(ctx, c.Signers()[1], 0, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, contract.EventUserRegistered, feed[0].Event)
	assert.Equal(t, d.Media.Lower(), feed[0].ContractAddress)
}

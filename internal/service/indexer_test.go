package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

type recordingCache struct {
	mu      sync.Mutex
	posts   []uint64
	indexes int
}

func (r *recordingCache) Invalidate(_ context.Context, _ chain.Address, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, id)
	return nil
}

func (r *recordingCache) InvalidateIndex(context.Context, chain.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes++
	return nil
}

func (r *recordingCache) snapshot() ([]uint64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.posts...), r.indexes
}

func TestActivityIndexer(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 4)
	s := c.Signers()
	activities := repository.NewActivityRepository(c.DB())
	rc := &recordingCache{}

	idx := service.NewActivityIndexer(activities, rc, 64)
	stop := idx.Start(2)
	unfollow := idx.Follow(c)
	defer unfollow()

	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, s[0])
	require.NoError(t, err)
	media, err := contract.BindQuteeMedia(ctx, c, d.Media)
	require.NoError(t, err)

	author, voter := s[1], s[2]
	_, err = media.Connect(author).RegisterUser(ctx)
	require.NoError(t, err)
	_, err = media.Connect(author).CreatePost(ctx, "gm", "ipfs://gm", "gm")
	require.NoError(t, err)
	_, err = media.Connect(voter).VotePost(ctx, 0)
	require.NoError(t, err)
	// revert 不产生动态
	_, err = media.Connect(voter).VotePost(ctx, 0)
	require.ErrorIs(t, err, contract.ErrAlreadyVoted)

	require.Eventually(t, func() bool {
		feed, err := activities.ListByAddress(ctx, author.Lower(), 0, 10)
		return err == nil && len(feed) == 3
	}, 3*time.Second, 20*time.Millisecond)
	authorFeed, err := activities.ListByAddress(ctx, author.Lower(), 0, 10)
	require.NoError(t, err)

	// 最新的在前：PostCreated, Transfer(铸造给作者), UserRegistered
	assert.Equal(t, contract.EventPostCreated, authorFeed[0].Event)
	assert.Equal(t, contract.EventTransfer, authorFeed[1].Event)
	assert.Equal(t, d.NFTFactory.Lower(), authorFeed[1].ContractAddress)
	assert.Equal(t, contract.EventUserRegistered, authorFeed[2].Event)
	require.NotNil(t, authorFeed[0].PostID)
	assert.Equal(t, uint64(0), *authorFeed[0].PostID)

	require.Eventually(t, func() bool {
		feed, err := activities.ListByAddress(ctx, voter.Lower(), 0, 10)
		return err == nil && len(feed) == 1 && feed[0].Event == contract.EventPostUpvoted
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, stop(ctx))
	posts, indexes := rc.snapshot()
	assert.Equal(t, []uint64{0, 0}, posts)
	assert.Equal(t, 1, indexes)
	assert.Equal(t, 0, idx.QueueLen())
}

func TestActivityIndexerIdempotent(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 2)
	activities := repository.NewActivityRepository(c.DB())
	idx := service.NewActivityIndexer(activities, nil, 8)

	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, c.Signers()[0])
	require.NoError(t, err)
	media, err := contract.BindQuteeMedia(ctx, c, d.Media)
	require.NoError(t, err)
	rcpt, err := media.Connect(c.Signers()[1]).RegisterUser(ctx)
	require.NoError(t, err)

	idx.Enqueue(rcpt)
	idx.Enqueue(rcpt)
	assert.Equal(t, 2, idx.QueueLen())

	stop := idx.Start(1)
	require.Eventually(t, func() bool { return idx.QueueLen() == 0 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop(ctx))

	feed, err := activities.ListByAddress(ctx, c.Signers()[1].Lower(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	select {
	case lat := <-idx.Metrics():
		assert.Positive(t, lat)
	default:
		t.Fatal("no latency sample recorded")
	}
}

func TestActivityIndexerDropsWhenFull(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewChain(t, 2)
	idx := service.NewActivityIndexer(repository.NewActivityRepository(c.DB()), nil, 1)

	d, err := service.NewDeployer(c, chain.ZeroAddress).DeployAll(ctx, c.Signers()[0])
	require.NoError(t, err)
	media, err := contract.BindQuteeMedia(ctx, c, d.Media)
	require.NoError(t, err)
	rcpt, err := media.Connect(c.Signers()[1]).RegisterUser(ctx)
	require.NoError(t, err)

	idx.Enqueue(rcpt)
	idx.Enqueue(rcpt)
	assert.Equal(t, 1, idx.QueueLen())

	// 无事件的回执不入队
	idx.Enqueue(d.FactoryReceipt)
	assert.Equal(t, 1, idx.QueueLen())
}

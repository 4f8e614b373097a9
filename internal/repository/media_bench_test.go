package repository_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/testutil"
)

func BenchmarkVoteWrite_And_Counter(b *testing.B) {
	db := testutil.NewDB(b)
	posts := repository.NewPostRepository(db)
	votes := repository.NewVoteRepository(db)
	ctx := context.Background()

	const P = 100
	for i := uint64(0); i < P; i++ {
		if err := posts.Create(ctx, &model.Post{ContractAddress: media, PostID: i, Owner: "0xa"}); err != nil {
			b.Fatalf("seed posts: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		postID := uint64(rng.Intn(P))
		dir := model.VoteUp
		if i%2 == 1 {
			dir = model.VoteDown
		}
		_ = votes.Create(ctx, &model.Vote{ContractAddress: media, PostID: postID, Voter: fmt.Sprintf("0x%040x", i), Direction: dir})
		_ = posts.AddVote(ctx, media, postID, dir)
	}
}

func BenchmarkQueryPostsAndActivity(b *testing.B) {
	db := testutil.NewDB(b)
	posts := repository.NewPostRepository(db)
	activities := repository.NewActivityRepository(db)
	ctx := context.Background()

	// 一个作者 N 个帖子，每帖一条动态
	const N = 5000
	batch := make([]*model.Activity, 0, 500)
	for i := 0; i < N; i++ {
		_ = posts.Create(ctx, &model.Post{ContractAddress: media, PostID: uint64(i), Owner: "0xa", Text: "t"})
		batch = append(batch, &model.Activity{
			ID: fmt.Sprintf("act-%d", i), Address: "0xa", Event: "PostCreated",
			TxHash: fmt.Sprintf("0x%064x", i), BlockNumber: uint64(i),
		})
		if len(batch) == cap(batch) {
			_ = activities.CreateBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	_ = activities.CreateBatch(ctx, batch)

	ids := make([]uint64, 50)
	for i := range ids {
		ids[i] = uint64(i * 7)
	}

	b.ResetTimer()
	b.Run("ListPosts", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = posts.List(ctx, media)
		}
	})
	b.Run("ListByIDs", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = posts.ListByIDs(ctx, media, ids)
		}
	})
	b.Run("ListActivity", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = activities.ListByAddress(ctx, "0xa", 0, 50)
		}
	})
}

// votebench 压测点赞/点踩：同步上链延迟 + 异步动态索引落地延迟
//
//	N=2000 CONC=8 POSTS=20 go run ./cmd/votebench
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func main() {
	N := envInt("N", 2000)
	CONC := envInt("CONC", 1)
	POSTS := envInt("POSTS", 20)
	PAGE := envInt("PAGE", 50)

	// 默认用 sqlite 内存库，避免污染配置里的链状态；DSN 指定时走配置的 driver
	cfg := must(config.Load())
	dbCfg := config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}
	if dsn := os.Getenv("DSN"); dsn != "" {
		dbCfg = cfg.NetworkDatabase()
		dbCfg.DSN = dsn
	}
	db := must(database.Open(dbCfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}

	ctx := context.Background()
	// signer 0 是管理员兼作者，其余每个账户只投一票
	signers := chain.DeriveSigners("votebench", N+1)
	c := must(chain.New(ctx, db, chain.Options{ChainID: 1337, Network: "votebench", Signers: signers}))
	author := signers[0]

	activities := repository.NewActivityRepository(db)
	indexer := service.NewActivityIndexer(activities, nil, 100000)
	stop := indexer.Start(8)
	unfollow := indexer.Follow(c)
	svc := service.NewMediaService(c, nil, activities)

	d := must(service.NewDeployer(c, author).DeployAll(ctx, author))
	must(svc.Register(ctx, d.Media, author))
	for i := 0; i < POSTS; i++ {
		if _, _, err := svc.CreatePost(ctx, d.Media, author, fmt.Sprintf("post %d", i), "ipfs://bench", "bench"); err != nil {
			panic(err)
		}
	}

	voteRecs := make([]time.Duration, 0, N)
	voteCh := make(chan time.Duration, N)
	idxMetrics := indexer.Metrics()
	idxRecs := make([]time.Duration, 0, N)
	doneIdx := make(chan struct{})
	idxFinished := make(chan struct{})
	go func() {
		defer close(idxFinished)
		timeout := time.NewTimer(5 * time.Minute)
		defer timeout.Stop()
		for {
			select {
			case lat := <-idxMetrics:
				idxRecs = append(idxRecs, lat)
			case <-doneIdx:
				return
			case <-timeout.C:
				return
			}
		}
	}()

	maxQ := 0
	quitSample := make(chan struct{})
	sampleDone := make(chan struct{})
	go func() {
		defer close(sampleDone)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if q := indexer.QueueLen(); q > maxQ {
					maxQ = q
				}
			case <-quitSample:
				return
			}
		}
	}()

	workers := CONC
	if workers > N {
		workers = N
	}
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	failed := make(chan int, workers)
	t0 := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			errs := 0
			for i := range feed {
				voter := signers[i+1]
				postID := uint64(i % POSTS)
				vote := svc.Upvote
				if i%3 == 0 {
					vote = svc.Downvote
				}
				st := time.Now()
				if _, err := vote(ctx, d.Media, voter, postID); err != nil {
					errs++
				}
				voteCh <- time.Since(st)
			}
			failed <- errs
		}()
	}
	errs := 0
	for w := 0; w < workers; w++ {
		errs += <-failed
	}
	close(voteCh)
	for lat := range voteCh {
		voteRecs = append(voteRecs, lat)
	}
	voteDur := time.Since(t0)
	close(quitSample)
	<-sampleDone

	drainStart := time.Now()
	unfollow()
	_ = stop(ctx)
	drainDur := time.Since(drainStart)
	close(doneIdx)
	<-idxFinished

	q0 := time.Now()
	posts := must(svc.ListPosts(ctx, d.Media))
	listDur := time.Since(q0)

	q1 := time.Now()
	_ = must(svc.ListActivity(ctx, author, 1, PAGE))
	actDur := time.Since(q1)

	var up, down uint64
	for _, p := range posts {
		up += p.Upvote
		down += p.Downvote
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("N=%d, CONC=%d, POSTS=%d, PAGE=%d, head=%d\n", N, CONC, POSTS, PAGE, c.BlockNumber())
	fmt.Printf("Vote latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v, failed: %d\n",
		voteDur, voteDur/time.Duration(N), pct(voteRecs, 0.50), pct(voteRecs, 0.95), pct(voteRecs, 0.99), errs)
	fmt.Printf("Tally: upvotes=%d, downvotes=%d\n", up, down)
	fmt.Printf("fetchPosts(%d) latency: %v\n", len(posts), listDur)
	fmt.Printf("Activity page(%d) latency: %v\n", PAGE, actDur)
	if len(idxRecs) > 0 {
		fmt.Printf("Indexer landing: samples=%d, p50=%v, p95=%v, p99=%v, maxQueue=%d, drain=%v\n",
			len(idxRecs), pct(idxRecs, 0.50), pct(idxRecs, 0.95), pct(idxRecs, 0.99), maxQ, drainDur)
	}
}

// postcachebench 对比帖子读取：直接合约 view vs redis 缓存（MGET + 按需回源）
//
//	REDIS_ADDR=localhost:6379 POSTS=500 REQS=3000 go run ./cmd/postcachebench
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/qutee-media/config"
	"github.com/d60-Lab/qutee-media/internal/cache"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/database"
)

type request struct {
	list   bool
	postID uint64
	// 读之前先投一票，触发缓存失效
	vote bool
}

type scenarioResult struct {
	durations   []time.Duration
	counters    cache.Counters
	cacheKeys   int
	memoryBytes int64
}

func main() {
	ctx := context.Background()
	posts := envInt("POSTS", 500)
	reqCount := envInt("REQS", 3000)
	writeEvery := envInt("WRITE_EVERY", 50)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}

	db := must(database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}))
	mustDo(database.Migrate(db))

	// 投票人数需覆盖全部写请求，每个账户只投一次
	voters := 2*(reqCount/writeEvery) + 2
	signers := chain.DeriveSigners("postcachebench", voters+1)
	c := must(chain.New(ctx, db, chain.Options{ChainID: 1337, Network: "postcachebench", Signers: signers}))
	author := signers[0]
	d := must(service.NewDeployer(c, author).DeployAll(ctx, author))
	media := must(contract.BindQuteeMedia(ctx, c, d.Media))

	fmt.Printf("Setting up %d posts...\n", posts)
	must(media.Connect(author).RegisterUser(ctx))
	for i := 0; i < posts; i++ {
		must(media.Connect(author).CreatePost(ctx, fmt.Sprintf("post %d", i), "ipfs://bench", fmt.Sprintf("p%d", i)))
	}
	fmt.Println("Test data ready")

	postCache := cache.NewPostCache(client, 10*time.Minute)
	reqs := makeRequests(reqCount, posts, writeEvery)

	// 两个场景各用一半投票账户，避免重复投票
	noCache := runScenario(ctx, client, postCache, reqs, signers[1:voters/2+1], func(ctx context.Context, r request) error {
		if r.list {
			_, err := media.FetchPosts(ctx)
			return err
		}
		_, err := media.SearchPost(ctx, r.postID)
		return err
	}, nil, media)

	cached := runScenario(ctx, client, postCache, reqs, signers[voters/2+1:], func(ctx context.Context, r request) error {
		if r.list {
			_, err := postCache.FetchPosts(ctx, media)
			return err
		}
		_, err := postCache.SearchPost(ctx, media, r.postID)
		return err
	}, postCache, media)

	fmt.Printf("\nPost reads (%d req, %d posts, write every %d, sqlite chain + Redis)\n", reqCount, posts, writeEvery)
	report("No cache", noCache)
	report("Post cache", cached)
}

func runScenario(
	ctx context.Context,
	client *redis.Client,
	postCache *cache.PostCache,
	reqs []request,
	voters []chain.Address,
	call func(context.Context, request) error,
	invalidate service.PostInvalidator,
	media *contract.QuteeMedia,
) scenarioResult {
	client.FlushAll(ctx)
	postCache.ResetCounters()

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	next := 0
	for _, r := range reqs {
		if r.vote && next < len(voters) {
			if _, err := media.Connect(voters[next]).VotePost(ctx, r.postID); err != nil {
				panic(err)
			}
			next++
			if invalidate != nil {
				_ = invalidate.Invalidate(ctx, media.Address(), r.postID)
			}
		}
		start := time.Now()
		if err := call(ctx, r); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "*").Result()
	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{
		durations:   out,
		counters:    postCache.Counters(),
		cacheKeys:   len(keys),
		memoryBytes: memBytes,
	}
}

func report(name string, r scenarioResult) {
	fmt.Printf("%-12s avg=%v p95=%v p99=%v chain_post=%d chain_index=%d chain_bulk=%d cache_keys=%d mem=%s\n",
		name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
		r.counters.PostReads, r.counters.IndexLoads, r.counters.BulkLoads,
		r.cacheKeys, formatBytes(r.memoryBytes),
	)
}

// makeRequests 80% 单帖读取（热点集中在前 10%），20% 全量列表
func makeRequests(n, posts, writeEvery int) []request {
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	hot := posts / 10
	if hot == 0 {
		hot = 1
	}
	for i := 0; i < n; i++ {
		id := uint64(rnd.Intn(posts))
		if rnd.Float64() < 0.7 {
			id = uint64(rnd.Intn(hot))
		}
		out[i] = request{
			list:   rnd.Float64() < 0.2,
			postID: id,
			vote:   i%writeEvery == writeEvery-1,
		}
	}
	return out
}

// parseRedisMemory 从 INFO memory 中取 used_memory
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}

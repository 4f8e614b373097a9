package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

// PostInvalidator 事件落地后需要清理的帖子缓存
type PostInvalidator interface {
	Invalidate(ctx context.Context, media chain.Address, id uint64) error
	InvalidateIndex(ctx context.Context, media chain.Address) error
}

type indexJob struct {
	rcpt  *chain.Receipt
	enqAt time.Time
}

// ActivityIndexer 异步消费回执，把事件写成用户动态并清理缓存
type ActivityIndexer struct {
	activities repository.ActivityRepository
	cache      PostInvalidator
	ch         chan indexJob
	metricsCh  chan time.Duration
}

// NewActivityIndexer cache 可以为 nil（未启用 redis）
func NewActivityIndexer(activities repository.ActivityRepository, cache PostInvalidator, queueSize int) *ActivityIndexer {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &ActivityIndexer{
		activities: activities,
		cache:      cache,
		ch:         make(chan indexJob, queueSize),
		metricsCh:  make(chan time.Duration, 65536),
	}
}

// Follow 订阅链上回执并转入队列，返回取消订阅函数
func (x *ActivityIndexer) Follow(c *chain.Chain) func() {
	receipts, cancel := c.Subscribe(0)
	go func() {
		for rcpt := range receipts {
			x.Enqueue(rcpt)
		}
	}()
	return cancel
}

// Start 启动 workers 个消费者；返回的停止函数先等待队列排空（最多 2s 或 ctx 结束）
func (x *ActivityIndexer) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-x.ch:
					x.handle(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		timeout := time.After(2 * time.Second)
	drain:
		for len(x.ch) > 0 {
			select {
			case <-timeout:
				break drain
			case <-ctx.Done():
				break drain
			case <-time.After(20 * time.Millisecond):
			}
		}
		close(stopCh)
		wg.Wait()
		return nil
	}
}

// Enqueue 非阻塞入队，队列满时丢弃
func (x *ActivityIndexer) Enqueue(rcpt *chain.Receipt) {
	if rcpt == nil || len(rcpt.Logs) == 0 {
		return
	}
	select {
	case x.ch <- indexJob{rcpt: rcpt, enqAt: time.Now()}:
	default:
		logger.Warn("indexer queue full, drop receipt", zap.String("tx", rcpt.TxHash.Hex()))
	}
}

func (x *ActivityIndexer) handle(job indexJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items := lo.Map(job.rcpt.Logs, func(l chain.Log, _ int) *model.Activity {
		return toActivity(job.rcpt, l)
	})
	if err := x.activities.CreateBatch(ctx, items); err != nil {
		logger.Error("index activity failed", zap.String("tx", job.rcpt.TxHash.Hex()), zap.Error(err))
	}
	if x.cache != nil {
		for _, l := range job.rcpt.Logs {
			x.invalidate(ctx, l)
		}
	}

	select {
	case x.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

func (x *ActivityIndexer) invalidate(ctx context.Context, l chain.Log) {
	var ref struct {
		PostID *uint64 `json:"postId"`
	}
	if l.Decode(&ref) != nil || ref.PostID == nil {
		return
	}
	var err error
	switch l.Event {
	case contract.EventPostCreated, contract.EventPostRemoved:
		if err = x.cache.InvalidateIndex(ctx, l.Address); err == nil {
			err = x.cache.Invalidate(ctx, l.Address, *ref.PostID)
		}
	case contract.EventPostUpvoted, contract.EventPostDownvoted:
		err = x.cache.Invalidate(ctx, l.Address, *ref.PostID)
	}
	if err != nil {
		logger.Warn("invalidate post cache failed", zap.String("event", l.Event), zap.Error(err))
	}
}

// actor 事件里的行为人，缺省为交易发送者
type actor struct {
	User   *chain.Address `json:"user"`
	Owner  *chain.Address `json:"owner"`
	Voter  *chain.Address `json:"voter"`
	By     *chain.Address `json:"by"`
	To     *chain.Address `json:"to"`
	PostID *uint64        `json:"postId"`
}

func toActivity(rcpt *chain.Receipt, l chain.Log) *model.Activity {
	var a actor
	_ = json.Unmarshal(l.Data, &a)
	who, ok := lo.Find([]*chain.Address{a.User, a.Owner, a.Voter, a.By, a.To}, func(p *chain.Address) bool {
		return p != nil && !p.IsZero()
	})
	addr := rcpt.From
	if ok {
		addr = *who
	}
	return &model.Activity{
		ID:              uuid.NewString(),
		Address:         addr.Lower(),
		ContractAddress: l.Address.Lower(),
		Event:           l.Event,
		PostID:          a.PostID,
		TxHash:          rcpt.TxHash.Hex(),
		LogIndex:        l.Index,
		BlockNumber:     rcpt.BlockNumber,
	}
}

// Metrics 返回落地耗时的只读通道（每处理一条回执发送一次）
func (x *ActivityIndexer) Metrics() <-chan time.Duration { return x.metricsCh }

// QueueLen 当前队列长度（采样值）
func (x *ActivityIndexer) QueueLen() int { return len(x.ch) }

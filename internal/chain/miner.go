package chain

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/qutee-media/pkg/logger"
)

// Miner 按 cron 表达式定时出空块（例如 "@every 5s"）
type Miner struct {
	chain *Chain
	cron  *cron.Cron
}

// NewMiner spec 为空时返回 nil，表示只在交易时出块
func NewMiner(c *Chain, spec string) (*Miner, error) {
	if spec == "" {
		return nil, nil
	}
	m := &Miner{chain: c, cron: cron.New()}
	if _, err := m.cron.AddFunc(spec, m.mineOnce); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Miner) mineOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	number, err := m.chain.Mine(ctx)
	if err != nil {
		logger.Error("interval mining failed", zap.Error(err))
		return
	}
	logger.Debug("mined empty block", zap.Uint64("number", number))
}

func (m *Miner) Start() {
	if m != nil {
		m.cron.Start()
	}
}

// Stop 停止调度并等待正在执行的任务结束
func (m *Miner) Stop() {
	if m != nil {
		<-m.cron.Stop().Done()
	}
}

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrStaticCall = errors.New("state modification in static call")

// Env 合约执行环境
type Env struct {
	ctx      context.Context
	tx       *gorm.DB
	chain    *Chain
	readOnly bool
	txHash   Hash
	logs     *[]Log

	Block  uint64
	Time   time.Time
	Origin Address // tx.origin
	Sender Address // msg.sender
	Self   Address // 当前合约地址
}

func (e *Env) Context() context.Context { return e.ctx }

// DB 返回当前交易的数据库句柄（只读调用时为普通连接）
func (e *Env) DB() *gorm.DB { return e.tx }

func (e *Env) ChainID() int64 { return e.chain.chainID }

func (e *Env) ReadOnly() bool { return e.readOnly }

// Emit 记录事件，随交易一起提交
func (e *Env) Emit(event string, data any) error {
	if e.readOnly {
		return ErrStaticCall
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event, err)
	}
	*e.logs = append(*e.logs, Log{
		Index:   len(*e.logs),
		Address: e.Self,
		Event:   event,
		Data:    raw,
	})
	return nil
}

// ContractKind 返回地址上的合约类型
func (e *Env) ContractKind(addr Address) (string, error) {
	var kind string
	err := e.tx.WithContext(e.ctx).
		Table("contracts").
		Select("kind").
		Where("address = ?", addr.Lower()).
		Scan(&kind).Error
	if err != nil {
		return "", err
	}
	if kind == "" {
		return "", fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	return kind, nil
}

// Call 合约内部调用，被调合约看到的 msg.sender 为当前合约
func (e *Env) Call(to Address, fn ExecFunc) error {
	if _, err := e.ContractKind(to); err != nil {
		return err
	}
	sub := *e
	sub.Sender = e.Self
	sub.Self = to
	return fn(&sub)
}

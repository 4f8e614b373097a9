package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/model"
	"github.com/d60-Lab/qutee-media/internal/repository"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

// Options 模拟链参数
type Options struct {
	ChainID int64
	Network string
	Signers []Address
	Now     func() time.Time
}

// Chain 进程内模拟链：所有交易串行执行，一笔交易出一个块（automine）
type Chain struct {
	db      *gorm.DB
	chainID int64
	network string
	signers []Address
	known   map[Address]struct{}
	now     func() time.Time
	tracer  trace.Tracer

	mu       sync.Mutex
	head     uint64
	headHash Hash

	subMu sync.RWMutex
	subs  map[int]chan *Receipt
	subID int
}

// New 创建链实例；链为空时写入创世块
func New(ctx context.Context, db *gorm.DB, opts Options) (*Chain, error) {
	if len(opts.Signers) == 0 {
		return nil, errors.New("chain: at least one signer required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Chain{
		db:      db,
		chainID: opts.ChainID,
		network: opts.Network,
		signers: append([]Address(nil), opts.Signers...),
		known:   make(map[Address]struct{}, len(opts.Signers)),
		now:     opts.Now,
		tracer:  otel.Tracer("github.com/d60-Lab/qutee-media/internal/chain"),
		subs:    make(map[int]chan *Receipt),
	}
	for _, s := range c.signers {
		c.known[s] = struct{}{}
	}

	blocks := repository.NewBlockRepository(db)
	head, err := blocks.Head(ctx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("load head block: %w", err)
	}
	if head == nil {
		genesis := Keccak256([]byte("genesis"), int64Bytes(c.chainID))
		if err := blocks.Create(ctx, &model.Block{ChainID: c.chainID, Number: 0, Hash: genesis.Hex(), Timestamp: c.now()}); err != nil {
			return nil, fmt.Errorf("create genesis block: %w", err)
		}
		c.headHash = genesis
		return c, nil
	}
	c.head = head.Number
	if c.headHash, err = ParseHash(head.Hash); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) ChainID() int64 { return c.chainID }

func (c *Chain) Network() string { return c.network }

func (c *Chain) DB() *gorm.DB { return c.db }

// Signers 返回可签名账户（第一个为默认部署者）
func (c *Chain) Signers() []Address { return append([]Address(nil), c.signers...) }

// Signer 返回第 i 个账户
func (c *Chain) Signer(i int) (Address, error) {
	if i < 0 || i >= len(c.signers) {
		return ZeroAddress, fmt.Errorf("%w: index %d", ErrUnknownSigner, i)
	}
	return c.signers[i], nil
}

func (c *Chain) IsSigner(a Address) bool {
	_, ok := c.known[a]
	return ok
}

// BlockNumber 当前块高
func (c *Chain) BlockNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// ExecFunc 合约逻辑，返回 RevertError 时整笔交易回滚
type ExecFunc func(env *Env) error

type message struct {
	from   Address
	to     Address
	deploy bool
	kind   string
	method string
	args   any
}

// Deploy 部署合约：地址由部署者地址与 nonce 推导，init 为构造函数逻辑
func (c *Chain) Deploy(ctx context.Context, from Address, kind string, args any, init ExecFunc) (Address, *Receipt, error) {
	rcpt, err := c.execute(ctx, message{from: from, deploy: true, kind: kind, method: "deploy:" + kind, args: args}, init)
	if rcpt == nil || rcpt.ContractAddress == nil {
		return ZeroAddress, rcpt, err
	}
	return *rcpt.ContractAddress, rcpt, err
}

// Transact 向已部署合约发送交易
func (c *Chain) Transact(ctx context.Context, from, to Address, method string, args any, fn ExecFunc) (*Receipt, error) {
	return c.execute(ctx, message{from: from, to: to, method: method, args: args}, fn)
}

// View 只读调用，sender 为零地址
func (c *Chain) View(ctx context.Context, to Address, fn ExecFunc) error {
	return c.ViewAs(ctx, ZeroAddress, to, fn)
}

// ViewAs 以指定 sender 执行只读调用
func (c *Chain) ViewAs(ctx context.Context, from, to Address, fn ExecFunc) error {
	if _, err := c.Contract(ctx, to); err != nil {
		return err
	}
	c.mu.Lock()
	number := c.head
	c.mu.Unlock()

	env := &Env{
		ctx:      ctx,
		tx:       c.db,
		chain:    c,
		readOnly: true,
		Block:    number,
		Time:     c.now(),
		Origin:   from,
		Sender:   from,
		Self:     to,
	}
	return fn(env)
}

func (c *Chain) execute(ctx context.Context, msg message, fn ExecFunc) (*Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "chain."+msg.method, trace.WithAttributes(
		attribute.String("chain.from", msg.from.Hex()),
		attribute.Int64("chain.id", c.chainID),
	))
	defer span.End()

	if !c.IsSigner(msg.from) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, msg.from.Hex())
	}
	input, err := json.Marshal(msg.args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := repository.NewAccountRepository(c.db).GetNonce(ctx, c.chainID, msg.from.Lower())
	if err != nil {
		return nil, err
	}
	contracts := repository.NewContractRepository(c.db)
	if msg.deploy {
		msg.to = CreateAddress(msg.from, nonce)
		exists, err := contracts.Exists(ctx, msg.to.Lower())
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, msg.to.Hex())
		}
	} else if _, err := contracts.Get(ctx, msg.to.Lower()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrContractNotFound, msg.to.Hex())
		}
		return nil, err
	}

	number := c.head + 1
	now := c.now()
	txHash := Keccak256(int64Bytes(c.chainID), msg.from[:], uint64Bytes(nonce), msg.to[:], []byte(msg.method), input)
	blockHash := Keccak256(c.headHash[:], uint64Bytes(number), txHash[:])

	rcpt := &Receipt{
		TxHash:      txHash,
		ChainID:     c.chainID,
		BlockNumber: number,
		BlockHash:   blockHash,
		From:        msg.from,
		Nonce:       nonce,
		Method:      msg.method,
		Status:      ReceiptStatusSuccess,
	}
	if msg.deploy {
		addr := msg.to
		rcpt.ContractAddress = &addr
	} else {
		to := msg.to
		rcpt.To = &to
	}

	var logs []Log
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		env := &Env{
			ctx:    ctx,
			tx:     tx,
			chain:  c,
			Block:  number,
			Time:   now,
			Origin: msg.from,
			Sender: msg.from,
			Self:   msg.to,
			txHash: txHash,
			logs:   &logs,
		}
		if msg.deploy {
			if err := repository.NewContractRepository(tx).Create(ctx, &model.Contract{
				Address:         msg.to.Lower(),
				ChainID:         c.chainID,
				Network:         c.network,
				Kind:            msg.kind,
				Deployer:        msg.from.Lower(),
				TxHash:          txHash.Hex(),
				BlockNumber:     number,
				ConstructorArgs: string(input),
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}
		if fn != nil {
			if err := fn(env); err != nil {
				return err
			}
		}
		rcpt.Logs = logs
		return c.commit(ctx, tx, rcpt, string(input), now)
	})
	if err != nil {
		if !IsRevert(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		// revert：状态回滚，但 nonce 照常消耗并出块
		rcpt.Status = ReceiptStatusReverted
		rcpt.RevertReason = RevertReason(err)
		rcpt.Logs = nil
		rcpt.ContractAddress = nil
		if cerr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return c.commit(ctx, tx, rcpt, string(input), now)
		}); cerr != nil {
			return nil, cerr
		}
		span.SetAttributes(attribute.String("chain.revert", rcpt.RevertReason))
		c.advance(number, blockHash)
		c.publish(rcpt)
		return rcpt, err
	}

	c.advance(number, blockHash)
	c.publish(rcpt)
	return rcpt, nil
}

// commit 在同一个事务里写入 nonce、区块、交易与事件
func (c *Chain) commit(ctx context.Context, tx *gorm.DB, rcpt *Receipt, input string, now time.Time) error {
	if err := repository.NewAccountRepository(tx).IncrementNonce(ctx, c.chainID, rcpt.From.Lower()); err != nil {
		return err
	}
	if err := repository.NewBlockRepository(tx).Create(ctx, &model.Block{
		ChainID:    c.chainID,
		Number:     rcpt.BlockNumber,
		Hash:       rcpt.BlockHash.Hex(),
		ParentHash: c.headHash.Hex(),
		TxCount:    1,
		Timestamp:  now,
	}); err != nil {
		return err
	}

	row := &model.Transaction{
		Hash:         rcpt.TxHash.Hex(),
		ChainID:      c.chainID,
		BlockNumber:  rcpt.BlockNumber,
		From:         rcpt.From.Lower(),
		Nonce:        rcpt.Nonce,
		Method:       rcpt.Method,
		Input:        input,
		Status:       int8(rcpt.Status),
		RevertReason: rcpt.RevertReason,
		CreatedAt:    now,
	}
	if rcpt.To != nil {
		row.To = rcpt.To.Lower()
	}
	if rcpt.ContractAddress != nil {
		row.ContractAddress = rcpt.ContractAddress.Lower()
	}
	for _, l := range rcpt.Logs {
		row.Logs = append(row.Logs, model.EventLog{
			ID:          uuid.New().String(),
			TxHash:      row.Hash,
			LogIndex:    l.Index,
			ChainID:     c.chainID,
			BlockNumber: rcpt.BlockNumber,
			Address:     l.Address.Lower(),
			Event:       l.Event,
			Data:        string(l.Data),
			CreatedAt:   now,
		})
	}
	return repository.NewTransactionRepository(tx).Create(ctx, row)
}

func (c *Chain) advance(number uint64, hash Hash) {
	c.head = number
	c.headHash = hash
}

// Mine 产出一个空块（区间出块 / hardhat_mine）
func (c *Chain) Mine(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	number := c.head + 1
	now := c.now()
	hash := Keccak256(c.headHash[:], uint64Bytes(number), int64Bytes(now.UnixNano()))
	if err := repository.NewBlockRepository(c.db).Create(ctx, &model.Block{
		ChainID:    c.chainID,
		Number:     number,
		Hash:       hash.Hex(),
		ParentHash: c.headHash.Hex(),
		Timestamp:  now,
	}); err != nil {
		return 0, err
	}
	c.advance(number, hash)
	return number, nil
}

// LatestBlock 返回最新区块
func (c *Chain) LatestBlock(ctx context.Context) (*model.Block, error) {
	return repository.NewBlockRepository(c.db).Head(ctx, c.chainID)
}

// Contract 查询已部署合约
func (c *Chain) Contract(ctx context.Context, addr Address) (*model.Contract, error) {
	ct, err := repository.NewContractRepository(c.db).Get(ctx, addr.Lower())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContractNotFound, addr.Hex())
	}
	if err != nil {
		return nil, err
	}
	return ct, nil
}

// Contracts 当前链上全部合约（按部署顺序）
func (c *Chain) Contracts(ctx context.Context) ([]*model.Contract, error) {
	return repository.NewContractRepository(c.db).List(ctx, c.chainID)
}

// Receipt 按交易哈希查询回执
func (c *Chain) Receipt(ctx context.Context, hash Hash) (*Receipt, error) {
	row, err := repository.NewTransactionRepository(c.db).GetByHash(ctx, hash.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
	}
	if err != nil {
		return nil, err
	}
	return receiptFromModel(row)
}

// Transactions 某地址作为发送方或接收方的交易，按区块倒序；不含事件日志
func (c *Chain) Transactions(ctx context.Context, addr Address, offset, limit int) ([]*Receipt, error) {
	rows, err := repository.NewTransactionRepository(c.db).ListByAddress(ctx, c.chainID, addr.Lower(), offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Receipt, 0, len(rows))
	for _, row := range rows {
		rcpt, err := receiptFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rcpt)
	}
	return out, nil
}

// Subscribe 订阅已提交的回执；消费过慢时丢弃并打印告警。返回取消函数
func (c *Chain) Subscribe(buffer int) (<-chan *Receipt, func()) {
	if buffer <= 0 {
		buffer = 1024
	}
	ch := make(chan *Receipt, buffer)
	c.subMu.Lock()
	id := c.subID
	c.subID++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Chain) publish(rcpt *Receipt) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- rcpt:
		default:
			logger.Warn("receipt subscriber full, drop", zap.String("tx", rcpt.TxHash.Hex()))
		}
	}
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func int64Bytes(v int64) []byte { return uint64Bytes(uint64(v)) }

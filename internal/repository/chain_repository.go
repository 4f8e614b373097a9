package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/qutee-media/internal/model"
)

// AccountRepository 账户 nonce 仓储
type AccountRepository interface {
	GetNonce(ctx context.Context, chainID int64, address string) (uint64, error)
	IncrementNonce(ctx context.Context, chainID int64, address string) error
}

type accountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &accountRepository{db: db} }

func (r *accountRepository) GetNonce(ctx context.Context, chainID int64, address string) (uint64, error) {
	var acc model.Account
	err := r.db.WithContext(ctx).Where("chain_id = ? AND address = ?", chainID, address).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acc.Nonce, nil
}

func (r *accountRepository) IncrementNonce(ctx context.Context, chainID int64, address string) error {
	acc := &model.Account{ChainID: chainID, Address: address, Nonce: 1}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain_id"}, {Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{"nonce": gorm.Expr("accounts.nonce + 1")}),
	}).Create(acc).Error
}

// BlockRepository 区块仓储
type BlockRepository interface {
	Head(ctx context.Context, chainID int64) (*model.Block, error)
	Create(ctx context.Context, b *model.Block) error
}

type blockRepository struct{ db *gorm.DB }

func NewBlockRepository(db *gorm.DB) BlockRepository { return &blockRepository{db: db} }

// Head 返回最新区块，链为空时返回 (nil, nil)
func (r *blockRepository) Head(ctx context.Context, chainID int64) (*model.Block, error) {
	var b model.Block
	err := r.db.WithContext(ctx).Where("chain_id = ?", chainID).Order("number DESC").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *blockRepository) Create(ctx context.Context, b *model.Block) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// ContractRepository 合约仓储
type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	Get(ctx context.Context, address string) (*model.Contract, error)
	Exists(ctx context.Context, address string) (bool, error)
	List(ctx context.Context, chainID int64) ([]*model.Contract, error)
}

type contractRepository struct{ db *gorm.DB }

func NewContractRepository(db *gorm.DB) ContractRepository { return &contractRepository{db: db} }

func (r *contractRepository) Create(ctx context.Context, c *model.Contract) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *contractRepository) Get(ctx context.Context, address string) (*model.Contract, error) {
	var c model.Contract
	if err := r.db.WithContext(ctx).Where("address = ?", address).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contractRepository) Exists(ctx context.Context, address string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).Model(&model.Contract{}).Where("address = ?", address).Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *contractRepository) List(ctx context.Context, chainID int64) ([]*model.Contract, error) {
	var res []*model.Contract
	err := r.db.WithContext(ctx).Where("chain_id = ?", chainID).Order("block_number ASC").Find(&res).Error
	return res, err
}

// TransactionRepository 交易回执仓储
type TransactionRepository interface {
	// Create 写入交易，Logs 随关联一并写入
	Create(ctx context.Context, tx *model.Transaction) error
	GetByHash(ctx context.Context, hash string) (*model.Transaction, error)
	ListByAddress(ctx context.Context, chainID int64, address string, offset, limit int) ([]*model.Transaction, error)
}

type transactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *transactionRepository) GetByHash(ctx context.Context, hash string) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Logs", func(db *gorm.DB) *gorm.DB { return db.Order("log_index ASC") }).
		Where("hash = ?", hash).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) ListByAddress(ctx context.Context, chainID int64, address string, offset, limit int) ([]*model.Transaction, error) {
	var res []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND (from_address = ? OR to_address = ? OR contract_address = ?)", chainID, address, address, address).
		Order("block_number DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/model"
)

// TokenRepository NFT 仓储
type TokenRepository interface {
	Create(ctx context.Context, t *model.Token) error
	Get(ctx context.Context, contract string, tokenID uint64) (*model.Token, error)
	UpdateOwner(ctx context.Context, contract string, tokenID uint64, owner string) error
	CountByOwner(ctx context.Context, contract, owner string) (int64, error)
}

type tokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) TokenRepository { return &tokenRepository{db: db} }

func (r *tokenRepository) Create(ctx context.Context, t *model.Token) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *tokenRepository) Get(ctx context.Context, contract string, tokenID uint64) (*model.Token, error) {
	var t model.Token
	if err := r.db.WithContext(ctx).
		Where("contract_address = ? AND token_id = ?", contract, tokenID).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) UpdateOwner(ctx context.Context, contract string, tokenID uint64, owner string) error {
	return r.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("contract_address = ? AND token_id = ?", contract, tokenID).
		Update("owner", owner).Error
}

func (r *tokenRepository) CountByOwner(ctx context.Context, contract, owner string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.Token{}).
		Where("contract_address = ? AND owner = ?", contract, owner).
		Count(&cnt).Error
	return cnt, err
}

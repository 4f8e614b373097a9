package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/model"
)

type MemberRepository interface {
	Create(ctx context.Context, m *model.Member) error
	Exists(ctx context.Context, contract, user string) (bool, error)
}

type memberRepository struct{ db *gorm.DB }

func NewMemberRepository(db *gorm.DB) MemberRepository { return &memberRepository{db: db} }

func (r *memberRepository) Create(ctx context.Context, m *model.Member) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *memberRepository) Exists(ctx context.Context, contract, user string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Where("contract_address = ? AND user_address = ?", contract, user).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

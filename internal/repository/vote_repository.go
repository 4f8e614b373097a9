package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/model"
)

type VoteRepository interface {
	Create(ctx context.Context, v *model.Vote) error
	// Get 返回某地址对帖子的投票，未投票时返回 (nil, nil)
	Get(ctx context.Context, contract string, postID uint64, voter string) (*model.Vote, error)
}

type voteRepository struct{ db *gorm.DB }

func NewVoteRepository(db *gorm.DB) VoteRepository { return &voteRepository{db: db} }

func (r *voteRepository) Create(ctx context.Context, v *model.Vote) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *voteRepository) Get(ctx context.Context, contract string, postID uint64, voter string) (*model.Vote, error) {
	var v model.Vote
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND post_id = ? AND voter = ?", contract, postID, voter).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

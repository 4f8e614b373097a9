package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/qutee-media/internal/model"
)

// PostRepository 帖子仓储
type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error
	Get(ctx context.Context, contract string, postID uint64) (*model.Post, error)
	// List 按 post_id 升序返回未删除的帖子
	List(ctx context.Context, contract string) ([]*model.Post, error)
	ListByIDs(ctx context.Context, contract string, ids []uint64) ([]*model.Post, error)
	// AddVote 对应计数器加一
	AddVote(ctx context.Context, contract string, postID uint64, direction int8) error
	MarkRemoved(ctx context.Context, contract string, postID uint64) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, p *model.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *postRepository) Get(ctx context.Context, contract string, postID uint64) (*model.Post, error) {
	var p model.Post
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND post_id = ?", contract, postID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) List(ctx context.Context, contract string) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND removed = ?", contract, false).
		Order("post_id ASC").
		Find(&res).Error
	return res, err
}

func (r *postRepository) ListByIDs(ctx context.Context, contract string, ids []uint64) ([]*model.Post, error) {
	var res []*model.Post
	if len(ids) == 0 {
		return res, nil
	}
	err := r.db.WithContext(ctx).
		Where("contract_address = ? AND post_id IN ? AND removed = ?", contract, ids, false).
		Order("post_id ASC").
		Find(&res).Error
	return res, err
}

func (r *postRepository) AddVote(ctx context.Context, contract string, postID uint64, direction int8) error {
	column := "upvote"
	if direction == model.VoteDown {
		column = "downvote"
	}
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("contract_address = ? AND post_id = ?", contract, postID).
		Update(column, gorm.Expr(column+" + 1")).Error
}

func (r *postRepository) MarkRemoved(ctx context.Context, contract string, postID uint64) error {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("contract_address = ? AND post_id = ?", contract, postID).
		Update("removed", true).Error
}

package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/qutee-media/internal/model"
)

type ActivityRepository interface {
	// CreateBatch 批量写入，重复 (tx_hash, log_index) 忽略
	CreateBatch(ctx context.Context, items []*model.Activity) error
	ListByAddress(ctx context.Context, address string, offset, limit int) ([]*model.Activity, error)
}

type activityRepository struct{ db *gorm.DB }

func NewActivityRepository(db *gorm.DB) ActivityRepository { return &activityRepository{db: db} }

func (r *activityRepository) CreateBatch(ctx context.Context, items []*model.Activity) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error
}

func (r *activityRepository) ListByAddress(ctx context.Context, address string, offset, limit int) ([]*model.Activity, error) {
	var res []*model.Activity
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		Order("block_number DESC, log_index DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

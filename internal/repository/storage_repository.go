package repository

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/qutee-media/internal/model"
)

// StorageRepository 合约键值存储
type StorageRepository interface {
	Get(ctx context.Context, contract, slot string) (string, bool, error)
	Set(ctx context.Context, contract, slot, value string) error
	// Uint 读取计数器，未设置时为 0
	Uint(ctx context.Context, contract, slot string) (uint64, error)
	// Incr 计数器加一，返回加一之前的值
	Incr(ctx context.Context, contract, slot string) (uint64, error)
}

type storageRepository struct{ db *gorm.DB }

func NewStorageRepository(db *gorm.DB) StorageRepository { return &storageRepository{db: db} }

func (r *storageRepository) Get(ctx context.Context, contract, slot string) (string, bool, error) {
	var s model.StorageSlot
	err := r.db.WithContext(ctx).Where("contract_address = ? AND slot = ?", contract, slot).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (r *storageRepository) Set(ctx context.Context, contract, slot, value string) error {
	s := &model.StorageSlot{ContractAddress: contract, Slot: slot, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract_address"}, {Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(s).Error
}

func (r *storageRepository) Uint(ctx context.Context, contract, slot string) (uint64, error) {
	v, ok, err := r.Get(ctx, contract, slot)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func (r *storageRepository) Incr(ctx context.Context, contract, slot string) (uint64, error) {
	cur, err := r.Uint(ctx, contract, slot)
	if err != nil {
		return 0, err
	}
	if err := r.Set(ctx, contract, slot, strconv.FormatUint(cur+1, 10)); err != nil {
		return 0, err
	}
	return cur, nil
}

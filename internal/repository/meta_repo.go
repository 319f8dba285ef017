package repository

import (
	"context"
	"errors"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type metaRepository struct {
	db *gorm.DB
}

func NewMetaRepository(db *gorm.DB) interfaces.MetaRepository {
	return &metaRepository{db: db}
}

func (r *metaRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	var meta model.Meta
	err := r.db.WithContext(ctx).Where(&model.Meta{Key: key}).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return meta.Value, true, nil
}

func (r *metaRepository) Upsert(ctx context.Context, key, value string) (*model.Meta, error) {
	if key == "" {
		return nil, errors.New("meta key 不能为空")
	}
	meta := &model.Meta{Key: key, Value: value}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(meta).Error; err != nil {
		return nil, err
	}
	// 冲突更新时部分驱动不回填 id，重新读取
	if err := r.db.WithContext(ctx).Where(&model.Meta{Key: key}).First(meta).Error; err != nil {
		return nil, err
	}
	return meta, nil
}

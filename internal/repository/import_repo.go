package repository

import (
	"context"
	"errors"
	"fmt"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/model"

	"gorm.io/gorm"
)

type ImportRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) interfaces.ImportRepository {
	return &ImportRepository{db: db}
}

// purgeOrder 清空顺序：缓存与备注先删，参与者最后删（被弱引用的实体最后）
var purgeOrder = []interface{}{
	&model.ProbabilityCache{},
	&model.BroadcastNote{},
	&model.Penalty{},
	&model.Matchbox{},
	&model.MatchingNight{},
	&model.Participant{},
}

// ImportBatch 单事务导入：可选清空 → 逐类写入 → 提交；任一行失败整体回滚
func (r *ImportRepository) ImportBatch(ctx context.Context, batch *model.ImportBatch) (stats model.ImportStats, err error) {
	// 开启事务
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return stats, fmt.Errorf("开启事务失败: %w", tx.Error)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			stats = model.ImportStats{}
			err = fmt.Errorf("导入事务异常: %v", p)
		}
	}()

	// 1. 清空
	if batch.ClearBeforeImport {
		for _, m := range purgeOrder {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				tx.Rollback()
				return model.ImportStats{}, fmt.Errorf("清空%s失败: %w", tableOf(tx, m), err)
			}
		}
	}

	// 2. 逐类写入，保留调用方指定的主键
	for i, p := range batch.Participants {
		if err := tx.Create(p).Error; err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存participants[%d]失败: %w, name: %s", i, err, p.Name)
		}
		stats.Participants++
	}
	for i, n := range batch.MatchingNights {
		if err := tx.Create(n).Error; err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存matchingNights[%d]失败: %w, name: %s", i, err, n.Name)
		}
		stats.MatchingNights++
	}
	for i, m := range batch.Matchboxes {
		if err := tx.Create(m).Error; err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存matchboxes[%d]失败: %w", i, err)
		}
		stats.Matchboxes++
	}
	for i, p := range batch.Penalties {
		if err := tx.Create(p).Error; err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存penalties[%d]失败: %w, participant: %s", i, err, p.ParticipantName)
		}
		stats.Penalties++
	}

	// 3. 备注与缓存按自然键 upsert，只统计新插入的行
	for i, n := range batch.BroadcastNotes {
		inserted, err := upsertBroadcastNote(tx, n)
		if err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存broadcastNotes[%d]失败: %w, date: %s", i, err, n.Date)
		}
		if inserted {
			stats.BroadcastNotes++
		}
	}
	for i, c := range batch.ProbabilityCache {
		inserted, err := upsertProbabilityCache(tx, c)
		if err != nil {
			tx.Rollback()
			return model.ImportStats{}, fmt.Errorf("保存probabilityCache[%d]失败: %w, dataHash: %s", i, err, c.DataHash)
		}
		if inserted {
			stats.ProbabilityCache++
		}
	}

	// 提交事务
	if err := tx.Commit().Error; err != nil {
		return model.ImportStats{}, fmt.Errorf("提交事务失败: %w", err)
	}
	return stats, nil
}

// upsertBroadcastNote 先按 date 查找，存在则更新，否则插入；inserted 表示新增了一行
func upsertBroadcastNote(db *gorm.DB, note *model.BroadcastNote) (inserted bool, err error) {
	var existing model.BroadcastNote
	err = db.Where("date = ?", note.Date).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, db.Create(note).Error
	case err != nil:
		return false, err
	}
	note.ID = existing.ID
	note.CreatedAt = existing.CreatedAt
	return false, db.Save(note).Error
}

// upsertProbabilityCache 先按 dataHash 查找，存在则更新，否则插入
func upsertProbabilityCache(db *gorm.DB, cache *model.ProbabilityCache) (inserted bool, err error) {
	var existing model.ProbabilityCache
	err = db.Where("data_hash = ?", cache.DataHash).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return true, db.Create(cache).Error
	case err != nil:
		return false, err
	}
	cache.ID = existing.ID
	cache.CreatedAt = existing.CreatedAt
	return false, db.Save(cache).Error
}

func tableOf(db *gorm.DB, m interface{}) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(m); err != nil {
		return fmt.Sprintf("%T", m)
	}
	return stmt.Schema.Table
}

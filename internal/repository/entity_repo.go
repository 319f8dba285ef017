package repository

import (
	"context"
	"errors"

	"AytoSync/internal/model"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// EntityRepository 单表通用 CRUD
type EntityRepository[T any] struct {
	db    *gorm.DB
	order string
}

// NewEntityRepository order 为列表排序子句
func NewEntityRepository[T any](db *gorm.DB, order string) *EntityRepository[T] {
	return &EntityRepository[T]{db: db, order: order}
}

// List 全量列表
func (r *EntityRepository[T]) List(ctx context.Context) ([]*T, error) {
	var list []*T
	if err := r.db.WithContext(ctx).Order(r.order).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Get 按主键获取
func (r *EntityRepository[T]) Get(ctx context.Context, id uint64) (*T, error) {
	var item T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create 主键为 0 时由数据库分配
func (r *EntityRepository[T]) Create(ctx context.Context, item *T) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Save 全字段更新
func (r *EntityRepository[T]) Save(ctx context.Context, item *T) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete 按主键删除
func (r *EntityRepository[T]) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll 清空整表，返回删除行数
func (r *EntityRepository[T]) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("1 = 1").Delete(new(T))
	return res.RowsAffected, res.Error
}

// Count 行数
func (r *EntityRepository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error
	return n, err
}

// Repositories 全部实体仓储
type Repositories struct {
	db               *gorm.DB
	Participants     *EntityRepository[model.Participant]
	MatchingNights   *EntityRepository[model.MatchingNight]
	Matchboxes       *EntityRepository[model.Matchbox]
	Penalties        *EntityRepository[model.Penalty]
	BroadcastNotes   *EntityRepository[model.BroadcastNote]
	ProbabilityCache *EntityRepository[model.ProbabilityCache]
}

// NewRepositories 创建全部实体仓储，列表排序与前端约定一致
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:               db,
		Participants:     NewEntityRepository[model.Participant](db, "id ASC"),
		MatchingNights:   NewEntityRepository[model.MatchingNight](db, "date ASC, id ASC"),
		Matchboxes:       NewEntityRepository[model.Matchbox](db, "created_at DESC, id DESC"),
		Penalties:        NewEntityRepository[model.Penalty](db, "date DESC, id DESC"),
		BroadcastNotes:   NewEntityRepository[model.BroadcastNote](db, "date DESC"),
		ProbabilityCache: NewEntityRepository[model.ProbabilityCache](db, "id ASC"),
	}
}

// UpsertBroadcastNote 按 date 自然键写入（每个日期至多一条）
func (r *Repositories) UpsertBroadcastNote(ctx context.Context, note *model.BroadcastNote) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := upsertBroadcastNote(tx, note)
		return err
	})
}

// UpsertProbabilityCache 按 dataHash 自然键写入
func (r *Repositories) UpsertProbabilityCache(ctx context.Context, cache *model.ProbabilityCache) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := upsertProbabilityCache(tx, cache)
		return err
	})
}

// FindProbabilityCache 按 dataHash 查找缓存
func (r *Repositories) FindProbabilityCache(ctx context.Context, dataHash string) (*model.ProbabilityCache, error) {
	var cache model.ProbabilityCache
	err := r.db.WithContext(ctx).Where("data_hash = ?", dataHash).First(&cache).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cache, nil
}

// Counts 并发统计四类主要实体行数
func (r *Repositories) Counts(ctx context.Context) (model.EntityCounts, error) {
	var counts model.EntityCounts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts.Participants, err = r.Participants.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts.MatchingNights, err = r.MatchingNights.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts.Matchboxes, err = r.Matchboxes.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		counts.Penalties, err = r.Penalties.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.EntityCounts{}, err
	}
	return counts, nil
}

// ========== interfaces.SnapshotReader ==========

func (r *Repositories) ListParticipants(ctx context.Context) ([]*model.Participant, error) {
	return r.Participants.List(ctx)
}

func (r *Repositories) ListMatchingNights(ctx context.Context) ([]*model.MatchingNight, error) {
	return r.MatchingNights.List(ctx)
}

func (r *Repositories) ListMatchboxes(ctx context.Context) ([]*model.Matchbox, error) {
	return r.Matchboxes.List(ctx)
}

func (r *Repositories) ListPenalties(ctx context.Context) ([]*model.Penalty, error) {
	return r.Penalties.List(ctx)
}

func (r *Repositories) ListBroadcastNotes(ctx context.Context) ([]*model.BroadcastNote, error) {
	return r.BroadcastNotes.List(ctx)
}

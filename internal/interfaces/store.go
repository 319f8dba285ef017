package interfaces

import (
	"context"

	"AytoSync/internal/model"
)

// ImportRepository 事务性批量导入
type ImportRepository interface {
	// ImportBatch 在单个事务内（可选清空后）写入整批数据，任一行失败则整体回滚
	ImportBatch(ctx context.Context, batch *model.ImportBatch) (model.ImportStats, error)
}

// SequenceReport 自增序列修复结果，Failed 为 表名→错误信息
type SequenceReport struct {
	Fixed  []string          `json:"fixed"`
	Failed map[string]string `json:"failed,omitempty"`
}

// SequenceReconciler 将各表自增水位重置为 max(id)+1
type SequenceReconciler interface {
	ResetSequences(ctx context.Context) SequenceReport
}

// MetaRepository key/value 水位存储
type MetaRepository interface {
	// GetValue key 不存在时返回 ("", false, nil)
	GetValue(ctx context.Context, key string) (string, bool, error)
	Upsert(ctx context.Context, key, value string) (*model.Meta, error)
}

// SnapshotReader 导出所需的全量读取
type SnapshotReader interface {
	ListParticipants(ctx context.Context) ([]*model.Participant, error)
	ListMatchingNights(ctx context.Context) ([]*model.MatchingNight, error)
	ListMatchboxes(ctx context.Context) ([]*model.Matchbox, error)
	ListPenalties(ctx context.Context) ([]*model.Penalty, error)
	ListBroadcastNotes(ctx context.Context) ([]*model.BroadcastNote, error)
}

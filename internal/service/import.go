package service

import (
	"context"
	"fmt"

	"AytoSync/internal/config"
	"AytoSync/internal/interfaces"
	"AytoSync/internal/metrics"
	"AytoSync/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImportService 批量导入：投影校验 → 单事务写入 → （可选）自增序列修复
type ImportService struct {
	repo       interfaces.ImportRepository
	reconciler interfaces.SequenceReconciler
	cfg        config.ImportConfig
	logger     *logrus.Logger
}

func NewImportService(repo interfaces.ImportRepository, reconciler interfaces.SequenceReconciler, cfg config.ImportConfig, logger *logrus.Logger) *ImportService {
	return &ImportService{
		repo:       repo,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger,
	}
}

// Import 执行导入。载荷不合法时返回包装 ErrInvalidPayload 的错误且不触碰数据库；
// 写库失败时事务整体回滚
func (s *ImportService) Import(ctx context.Context, payload *ImportPayload) (model.ImportStats, error) {
	log := s.logger.WithField("import_id", uuid.NewString())

	batch, dropped, err := BuildBatch(payload)
	if err != nil {
		metrics.ImportRuns.WithLabelValues("invalid").Inc()
		log.WithError(err).Warn("导入载荷校验失败")
		return model.ImportStats{}, err
	}
	if len(dropped) > 0 {
		log.WithField("dropped_fields", dropped).Debug("已忽略未声明字段")
	}
	log.WithFields(logrus.Fields{
		"clear":          batch.ClearBeforeImport,
		"participants":   len(batch.Participants),
		"matchingNights": len(batch.MatchingNights),
		"matchboxes":     len(batch.Matchboxes),
		"penalties":      len(batch.Penalties),
		"broadcastNotes": len(batch.BroadcastNotes),
	}).Info("开始导入")

	// 写库后 gorm 会回填主键，需在写入前判断
	needsReconcile := batch.ClearBeforeImport || batch.HasExplicitIDs()

	stats, err := s.repo.ImportBatch(ctx, batch)
	if err != nil {
		metrics.ImportRuns.WithLabelValues("failed").Inc()
		log.WithError(err).Error("导入事务失败，已回滚")
		return model.ImportStats{}, fmt.Errorf("导入失败: %w", err)
	}
	metrics.ImportRuns.WithLabelValues("ok").Inc()
	recordRows(stats)
	log.WithField("total", stats.Total()).Info("导入成功")

	// 显式主键写入后数据库序列不会前移，提交后立即修复（失败不影响导入结果）
	if s.cfg.AutoFixSequences && s.reconciler != nil && needsReconcile {
		report := s.reconciler.ResetSequences(context.WithoutCancel(ctx))
		if len(report.Failed) > 0 {
			log.WithField("failed_tables", report.Failed).Warn("导入后自增序列修复部分失败，请手动调用 /meta/fix-sequences")
		}
	}
	return stats, nil
}

func recordRows(stats model.ImportStats) {
	metrics.ImportRows.WithLabelValues("participants").Add(float64(stats.Participants))
	metrics.ImportRows.WithLabelValues("matchingNights").Add(float64(stats.MatchingNights))
	metrics.ImportRows.WithLabelValues("matchboxes").Add(float64(stats.Matchboxes))
	metrics.ImportRows.WithLabelValues("penalties").Add(float64(stats.Penalties))
	metrics.ImportRows.WithLabelValues("broadcastNotes").Add(float64(stats.BroadcastNotes))
	metrics.ImportRows.WithLabelValues("probabilityCache").Add(float64(stats.ProbabilityCache))
}

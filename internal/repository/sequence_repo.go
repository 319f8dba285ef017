package repository

import (
	"context"
	"fmt"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/metrics"
	"AytoSync/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SequenceTables 需要修复自增水位的表（Meta 不参与导入，不在此列）
var SequenceTables = []string{
	model.Participant{}.TableName(),
	model.MatchingNight{}.TableName(),
	model.Matchbox{}.TableName(),
	model.Penalty{}.TableName(),
	model.BroadcastNote{}.TableName(),
	model.ProbabilityCache{}.TableName(),
}

type sequenceRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewSequenceRepository 创建序列修复器。独立于导入事务运行，单表失败只记日志
func NewSequenceRepository(db *gorm.DB, logger *logrus.Logger) interfaces.SequenceReconciler {
	return &sequenceRepository{db: db, logger: logger}
}

// ResetSequences 将每张表的自增水位设为 max(id)+1，空表为 1
func (r *sequenceRepository) ResetSequences(ctx context.Context) interfaces.SequenceReport {
	report := interfaces.SequenceReport{Failed: map[string]string{}}
	dialect := r.db.Dialector.Name()

	for _, table := range SequenceTables {
		stmt, err := resetStatement(dialect, table)
		if err == nil {
			err = r.db.WithContext(ctx).Exec(stmt).Error
		}
		if err != nil {
			r.logger.WithError(err).WithField("table", table).Warn("重置自增序列失败，跳过")
			report.Failed[table] = err.Error()
			metrics.SequenceResets.WithLabelValues(table, "failed").Inc()
			continue
		}
		report.Fixed = append(report.Fixed, table)
		metrics.SequenceResets.WithLabelValues(table, "ok").Inc()
	}

	r.logger.WithFields(logrus.Fields{
		"fixed":  len(report.Fixed),
		"failed": len(report.Failed),
	}).Info("自增序列重置完成")
	return report
}

// resetStatement 按方言生成单表的水位重置语句，表名来自固定白名单
func resetStatement(dialect, table string) (string, error) {
	switch dialect {
	case "postgres":
		return fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE(MAX(id) + 1, 1), false) FROM %[1]q`,
			table), nil
	case "sqlite":
		// AUTOINCREMENT 表的下一个 id = max(seq, max(rowid)) + 1，故写入 max(id)
		return fmt.Sprintf(
			`UPDATE sqlite_sequence SET seq = (SELECT COALESCE(MAX(id), 0) FROM %[1]q) WHERE name = '%[1]s'`,
			table), nil
	default:
		return "", fmt.Errorf("不支持的数据库方言: %s", dialect)
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/model"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// exportTimeLayout 与前端 toISOString() 一致（毫秒 + Z）
const exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ExportService 导出快照：并发读取五类实体并组装为可回灌的文档
type ExportService struct {
	reader         interfaces.SnapshotReader
	meta           interfaces.MetaRepository
	defaultVersion string
	now            func() time.Time
	logger         *logrus.Logger
}

func NewExportService(reader interfaces.SnapshotReader, meta interfaces.MetaRepository, defaultVersion string, logger *logrus.Logger) *ExportService {
	return &ExportService{
		reader:         reader,
		meta:           meta,
		defaultVersion: defaultVersion,
		now:            time.Now,
		logger:         logger,
	}
}

// Export 组装快照。ProbabilityCache 不导出
func (s *ExportService) Export(ctx context.Context) (*model.Snapshot, error) {
	var (
		participants   []*model.Participant
		matchingNights []*model.MatchingNight
		matchboxes     []*model.Matchbox
		penalties      []*model.Penalty
		broadcastNotes []*model.BroadcastNote
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		participants, err = s.reader.ListParticipants(gctx)
		return err
	})
	g.Go(func() (err error) {
		matchingNights, err = s.reader.ListMatchingNights(gctx)
		return err
	})
	g.Go(func() (err error) {
		matchboxes, err = s.reader.ListMatchboxes(gctx)
		return err
	})
	g.Go(func() (err error) {
		penalties, err = s.reader.ListPenalties(gctx)
		return err
	})
	g.Go(func() (err error) {
		broadcastNotes, err = s.reader.ListBroadcastNotes(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("读取导出数据失败: %w", err)
	}

	snapshot := &model.Snapshot{
		Participants:   nonNil(participants),
		MatchingNights: nonNil(matchingNights),
		Matchboxes:     make([]model.MatchboxExport, 0, len(matchboxes)),
		Penalties:      nonNil(penalties),
		BroadcastNotes: nonNil(broadcastNotes),
		ExportedAt:     s.now().UTC().Format(exportTimeLayout),
		Version:        s.version(ctx),
	}
	for _, m := range matchboxes {
		snapshot.Matchboxes = append(snapshot.Matchboxes, model.NewMatchboxExport(m))
	}
	return snapshot, nil
}

// version 优先取 Meta 中的 dbVersion，读取失败只告警
func (s *ExportService) version(ctx context.Context) string {
	if s.meta == nil {
		return s.defaultVersion
	}
	v, ok, err := s.meta.GetValue(ctx, model.MetaKeyDBVersion)
	if err != nil {
		s.logger.WithError(err).Warn("读取dbVersion失败，使用默认版本")
		return s.defaultVersion
	}
	if !ok || v == "" {
		return s.defaultVersion
	}
	return v
}

// ExportFileName 下载文件名 ayto-complete-export-YYYY-MM-DD.json
func (s *ExportService) ExportFileName() string {
	return fmt.Sprintf("ayto-complete-export-%s.json", s.now().UTC().Format("2006-01-02"))
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"AytoSync/internal/metrics"
	"AytoSync/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrUpdateInProgress 已有更新在执行
var ErrUpdateInProgress = errors.New("更新正在进行中")

// Unknown 本地水位读取失败或不存在时的占位值
const Unknown = "unknown"

// State 编排器状态
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateUpToDate        State = "up_to_date"
	StateUpdateAvailable State = "update_available"
	StateUpdating        State = "updating"
)

// Backend 编排器依赖的远端操作，*Client 为默认实现
type Backend interface {
	FetchManifest(ctx context.Context) (*model.Manifest, error)
	FetchSnapshot(ctx context.Context) ([]byte, string, error)
	Import(ctx context.Context, payload []byte) (*model.ImportResult, error)
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
	Stats(ctx context.Context) (*model.EntityCounts, error)
}

// UpdateState 供界面展示的检查结果
type UpdateState struct {
	State             State  `json:"state"`
	IsUpdateAvailable bool   `json:"isUpdateAvailable"`
	CurrentVersion    string `json:"currentVersion"`
	LatestVersion     string `json:"latestVersion"`
	CurrentDataHash   string `json:"currentDataHash"`
	LatestDataHash    string `json:"latestDataHash"`
	ReleasedDate      string `json:"releasedDate"`
	IsUpdating        bool   `json:"isUpdating"`
	UpdateError       string `json:"updateError,omitempty"`
}

// UpdateResult 单次更新结果
type UpdateResult struct {
	Success      bool              `json:"success"`
	NewVersion   string            `json:"newVersion,omitempty"`
	NewDataHash  string            `json:"newDataHash,omitempty"`
	ReleasedDate string            `json:"releasedDate,omitempty"`
	Stats        model.ImportStats `json:"stats"`
	Error        string            `json:"error,omitempty"`
}

// Orchestrator 基于 manifest 的数据更新编排，一个进程一个实例
type Orchestrator struct {
	backend    Backend
	autoUpdate bool
	logger     *logrus.Logger

	mu     sync.Mutex
	status UpdateState

	startGroup singleflight.Group
	startMu    sync.Mutex
	started    bool
}

func NewOrchestrator(backend Backend, autoUpdate bool, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		backend:    backend,
		autoUpdate: autoUpdate,
		logger:     logger,
		status:     UpdateState{State: StateIdle},
	}
}

// Status 当前状态快照
func (o *Orchestrator) Status() UpdateState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Check 并发读取远端 manifest 与本地两个水位，版本或 hash 任一不同即有更新
func (o *Orchestrator) Check(ctx context.Context) (UpdateState, error) {
	o.mu.Lock()
	if o.status.IsUpdating {
		st := o.status
		o.mu.Unlock()
		return st, ErrUpdateInProgress
	}
	o.status.State = StateChecking
	o.mu.Unlock()

	var (
		manifest       *model.Manifest
		currentVersion = Unknown
		currentHash    = Unknown
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		manifest, err = o.backend.FetchManifest(gctx)
		return err
	})
	g.Go(func() error {
		currentVersion = o.readWatermark(gctx, model.MetaKeyDBVersion)
		return nil
	})
	g.Go(func() error {
		currentHash = o.readWatermark(gctx, model.MetaKeyDataHash)
		return nil
	})
	err := g.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.CurrentVersion = currentVersion
	o.status.CurrentDataHash = currentHash
	if err != nil {
		o.logger.WithError(err).Warn("检查更新失败")
		o.status.State = StateIdle
		o.status.IsUpdateAvailable = false
		o.status.UpdateError = err.Error()
		return o.status, err
	}

	o.status.LatestVersion = manifest.Version
	o.status.LatestDataHash = manifest.DataHash
	o.status.ReleasedDate = manifest.Released
	o.status.UpdateError = ""
	o.status.IsUpdateAvailable = manifest.Version != currentVersion || manifest.DataHash != currentHash
	if o.status.IsUpdateAvailable {
		o.status.State = StateUpdateAvailable
	} else {
		o.status.State = StateUpToDate
	}
	o.logger.WithFields(logrus.Fields{
		"current_version": currentVersion,
		"latest_version":  manifest.Version,
		"current_hash":    currentHash,
		"latest_hash":     manifest.DataHash,
		"available":       o.status.IsUpdateAvailable,
	}).Info("检查更新完成")
	return o.status, nil
}

// readWatermark 读取失败或不存在都返回 Unknown
func (o *Orchestrator) readWatermark(ctx context.Context, key string) string {
	v, ok, err := o.backend.GetMeta(ctx, key)
	if err != nil {
		o.logger.WithError(err).WithField("key", key).Warn("读取本地水位失败")
		return Unknown
	}
	if !ok || v == "" {
		return Unknown
	}
	return v
}

// Update 拉取 manifest 与快照后清空重灌；导入失败时不写水位
func (o *Orchestrator) Update(ctx context.Context) (*UpdateResult, error) {
	o.mu.Lock()
	if o.status.IsUpdating {
		o.mu.Unlock()
		metrics.UpdateAttempts.WithLabelValues("in_progress").Inc()
		return &UpdateResult{Error: ErrUpdateInProgress.Error()}, ErrUpdateInProgress
	}
	o.status.IsUpdating = true
	o.status.State = StateUpdating
	o.mu.Unlock()

	log := o.logger.WithField("attempt_id", uuid.NewString())
	log.Info("开始更新数据")

	result, err := o.apply(ctx, log)

	o.mu.Lock()
	o.status.IsUpdating = false
	o.status.State = StateIdle
	if err != nil {
		o.status.UpdateError = err.Error()
	} else {
		o.status.UpdateError = ""
		o.status.IsUpdateAvailable = false
		o.status.CurrentVersion = result.NewVersion
		o.status.CurrentDataHash = result.NewDataHash
		o.status.LatestVersion = result.NewVersion
		o.status.LatestDataHash = result.NewDataHash
		o.status.ReleasedDate = result.ReleasedDate
	}
	o.mu.Unlock()

	if err != nil {
		metrics.UpdateAttempts.WithLabelValues("failed").Inc()
		log.WithError(err).Error("更新失败")
		return &UpdateResult{Error: err.Error()}, err
	}
	metrics.UpdateAttempts.WithLabelValues("ok").Inc()
	log.WithFields(logrus.Fields{
		"version": result.NewVersion,
		"total":   result.Stats.Total(),
	}).Info("更新完成")
	return result, nil
}

func (o *Orchestrator) apply(ctx context.Context, log *logrus.Entry) (*UpdateResult, error) {
	var (
		manifest *model.Manifest
		snapshot []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		manifest, err = o.backend.FetchManifest(gctx)
		return err
	})
	g.Go(func() error {
		body, source, err := o.backend.FetchSnapshot(gctx)
		if err != nil {
			return err
		}
		log.WithField("source", source).Debug("已获取快照")
		snapshot = body
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	imported, err := o.backend.Import(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("导入失败: %w", err)
	}
	if !imported.Success {
		return nil, errors.New("导入失败: 后端返回 success=false")
	}

	watermarks := map[string]string{
		model.MetaKeyDBVersion:      manifest.Version,
		model.MetaKeyDataHash:       manifest.DataHash,
		model.MetaKeyLastUpdateDate: manifest.Released,
	}
	wg, wctx := errgroup.WithContext(ctx)
	for key, value := range watermarks {
		wg.Go(func() error {
			return o.backend.SetMeta(wctx, key, value)
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("写入水位失败: %w", err)
	}

	return &UpdateResult{
		Success:      true,
		NewVersion:   manifest.Version,
		NewDataHash:  manifest.DataHash,
		ReleasedDate: manifest.Released,
		Stats:        imported.Stats,
	}, nil
}

// Start 进程内只初始化一次：并发调用共享同一次执行，成功后记住，失败后允许重试
func (o *Orchestrator) Start(ctx context.Context) error {
	o.startMu.Lock()
	done := o.started
	o.startMu.Unlock()
	if done {
		return nil
	}

	_, err, _ := o.startGroup.Do("start", func() (interface{}, error) {
		o.startMu.Lock()
		done := o.started
		o.startMu.Unlock()
		if done {
			return nil, nil
		}
		if err := o.initialize(ctx); err != nil {
			return nil, err
		}
		o.startMu.Lock()
		o.started = true
		o.startMu.Unlock()
		return nil, nil
	})
	return err
}

func (o *Orchestrator) initialize(ctx context.Context) error {
	// 后端不可达或空库只记录，不阻塞
	if counts, err := o.backend.Stats(ctx); err != nil {
		o.logger.WithError(err).Warn("后端不可达，稍后重试")
	} else if counts.Participants == 0 {
		o.logger.Info("数据库为空")
	}

	state, err := o.Check(ctx)
	if err != nil {
		// 错误已写入 UpdateError
		return nil
	}
	if o.autoUpdate && state.IsUpdateAvailable {
		if _, err := o.Update(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Reset 清除初始化记录与状态
func (o *Orchestrator) Reset() {
	o.startMu.Lock()
	o.started = false
	o.startMu.Unlock()

	o.mu.Lock()
	o.status = UpdateState{State: StateIdle}
	o.mu.Unlock()
}

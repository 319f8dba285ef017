package api

import (
	"errors"
	"io"
	"net/http"

	"AytoSync/internal/config"
	"AytoSync/internal/model"
	"AytoSync/internal/repository"
	"AytoSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImportHandler 批量导入 / 导出 / 统计接口
type ImportHandler struct {
	importService *service.ImportService
	exportService *service.ExportService
	repos         *repository.Repositories
	maxBodyBytes  int64
	logger        *logrus.Logger
}

func NewImportHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *ImportHandler {
	repos := repository.NewRepositories(db)
	importRepo := repository.NewImportRepository(db)
	reconciler := repository.NewSequenceRepository(db, logger)
	metaRepo := repository.NewMetaRepository(db)
	return &ImportHandler{
		importService: service.NewImportService(importRepo, reconciler, cfg.Import, logger),
		exportService: service.NewExportService(repos, metaRepo, cfg.Export.DefaultVersion, logger),
		repos:         repos,
		maxBodyBytes:  cfg.Import.MaxBodyBytes,
		logger:        logger,
	}
}

// Import 批量导入
// POST /api/import
func (h *ImportHandler) Import(c *gin.Context) {
	body := c.Request.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Import failed", "details": err.Error()})
		return
	}

	payload, err := service.ParsePayload(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Import failed", "details": err.Error()})
		return
	}

	stats, err := h.importService.Import(c.Request.Context(), payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrInvalidPayload) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": "Import failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, model.ImportResult{Success: true, Stats: stats})
}

// Stats 四类主要实体计数，客户端用作空库探测
// GET /api/stats
func (h *ImportHandler) Stats(c *gin.Context) {
	counts, err := h.repos.Counts(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Export 导出完整快照，download=true 时以附件形式返回
// GET /api/export?download=true
func (h *ImportHandler) Export(c *gin.Context) {
	snapshot, err := h.exportService.Export(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if c.Query("download") == "true" {
		c.Header("Content-Disposition", `attachment; filename="`+h.exportService.ExportFileName()+`"`)
	}
	c.JSON(http.StatusOK, snapshot)
}

package api

import (
	"net/http"

	"AytoSync/internal/interfaces"
	"AytoSync/internal/repository"
	"AytoSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MetaHandler 水位读写、序列修复与完整性检查
type MetaHandler struct {
	metaRepo   interfaces.MetaRepository
	reconciler interfaces.SequenceReconciler
	integrity  *service.IntegrityService
	logger     *logrus.Logger
}

func NewMetaHandler(db *gorm.DB, logger *logrus.Logger) *MetaHandler {
	return &MetaHandler{
		metaRepo:   repository.NewMetaRepository(db),
		reconciler: repository.NewSequenceRepository(db, logger),
		integrity:  service.NewIntegrityService(repository.NewRepositories(db)),
		logger:     logger,
	}
}

type metaUpsertRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

// GetMeta 读取单个水位，不存在时 value 为 null
// GET /api/meta/:key
func (h *MetaHandler) GetMeta(c *gin.Context) {
	value, ok, err := h.metaRepo.GetValue(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.logger.WithError(err).Error("GetMeta failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"value": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

// UpsertMeta 写入水位
// POST /api/meta
func (h *MetaHandler) UpsertMeta(c *gin.Context) {
	var req metaUpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	meta, err := h.metaRepo.Upsert(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		h.logger.WithError(err).WithField("key", req.Key).Error("UpsertMeta failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

// FixSequences 手动触发自增序列修复（单表失败只记录，不影响其它表）
// POST /api/meta/fix-sequences
func (h *MetaHandler) FixSequences(c *gin.Context) {
	report := h.reconciler.ResetSequences(c.Request.Context())
	if len(report.Fixed) == 0 && len(report.Failed) > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Sequence reset failed",
			"details": report.Failed,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Sequences reset",
		"fixed":   report.Fixed,
		"failed":  report.Failed,
	})
}

// Integrity 弱引用完整性检查，只读，不阻塞写入
// GET /api/integrity
func (h *MetaHandler) Integrity(c *gin.Context) {
	report, err := h.integrity.Check(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Integrity failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

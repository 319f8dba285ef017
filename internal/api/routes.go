package api

import (
	"net/http"

	"AytoSync/internal/config"
	"AytoSync/internal/model"
	"AytoSync/internal/repository"
	"AytoSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RegisterRoutes 挂载全部业务接口（调用方决定前缀，通常为 /api）
func RegisterRoutes(r gin.IRouter, db *gorm.DB, logger *logrus.Logger, cfg *config.Config) {
	importHandler := NewImportHandler(db, logger, cfg)
	r.POST("/import", importHandler.Import)
	r.GET("/stats", importHandler.Stats)
	r.GET("/export", importHandler.Export)

	metaHandler := NewMetaHandler(db, logger)
	r.GET("/meta/:key", metaHandler.GetMeta)
	r.POST("/meta", metaHandler.UpsertMeta)
	r.POST("/meta/fix-sequences", metaHandler.FixSequences)
	r.GET("/integrity", metaHandler.Integrity)

	repos := repository.NewRepositories(db)
	NewEntityHandler("participants", repos.Participants, nil, service.ValidateParticipant, logger).Register(r)
	NewEntityHandler("matching-nights", repos.MatchingNights, nil, service.ValidateMatchingNight, logger).Register(r)
	NewEntityHandler("matchboxes", repos.Matchboxes, nil, nil, logger).Register(r)
	NewEntityHandler("penalties", repos.Penalties, nil, nil, logger).Register(r)
	NewEntityHandler("broadcast-notes", repos.BroadcastNotes, repos.UpsertBroadcastNote, service.ValidateBroadcastNote, logger).Register(r)

	// 概率缓存只支持按 hash 查询 / upsert / 清空
	cache := NewEntityHandler("probability-cache", repos.ProbabilityCache, repos.UpsertProbabilityCache, service.ValidateProbabilityCache, logger)
	r.GET("/probability-cache", func(c *gin.Context) {
		hash := c.Query("dataHash")
		if hash == "" {
			cache.List(c)
			return
		}
		item, err := repos.FindProbabilityCache(c.Request.Context(), hash)
		if err != nil {
			cache.fail(c, "Find", err)
			return
		}
		c.JSON(http.StatusOK, item)
	})
	r.POST("/probability-cache", cache.Create)
	r.DELETE("/probability-cache", cache.DeleteAll)
}

// Migrate 建表（不存在则创建）
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.AllModels()...)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"AytoSync/internal/repository"
	"AytoSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// EntityHandler 单表 CRUD（列表/详情/新增/更新/删除/清空）
type EntityHandler[T any] struct {
	name     string
	repo     *repository.EntityRepository[T]
	create   func(ctx context.Context, item *T) error
	validate func(item *T) error
	logger   *logrus.Logger
}

// NewEntityHandler create 为空时直接插入；自然键实体传入 upsert 函数。
// validate 非空时在新增与更新前执行（与导入同一套规则）
func NewEntityHandler[T any](name string, repo *repository.EntityRepository[T], create func(ctx context.Context, item *T) error, validate func(item *T) error, logger *logrus.Logger) *EntityHandler[T] {
	if create == nil {
		create = repo.Create
	}
	return &EntityHandler[T]{name: name, repo: repo, create: create, validate: validate, logger: logger}
}

// Register 挂载 /<name> 路由
func (h *EntityHandler[T]) Register(r gin.IRouter) {
	g := r.Group("/" + h.name)
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("", h.DeleteAll)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *EntityHandler[T]) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.fail(c, "List", err)
		return
	}
	if list == nil {
		list = []*T{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *EntityHandler[T]) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Get", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create id 缺省或为 0 时由数据库分配
func (h *EntityHandler[T]) Create(c *gin.Context) {
	item := new(T)
	if err := c.ShouldBindJSON(item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.check(c, item) {
		return
	}
	if err := h.create(c.Request.Context(), item); err != nil {
		h.fail(c, "Create", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Update 请求体字段合并到已有记录上，请求体中的 id 被忽略
func (h *EntityHandler[T]) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delete(patch, "id")

	item, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Update", err)
		return
	}
	body, err := json.Marshal(patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := json.Unmarshal(body, item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.check(c, item) {
		return
	}
	if err := h.repo.Save(c.Request.Context(), item); err != nil {
		h.fail(c, "Update", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *EntityHandler[T]) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "Delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EntityHandler[T]) DeleteAll(c *gin.Context) {
	n, err := h.repo.DeleteAll(c.Request.Context())
	if err != nil {
		h.fail(c, "DeleteAll", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n})
}

func (h *EntityHandler[T]) check(c *gin.Context, item *T) bool {
	if h.validate == nil {
		return true
	}
	if err := h.validate(item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Errorf("%w: %v", service.ErrInvalidPayload, err).Error()})
		return false
	}
	return true
}

func (h *EntityHandler[T]) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.logger.WithError(err).WithField("entity", h.name).Errorf("%s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/cahierdetextes/backend/internal/model"
	"github.com/cahierdetextes/backend/internal/pkg/llm"
	"github.com/cahierdetextes/backend/internal/pkg/outline"
	"github.com/cahierdetextes/backend/internal/repository"
	"github.com/cahierdetextes/backend/internal/service"
	"github.com/cahierdetextes/backend/internal/service/extractor"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// LogbookHandler 记事本处理器
type LogbookHandler struct {
	service        *service.LogbookService
	maxUploadBytes int64
}

// NewLogbookHandler 创建记事本处理器，maxUploadMB 限制上传文档大小
func NewLogbookHandler(service *service.LogbookService, maxUploadMB int64) *LogbookHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &LogbookHandler{service: service, maxUploadBytes: maxUploadMB << 20}
}

// RegisterRoutes 注册路由
func (h *LogbookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/logbooks", h.List)
	router.POST("/logbooks", h.Create)

	logbook := router.Group("/logbooks/:instance")
	{
		logbook.GET("", h.Get)
		logbook.DELETE("", h.Delete)
		logbook.GET("/search", h.Search)
		logbook.GET("/chapters", h.Chapters)
		logbook.PUT("/cells", h.EditCell)
		logbook.POST("/items", h.AddItem)
		logbook.DELETE("/nodes", h.DeleteNode)
		logbook.POST("/separators", h.AddSeparator)
		logbook.PUT("/separators", h.EditSeparator)
		logbook.DELETE("/separators", h.DeleteSeparator)
		logbook.POST("/chapters/delete", h.DeleteChapters)
		logbook.PUT("/settings", h.UpdateSettings)
		logbook.POST("/import", h.Import)
		logbook.POST("/extract", h.Extract)
		logbook.POST("/extract/apply", h.ApplyExtraction)
		logbook.POST("/undo", h.Undo)
		logbook.POST("/redo", h.Redo)
		logbook.POST("/save", h.Save)
		logbook.GET("/export", h.Export)
		logbook.POST("/reload", h.Reload)
	}
}

// IndicesRequest 只带位置路径的请求
type IndicesRequest struct {
	Indices *outline.Indices `json:"indices" binding:"required"`
}

// EditFieldRequest 修改字段请求
type EditFieldRequest struct {
	Indices *outline.Indices `json:"indices" binding:"required"`
	Field   string           `json:"field" binding:"required"`
	Value   string           `json:"value"`
}

// AddItemRequest 追加子节点请求
type AddItemRequest struct {
	Indices *outline.Indices `json:"indices" binding:"required"`
	Element model.Element    `json:"element"`
}

// AddSeparatorRequest 插入分隔行请求，date 为空时取所属节点日期
type AddSeparatorRequest struct {
	Indices *outline.Indices `json:"indices" binding:"required"`
	Date    string           `json:"date"`
}

// DeleteChaptersRequest 批量删除章节请求
type DeleteChaptersRequest struct {
	Positions []int `json:"positions" binding:"required"`
}

type indexedRequest interface {
	indices() *outline.Indices
}

func (r *IndicesRequest) indices() *outline.Indices { return r.Indices }
func (r *EditFieldRequest) indices() *outline.Indices { return r.Indices }
func (r *AddItemRequest) indices() *outline.Indices { return r.Indices }
func (r *AddSeparatorRequest) indices() *outline.Indices { return r.Indices }

// ApplyExtractionRequest 应用抽取结果请求
type ApplyExtractionRequest struct {
	LessonsData []model.Chapter `json:"lessonsData"`
}

var errMissingChapter = errors.New("indices.chapterIndex is required")

// statusOf 业务错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, outline.ErrInvalidFormat),
		errors.Is(err, outline.ErrInvalidChapter),
		errors.Is(err, outline.ErrInvalidImportMode),
		errors.Is(err, service.ErrEmptyExtraction),
		errors.Is(err, service.ErrInvalidInstance),
		errors.Is(err, extractor.ErrUnsupportedFile),
		errors.Is(err, extractor.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, outline.ErrSeparatorExists):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoExtractor), errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *LogbookHandler) fail(c *gin.Context, action string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		klog.Errorf("%s: instance=%s, failed: %v", action, c.Param("instance"), err)
	} else {
		klog.V(6).Infof("%s: instance=%s, rejected: %v", action, c.Param("instance"), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *LogbookHandler) respond(c *gin.Context, action string, state *service.State, err error) {
	if err != nil {
		h.fail(c, action, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *LogbookHandler) bind(c *gin.Context, action string, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		klog.V(6).Infof("%s: invalid request: %v", action, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// bindIndices 绑定请求并要求位置路径带章节下标
func (h *LogbookHandler) bindIndices(c *gin.Context, action string, req indexedRequest) bool {
	if !h.bind(c, action, req) {
		return false
	}
	if idx := req.indices(); idx == nil || !idx.HasChapter() {
		klog.V(6).Infof("%s: invalid request: indices.chapterIndex is required", action)
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingChapter.Error()})
		return false
	}
	return true
}

// List 列出已保存的记事本
func (h *LogbookHandler) List(c *gin.Context) {
	logbooks, err := h.service.List(c.Request.Context())
	if err != nil {
		h.fail(c, "ListLogbooks", err)
		return
	}
	if logbooks == nil {
		logbooks = []model.Logbook{}
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  logbooks,
		"total": len(logbooks),
	})
}

// Create 新建记事本
func (h *LogbookHandler) Create(c *gin.Context) {
	state, err := h.service.Create(c.Request.Context())
	if err != nil {
		h.fail(c, "CreateLogbook", err)
		return
	}
	c.JSON(http.StatusCreated, state)
}

// Get 当前状态
func (h *LogbookHandler) Get(c *gin.Context) {
	state, err := h.service.Get(c.Request.Context(), c.Param("instance"))
	h.respond(c, "GetLogbook", state, err)
}

// Delete 删除记事本
func (h *LogbookHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("instance")); err != nil {
		h.fail(c, "DeleteLogbook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted successfully"})
}

// Search 过滤章节
func (h *LogbookHandler) Search(c *gin.Context) {
	chapters, err := h.service.Search(c.Request.Context(), c.Param("instance"), c.Query("q"))
	if err != nil {
		h.fail(c, "SearchLogbook", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  chapters,
		"total": len(chapters),
	})
}

// Chapters 章节摘要
func (h *LogbookHandler) Chapters(c *gin.Context) {
	summaries, err := h.service.Chapters(c.Request.Context(), c.Param("instance"))
	if err != nil {
		h.fail(c, "ListChapters", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  summaries,
		"total": len(summaries),
	})
}

// EditCell 修改单元格
func (h *LogbookHandler) EditCell(c *gin.Context) {
	var req EditFieldRequest
	if !h.bindIndices(c, "EditCell", &req) {
		return
	}
	state, err := h.service.EditCell(c.Request.Context(), c.Param("instance"), *req.Indices, req.Field, req.Value)
	h.respond(c, "EditCell", state, err)
}

// AddItem 追加子节点
func (h *LogbookHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if !h.bindIndices(c, "AddItem", &req) {
		return
	}
	state, err := h.service.AddItem(c.Request.Context(), c.Param("instance"), *req.Indices, req.Element)
	h.respond(c, "AddItem", state, err)
}

// DeleteNode 删除节点
func (h *LogbookHandler) DeleteNode(c *gin.Context) {
	var req IndicesRequest
	if !h.bindIndices(c, "DeleteNode", &req) {
		return
	}
	state, err := h.service.DeleteNode(c.Request.Context(), c.Param("instance"), *req.Indices)
	h.respond(c, "DeleteNode", state, err)
}

// AddSeparator 插入分隔行
func (h *LogbookHandler) AddSeparator(c *gin.Context) {
	var req AddSeparatorRequest
	if !h.bindIndices(c, "AddSeparator", &req) {
		return
	}
	state, err := h.service.AddSeparator(c.Request.Context(), c.Param("instance"), *req.Indices, req.Date)
	h.respond(c, "AddSeparator", state, err)
}

// EditSeparator 修改分隔行
func (h *LogbookHandler) EditSeparator(c *gin.Context) {
	var req EditFieldRequest
	if !h.bindIndices(c, "EditSeparator", &req) {
		return
	}
	state, err := h.service.EditSeparator(c.Request.Context(), c.Param("instance"), *req.Indices, req.Field, req.Value)
	h.respond(c, "EditSeparator", state, err)
}

// DeleteSeparator 删除分隔行
func (h *LogbookHandler) DeleteSeparator(c *gin.Context) {
	var req IndicesRequest
	if !h.bindIndices(c, "DeleteSeparator", &req) {
		return
	}
	state, err := h.service.DeleteSeparator(c.Request.Context(), c.Param("instance"), *req.Indices)
	h.respond(c, "DeleteSeparator", state, err)
}

// DeleteChapters 批量删除章节
func (h *LogbookHandler) DeleteChapters(c *gin.Context) {
	var req DeleteChaptersRequest
	if !h.bind(c, "DeleteChapters", &req) {
		return
	}
	state, err := h.service.DeleteChapters(c.Request.Context(), c.Param("instance"), req.Positions)
	h.respond(c, "DeleteChapters", state, err)
}

// UpdateSettings 修改抬头设置
func (h *LogbookHandler) UpdateSettings(c *gin.Context) {
	var req model.Settings
	if !h.bind(c, "UpdateSettings", &req) {
		return
	}
	state, err := h.service.UpdateSettings(c.Request.Context(), c.Param("instance"), req)
	h.respond(c, "UpdateSettings", state, err)
}

// Import 导入 JSON 文件，请求体即文件内容，?mode=replace|append
func (h *LogbookHandler) Import(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes))
	if err != nil {
		klog.V(6).Infof("Import: read body failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode := outline.ImportMode(c.DefaultQuery("mode", string(outline.ImportReplace)))
	state, err := h.service.Import(c.Request.Context(), c.Param("instance"), raw, mode)
	h.respond(c, "Import", state, err)
}

// Extract 上传课程文档并抽取章节，结果仅供预览
func (h *LogbookHandler) Extract(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		klog.V(6).Infof("Extract: invalid upload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !extractor.IsSupported(fileHeader.Filename) {
		h.fail(c, "Extract", fmt.Errorf("%w: %s", extractor.ErrUnsupportedFile, fileHeader.Filename))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, "Extract", err)
		return
	}
	defer file.Close()

	result, err := h.service.Extract(c.Request.Context(), c.Param("instance"), fileHeader.Filename, file)
	if err != nil {
		h.fail(c, "Extract", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ApplyExtraction 用抽取结果替换章节
func (h *LogbookHandler) ApplyExtraction(c *gin.Context) {
	var req ApplyExtractionRequest
	if !h.bind(c, "ApplyExtraction", &req) {
		return
	}
	state, err := h.service.ApplyExtraction(c.Request.Context(), c.Param("instance"), req.LessonsData)
	h.respond(c, "ApplyExtraction", state, err)
}

// Undo 撤销
func (h *LogbookHandler) Undo(c *gin.Context) {
	state, err := h.service.Undo(c.Request.Context(), c.Param("instance"))
	h.respond(c, "Undo", state, err)
}

// Redo 重做
func (h *LogbookHandler) Redo(c *gin.Context) {
	state, err := h.service.Redo(c.Request.Context(), c.Param("instance"))
	h.respond(c, "Redo", state, err)
}

// Save 手动保存
func (h *LogbookHandler) Save(c *gin.Context) {
	state, err := h.service.ManualSave(c.Request.Context(), c.Param("instance"))
	h.respond(c, "ManualSave", state, err)
}

// Export 下载 JSON 文件
func (h *LogbookHandler) Export(c *gin.Context) {
	filename, data, err := h.service.Export(c.Request.Context(), c.Param("instance"))
	if err != nil {
		h.fail(c, "Export", err)
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, "application/json", data)
}

// Reload 丢弃内存会话并从存储重新加载
func (h *LogbookHandler) Reload(c *gin.Context) {
	state, err := h.service.Reset(c.Request.Context(), c.Param("instance"))
	h.respond(c, "Reload", state, err)
}

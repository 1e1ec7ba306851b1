package handler

import (
	"net/http"

	"github.com/cahierdetextes/backend/internal/service"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// GuideHandler 使用指南
type GuideHandler struct {
	service *service.GuideService
}

func NewGuideHandler(service *service.GuideService) *GuideHandler {
	return &GuideHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *GuideHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/guide", h.Get)
}

// Get 默认返回 HTML，?format=md 返回 Markdown 原文
func (h *GuideHandler) Get(c *gin.Context) {
	if c.Query("format") == "md" {
		data, err := h.service.Markdown()
		if err != nil {
			klog.Errorf("GetGuide: failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
		return
	}

	data, err := h.service.HTML()
	if err != nil {
		klog.Errorf("GetGuide: failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

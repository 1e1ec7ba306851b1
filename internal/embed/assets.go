package embed

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

//go:embed docs/*.md
var embeddedFiles embed.FS

// GuideMarkdown 读取内置的使用指南
func GuideMarkdown() ([]byte, error) {
	return fs.ReadFile(embeddedFiles, "docs/guide.md")
}

// SetupRouter 设置压缩中间件和未匹配路由
func SetupRouter(r *gin.Engine) {
	// 添加 gzip 压缩中间件，使用最佳压缩级别
	r.Use(gzip.Gzip(gzip.BestCompression))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Redirect(http.StatusFound, "/api/guide")
	})
}

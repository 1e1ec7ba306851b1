package main

import (
	"flag"
	"log"
	"os"

	"k8s.io/klog/v2"

	"github.com/cahierdetextes/backend/config"
	"github.com/cahierdetextes/backend/internal/embed"
	"github.com/cahierdetextes/backend/internal/eventbus"
	"github.com/cahierdetextes/backend/internal/handler"
	"github.com/cahierdetextes/backend/internal/pkg/database"
	"github.com/cahierdetextes/backend/internal/pkg/llm"
	"github.com/cahierdetextes/backend/internal/repository"
	"github.com/cahierdetextes/backend/internal/router"
	"github.com/cahierdetextes/backend/internal/service"
	"github.com/cahierdetextes/backend/internal/service/extractor"
	"github.com/cahierdetextes/backend/internal/subscriber"
)

// 单次抽取送给模型的最大字符数
const maxExtractRunes = 60000

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Data.UploadDir, 0755); err != nil {
		log.Fatalf("Failed to create upload directory: %v", err)
	}
	extractor.SpoolDir = cfg.Data.UploadDir

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 事件总线与订阅者
	bus := eventbus.NewLogbookEventBus()
	subscriber.NewMetricsSubscriber().Register(bus)
	subscriber.NewAuditSubscriber().Register(bus)

	// 初始化 Service
	logbookRepo := repository.NewLogbookRepository(db)
	var docExtractor service.DocumentExtractor
	if cfg.LLM.APIKey != "" {
		docExtractor = extractor.New(llm.NewClient(cfg), maxExtractRunes)
	} else {
		klog.Warning("未配置 LLM API Key，文档抽取不可用")
	}
	logbookService := service.NewLogbookService(cfg, logbookRepo, bus, docExtractor)
	guideService := service.NewGuideService(embed.GuideMarkdown)

	// 初始化 Handler
	logbookHandler := handler.NewLogbookHandler(logbookService, cfg.Logbook.MaxUploadMB)
	guideHandler := handler.NewGuideHandler(guideService)

	// 设置路由
	r := router.Setup(cfg, logbookHandler, guideHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

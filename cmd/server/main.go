package main

import (
	"net/http"

	"esim_store/internal/pkg/config"
	"esim_store/internal/pkg/esimapi"
	"esim_store/internal/pkg/mailer"
	"esim_store/internal/pkg/middleware"
	"esim_store/internal/pkg/push"
	"esim_store/internal/pkg/rates"
	"esim_store/internal/pkg/registry"
	"esim_store/internal/pkg/uploader"
	"esim_store/internal/pkg/worker"
	"esim_store/pkg/database"
	"esim_store/pkg/logger"
	"esim_store/pkg/metrics"

	orderRepo "esim_store/internal/domain/order/repository"

	// 模块注册
	_ "esim_store/internal/domain/catalog"
	_ "esim_store/internal/domain/order"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	config.LoadConfig()

	// 2. 初始化日志
	logger.InitLogger()
	defer logger.Sync()

	// 3. 初始化基础设施
	db := database.InitDatabase()
	rdb := database.InitRedis()

	// 4. 供应商网关、汇率缓存、指标
	metricsCollector := metrics.NewMetricsCollector()
	provider := esimapi.NewClient(config.GlobalConfig.Provider)
	provider.SetMetrics(metricsCollector)
	rateCache := rates.NewCacheFromConfig(config.GlobalConfig.Rates)

	// 5. 通知组件，未配置的渠道为 nil，worker 会跳过
	var (
		m mailer.Mailer
		p push.PushService
		u uploader.Uploader
	)
	if config.GlobalConfig.Email.BrevoAPIKey != "" {
		bm, err := mailer.NewBrevoMailer()
		if err != nil {
			logger.Log.Error("Failed to init Brevo mailer", zap.Error(err))
		} else {
			m = bm
		}
	}
	if config.GlobalConfig.Push.AppKey != 0 {
		ps, err := push.NewAliyunPushService()
		if err != nil {
			logger.Log.Error("Failed to init Aliyun push", zap.Error(err))
		} else {
			p = ps
		}
	}
	if config.GlobalConfig.OSS.BucketName != "" {
		up, err := uploader.NewAliyunOSSUploader()
		if err != nil {
			logger.Log.Error("Failed to init OSS uploader", zap.Error(err))
		} else {
			u = up
		}
	}

	notifier := worker.NewNotifyPool(orderRepo.NewOrderRepository(db), m, p, u, 4, 256)
	notifier.SetMetrics(metricsCollector)
	notifier.Start()

	// 6. 初始化 Gin
	if !config.GlobalConfig.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(metricsCollector.GinMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metricsCollector.Handler())

	// 7. 初始化业务模块
	moduleCtx := &registry.ModuleContext{
		DB:       db,
		Redis:    rdb,
		Router:   r,
		Provider: provider,
		Rates:    rateCache,
		Notifier: notifier,
		Metrics:  metricsCollector,
	}
	if err := registry.InitModules(moduleCtx); err != nil {
		logger.Log.Fatal("Failed to init modules", zap.Error(err))
	}

	// 8. 启动服务
	port := config.GlobalConfig.Server.Port
	if port == "" {
		port = "8080"
	}
	logger.Log.Info("Server starting", zap.String("port", port))
	if err := r.Run(":" + port); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}

package order

import (
	catalogRepo "esim_store/internal/domain/catalog/repository"
	catalogService "esim_store/internal/domain/catalog/service"
	"esim_store/internal/domain/order/handler"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/domain/order/service"
	"esim_store/internal/domain/order/strategy"
	"esim_store/internal/pkg/config"
	"esim_store/internal/pkg/middleware"
	"esim_store/internal/pkg/registry"
	"esim_store/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 订单模块依赖套餐目录，优先级较低
	return 20
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewOrderRepository(ctx.DB)

	// 订单模块依赖套餐目录服务
	packages := catalogService.NewCatalogService(
		catalogRepo.NewPackageRepository(ctx.DB), ctx.Provider, ctx.Rates, ctx.Redis, ctx.Metrics)

	checkout := service.NewCheckoutService(repo, ctx.Provider, packages)
	lifecycle := service.NewLifecycleService(repo, ctx.Provider, ctx.Notifier, ctx.Redis)
	topup := service.NewTopupService(repo, ctx.Provider, packages)
	cancel := service.NewCancelService(repo, ctx.Provider)

	// 注册支付策略
	if config.GlobalConfig.Alipay.AppID != "" {
		alipayStrategy, err := strategy.NewAlipayStrategy()
		if err != nil {
			logger.Log.Error("Failed to init Alipay strategy: " + err.Error())
		} else {
			checkout.RegisterStrategy("alipay", alipayStrategy)
		}
	}
	if config.GlobalConfig.Wechat.MchID != "" {
		wechatStrategy, err := strategy.NewWechatStrategy()
		if err != nil {
			logger.Log.Error("Failed to init Wechat strategy: " + err.Error())
		} else {
			checkout.RegisterStrategy("wechat", wechatStrategy)
		}
	}

	oHandler := handler.NewOrderHandler(checkout, lifecycle, topup, cancel)
	wHandler := handler.NewWebhookHandler(lifecycle)
	pHandler := handler.NewPaymentHandler(checkout)

	setupRoutes(ctx.Router, oHandler, wHandler, pHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.OrderHandler, wh *handler.WebhookHandler, ph *handler.PaymentHandler) {
	// 供应商回调 (无鉴权，IP 限流兜底)
	webhook := r.Group("/api/webhook")
	webhook.Use(middleware.WebhookRateLimitMiddleware())
	webhook.GET("/esim", wh.Probe)
	webhook.POST("/esim", wh.Notify)

	// 支付回调 (无需鉴权，但需验签)
	r.POST("/api/payment/notify/alipay", ph.AlipayNotify)
	r.POST("/api/payment/notify/wechat", ph.WechatNotify)

	// 需要鉴权的接口
	orders := r.Group("/api/orders")
	orders.Use(middleware.AuthMiddleware())
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.GET("/:id/usage", h.GetUsage)
		orders.POST("/:id/topup", h.TopUp)
		orders.POST("/:id/cancel", h.Cancel)
		orders.GET("/:id/topups", h.ListTopups)
	}
}

package catalog

import (
	"esim_store/internal/domain/catalog/handler"
	"esim_store/internal/domain/catalog/repository"
	"esim_store/internal/domain/catalog/service"
	"esim_store/internal/pkg/middleware"
	"esim_store/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// CatalogModule 套餐目录模块
type CatalogModule struct{}

func init() {
	registry.Register(&CatalogModule{})
}

func (m *CatalogModule) Name() string {
	return "catalog"
}

func (m *CatalogModule) Priority() int {
	// 订单模块依赖套餐目录，目录先初始化
	return 10
}

func (m *CatalogModule) Init(ctx *registry.ModuleContext) error {
	repo := repository.NewPackageRepository(ctx.DB)
	svc := service.NewCatalogService(repo, ctx.Provider, ctx.Rates, ctx.Redis, ctx.Metrics)
	h := handler.NewCatalogHandler(svc)

	setupRoutes(ctx.Router, h)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.CatalogHandler) {
	r.GET("/api/packages", h.ListPackages)

	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	admin.POST("/packages/sync", h.SyncPrices)
}

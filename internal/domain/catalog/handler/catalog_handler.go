package handler

import (
	"errors"
	"net/http"

	"esim_store/internal/domain/catalog/service"
	"esim_store/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service service.CatalogService
}

func NewCatalogHandler(s service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: s}
}

// ListPackages 套餐列表
// @Summary 套餐列表
// @Tags Catalog
// @Produce json
// @Param location query string false "Location code"
// @Param topupFor query string false "ICCID to list rechargeable packages for"
// @Success 200 {object} response.Response
// @Router /api/packages [get]
func (h *CatalogHandler) ListPackages(c *gin.Context) {
	// topupFor 指定时列该卡可充值的套餐，直接代理供应商
	if iccid := c.Query("topupFor"); iccid != "" {
		views, err := h.service.GetTopupPackages(c.Request.Context(), iccid)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
			return
		}
		response.Success(c, views)
		return
	}

	views, err := h.service.ListPackages(c.Request.Context(), c.Query("location"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, views)
}

// SyncPrices 管理员触发价格同步
// @Summary 价格同步
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/admin/packages/sync [post]
func (h *CatalogHandler) SyncPrices(c *gin.Context) {
	userID, _ := c.Get("userID")
	triggeredBy, _ := userID.(string)

	result, err := h.service.SyncPrices(c.Request.Context(), triggeredBy)
	if err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			response.Fail(c, response.ErrSyncInProgress, "Price sync already in progress")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}
	response.Success(c, result)
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"esim_store/internal/domain/order/service"
	"esim_store/internal/pkg/esimapi"
	"esim_store/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	checkout  service.CheckoutService
	lifecycle service.LifecycleService
	topup     service.TopupService
	cancel    service.CancelService
}

func NewOrderHandler(checkout service.CheckoutService, lifecycle service.LifecycleService, topup service.TopupService, cancel service.CancelService) *OrderHandler {
	return &OrderHandler{
		checkout:  checkout,
		lifecycle: lifecycle,
		topup:     topup,
		cancel:    cancel,
	}
}

type CreateOrderInput struct {
	PackageCode string `json:"packageCode" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Channel     string `json:"channel" binding:"required,oneof=alipay wechat"`
}

// CreateOrder 下单并返回支付参数
// @Summary 创建 eSIM 订单
// @Tags Order
// @Accept json
// @Produce json
// @Param input body CreateOrderInput true "Order Info"
// @Success 200 {object} response.Response
// @Router /api/orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var input CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID := getUserIdFromContext(c)
	order, payParam, err := h.checkout.CreateOrder(c.Request.Context(), userID, input.Email, input.PackageCode, input.Channel)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, gin.H{
		"order_id":  order.ID,
		"pay_param": payParam,
	})
}

// GetOrder 查询订单详情，待分配的订单会顺带查一次供应商
// @Summary 查询订单
// @Tags Order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID := getUserIdFromContext(c)
	order, err := h.lifecycle.Poll(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, order)
}

// ListOrders 当前用户的订单列表
// @Summary 订单列表
// @Tags Order
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	userID := getUserIdFromContext(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	orders, total, err := h.lifecycle.ListOrders(userID, page, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":  orders,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetUsage 查询 eSIM 用量
// @Summary 查询用量
// @Tags Order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /api/orders/{id}/usage [get]
func (h *OrderHandler) GetUsage(c *gin.Context) {
	userID := getUserIdFromContext(c)
	usage, err := h.lifecycle.GetUsage(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, usage)
}

type TopUpInput struct {
	PackageCode string `json:"packageCode" binding:"required"`
}

// TopUp 为订单充值
// @Summary 充值
// @Tags Order
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param input body TopUpInput true "TopUp Info"
// @Success 200 {object} response.Response
// @Router /api/orders/{id}/topup [post]
func (h *OrderHandler) TopUp(c *gin.Context) {
	var input TopUpInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	userID := getUserIdFromContext(c)
	result, err := h.topup.TopUp(c.Request.Context(), userID, c.Param("id"), input.PackageCode)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

type CancelInput struct {
	Reason string `json:"reason"`
}

// Cancel 取消订单
// @Summary 取消订单
// @Tags Order
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /api/orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	var input CancelInput
	// reason 可选，空 body 不报错
	_ = c.ShouldBindJSON(&input)

	userID := getUserIdFromContext(c)
	if err := h.cancel.Cancel(c.Request.Context(), userID, c.Param("id"), input.Reason); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Order cancelled")
}

// ListTopups 订单的充值流水
// @Summary 充值流水
// @Tags Order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /api/orders/{id}/topups [get]
func (h *OrderHandler) ListTopups(c *gin.Context) {
	userID := getUserIdFromContext(c)
	logs, err := h.lifecycle.ListTopups(userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, logs)
}

// writeError 服务层错误到响应码的统一映射
func (h *OrderHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, "Order not found")
	case errors.Is(err, service.ErrNotActivated):
		response.Fail(c, response.ErrOrderNotActivated, "eSIM not yet activated")
	case errors.Is(err, service.ErrTopupLimitReached):
		response.Fail(c, response.ErrTopupLimitReached, "Topup limit reached for this order")
	case errors.Is(err, service.ErrNotCancellable):
		response.Fail(c, response.ErrOrderNotCancellable, "Order is not cancellable")
	case errors.Is(err, service.ErrAlreadyCancelled):
		response.Fail(c, response.ErrOrderAlreadyCancelled, "Order already cancelled")
	case errors.Is(err, service.ErrEsimInUse):
		response.Fail(c, response.ErrEsimInUse, "eSIM profile already installed or in use")
	default:
		if pe, ok := esimapi.IsProviderError(err); ok {
			response.Fail(c, response.ErrProviderFailed, pe.Message)
			return
		}
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

func getUserIdFromContext(c *gin.Context) string {
	val, _ := c.Get("userID")
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

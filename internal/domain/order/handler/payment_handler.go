package handler

import (
	"net/http"

	"esim_store/internal/domain/order/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	checkout service.CheckoutService
}

func NewPaymentHandler(checkout service.CheckoutService) *PaymentHandler {
	return &PaymentHandler{checkout: checkout}
}

// AlipayNotify 支付宝回调
// @Summary 支付宝回调
// @Tags Payment
// @Router /api/payment/notify/alipay [post]
func (h *PaymentHandler) AlipayNotify(c *gin.Context) {
	// 支付宝回调是 POST Form 格式
	c.Request.ParseForm()
	if err := h.checkout.HandlePaymentNotify(c.Request.Context(), "alipay", c.Request.Form); err != nil {
		c.String(http.StatusOK, "fail") // 告诉支付宝处理失败，它会重试
		return
	}
	c.String(http.StatusOK, "success")
}

// WechatNotify 微信支付回调
// @Summary 微信支付回调
// @Tags Payment
// @Router /api/payment/notify/wechat [post]
func (h *PaymentHandler) WechatNotify(c *gin.Context) {
	// 微信支付回调是 JSON 格式，验签需要完整的 *http.Request
	if err := h.checkout.HandlePaymentNotify(c.Request.Context(), "wechat", c.Request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": "FAIL", "message": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

package handler

import (
	"net/http"

	"esim_store/internal/domain/order/service"
	"esim_store/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	lifecycle service.LifecycleService
}

func NewWebhookHandler(lifecycle service.LifecycleService) *WebhookHandler {
	return &WebhookHandler{lifecycle: lifecycle}
}

// Probe 供应商配置校验用的存活探测
// @Summary Webhook 探测
// @Tags Webhook
// @Router /api/webhook/esim [get]
func (h *WebhookHandler) Probe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Notify 供应商状态回调。无论处理结果如何都回 200：
// 回 5xx 会触发供应商重投风暴，而写入本身是幂等的，
// 丢失的回调由客户端轮询兜底
// @Summary Webhook 回调
// @Tags Webhook
// @Router /api/webhook/esim [post]
func (h *WebhookHandler) Notify(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		logger.Log.Warn("malformed webhook payload", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if err := h.lifecycle.HandleWebhook(c.Request.Context(), payload); err != nil {
		logger.Log.Error("webhook processing failed",
			zap.String("order_no", payload.OrderNo),
			zap.String("notify_type", payload.NotifyType),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

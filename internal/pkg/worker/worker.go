package worker

import (
	"context"
	"fmt"
	"time"

	"esim_store/internal/pkg/mailer"
	"esim_store/internal/pkg/push"
	"esim_store/internal/pkg/uploader"
	"esim_store/pkg/logger"
	"esim_store/pkg/metrics"

	"go.uber.org/zap"
)

// OrderMarker 通知完成后回写订单的 email_sent 标记。
// 用小接口避免 worker 依赖整个订单仓储
type OrderMarker interface {
	MarkEmailSent(orderID string) error
	UpdateQRCodeURL(orderID, url string) error
}

// NotifyTask 一次分配通知：邮件 + App 推送 + 二维码镜像
type NotifyTask struct {
	OrderID        string
	UserID         string
	Email          string
	PackageName    string
	Iccid          string
	QRCodeURL      string
	ActivationCode string
	Retry          int // 重试次数
}

// NotifyPool 分配通知异步队列。
// 通知放在 webhook/轮询主路径之外执行，邮件服务抖动不影响回调响应。
// 发送成功才标记 email_sent，失败保持 false，后续 webhook 重投会再次触发
type NotifyPool struct {
	TaskQueue  chan NotifyTask
	RetryQueue chan NotifyTask
	WorkerNum  int
	MaxRetry   int

	marker   OrderMarker
	mailer   mailer.Mailer     // 可为 nil（未配置时跳过）
	pusher   push.PushService  // 可为 nil
	uploader uploader.Uploader // 可为 nil
	metrics  *metrics.MetricsCollector
}

func NewNotifyPool(marker OrderMarker, m mailer.Mailer, p push.PushService, u uploader.Uploader, workerNum, bufferSize int) *NotifyPool {
	return &NotifyPool{
		TaskQueue:  make(chan NotifyTask, bufferSize),
		RetryQueue: make(chan NotifyTask, bufferSize/2),
		WorkerNum:  workerNum,
		MaxRetry:   2,
		marker:     marker,
		mailer:     m,
		pusher:     p,
		uploader:   u,
	}
}

// SetMetrics 注入指标收集器（可选）
func (p *NotifyPool) SetMetrics(m *metrics.MetricsCollector) {
	p.metrics = m
}

func (p *NotifyPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		go p.worker(i)
	}
	// 启动重试处理协程
	go p.retryWorker()
	logger.Log.Info("notify pool started", zap.Int("workers", p.WorkerNum))
}

func (p *NotifyPool) worker(id int) {
	for task := range p.TaskQueue {
		if err := p.processTask(task); err != nil {
			logger.Log.Warn("notify task failed",
				zap.Int("worker", id),
				zap.String("order_id", task.OrderID),
				zap.Int("attempt", task.Retry),
				zap.Error(err),
			)

			// 如果未达到最大重试次数，加入重试队列
			if task.Retry < p.MaxRetry {
				task.Retry++
				select {
				case p.RetryQueue <- task:
				default:
					p.logDroppedTask(task, err)
				}
			} else {
				// email_sent 保持 false，供应商下一次 webhook 重投会再触发
				p.logDroppedTask(task, err)
			}
		}
	}
}

func (p *NotifyPool) retryWorker() {
	for task := range p.RetryQueue {
		// 延迟重试，避免立即重试
		time.Sleep(time.Duration(task.Retry) * time.Second)

		select {
		case p.TaskQueue <- task:
		default:
			p.logDroppedTask(task, nil)
		}
	}
}

func (p *NotifyPool) processTask(task NotifyTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	qrURL := task.QRCodeURL

	// 二维码镜像是尽力而为：失败继续用供应商原始链接
	if p.uploader != nil && qrURL != "" {
		if mirrored, err := p.uploader.MirrorQRCode(qrURL, task.OrderID); err == nil {
			qrURL = mirrored
			if err := p.marker.UpdateQRCodeURL(task.OrderID, mirrored); err != nil {
				logger.Log.Warn("failed to persist mirrored qr url",
					zap.String("order_id", task.OrderID), zap.Error(err))
			}
		} else {
			p.observe("qr_mirror", "failed")
		}
	}

	// 邮件是主通知渠道，失败视为任务失败并重试
	if p.mailer != nil && task.Email != "" {
		if err := p.mailer.SendEsimReady(ctx, task.Email, task.PackageName, task.Iccid, qrURL, task.ActivationCode); err != nil {
			p.observe("email", "failed")
			return fmt.Errorf("send email: %w", err)
		}
		p.observe("email", "ok")
	}

	// App 推送失败只记录，不触发整体重试（避免重复发邮件）
	if p.pusher != nil {
		title := "eSIM 已就绪"
		body := fmt.Sprintf("您购买的 %s 已分配完成，点击查看安装二维码。", task.PackageName)
		if err := p.pusher.PushToAccount(task.UserID, title, body, map[string]string{"order_id": task.OrderID}); err != nil {
			p.observe("push", "failed")
			logger.Log.Warn("push notification failed",
				zap.String("order_id", task.OrderID), zap.Error(err))
		} else {
			p.observe("push", "ok")
		}
	}

	if err := p.marker.MarkEmailSent(task.OrderID); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}

	return nil
}

func (p *NotifyPool) observe(channel, result string) {
	if p.metrics != nil {
		p.metrics.ObserveNotification(channel, result)
	}
}

func (p *NotifyPool) logDroppedTask(task NotifyTask, err error) {
	logger.Log.Error("notify task dropped",
		zap.String("order_id", task.OrderID),
		zap.String("user_id", task.UserID),
		zap.Error(err),
	)
}

func (p *NotifyPool) AddTask(task NotifyTask) {
	select {
	case p.TaskQueue <- task:
		// 任务入队成功
	default:
		p.logDroppedTask(task, nil)
	}
}

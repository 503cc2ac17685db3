package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/pkg/esimapi"
	"esim_store/internal/pkg/worker"
	"esim_store/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 服务层业务错误
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotActivated      = errors.New("esim not yet activated")
	ErrTopupLimitReached = errors.New("topup limit reached for this order")
	ErrNotCancellable    = errors.New("order is not cancellable")
	ErrAlreadyCancelled  = errors.New("order already cancelled")
	ErrEsimInUse         = errors.New("esim profile already installed or in use")
)

// ProviderGateway 生命周期逻辑依赖的供应商操作子集
type ProviderGateway interface {
	OrderProfiles(ctx context.Context, transactionID, packageCode string, count int) (string, error)
	QueryProfiles(ctx context.Context, q esimapi.ProfileQuery) ([]esimapi.Profile, error)
	QueryUsage(ctx context.Context, esimTranNos []string) ([]esimapi.Usage, error)
	Cancel(ctx context.Context, esimTranNo string) error
	TopUp(ctx context.Context, req esimapi.TopUpRequest) (*esimapi.TopUpResult, error)
}

// Notifier 分配通知入口
type Notifier interface {
	AddTask(task worker.NotifyTask)
}

// Decision 状态转移决策。由纯函数 Reconcile 产出，
// I/O（查供应商、写库、发通知）全部留在服务层执行
type Decision struct {
	Allocate bool
	Fields   repository.AllocationFields
	Notify   bool
}

// Reconcile 核心转移规则，webhook 和轮询共用：
// 供应商返回了至少一条 eSIM 记录 -> 取第一条，整体覆盖分配字段，推进 ALLOCATED；
// 没有记录 -> 维持原状（供应商还在出货，不是错误）。
// 已取消的订单不会被复活
func Reconcile(o *model.Order, profiles []esimapi.Profile) Decision {
	if len(profiles) == 0 {
		return Decision{}
	}
	if o.OrderStatus == model.OrderStatusCancelled {
		return Decision{}
	}

	p := profiles[0]
	return Decision{
		Allocate: true,
		Fields: repository.AllocationFields{
			Iccid:          p.Iccid,
			EsimTranNo:     p.EsimTranNo,
			EsimStatus:     p.EsimStatus,
			SmdpStatus:     p.SmdpStatus,
			QrCodeURL:      p.QrCodeURL,
			QrCodeData:     p.ActivationCode,
			ActivationCode: p.ActivationCode,
			SmdpAddress:    p.SmdpAddress,
			ExpiryDate:     p.ExpiredTime,
		},
		// email_sent 标记保证整个分配生命周期最多通知一次
		Notify: !o.EmailSent,
	}
}

// WebhookPayload 供应商回调报文。esimList 可能直接内联分配结果，
// 没有时回调只是 "该查一下了" 的信号
type WebhookPayload struct {
	OrderNo    string            `json:"orderNo"`
	NotifyType string            `json:"notifyType"`
	EsimList   []esimapi.Profile `json:"esimList,omitempty"`
}

type LifecycleService interface {
	Poll(ctx context.Context, userID, orderID string) (*model.Order, error)
	HandleWebhook(ctx context.Context, payload WebhookPayload) error
	GetUsage(ctx context.Context, userID, orderID string) (*esimapi.Usage, error)
	ListOrders(userID string, page, limit int) ([]model.Order, int64, error)
	ListTopups(userID, orderID string) ([]model.OrderActionLog, error)
}

type lifecycleService struct {
	repo     repository.OrderRepository
	gateway  ProviderGateway
	notifier Notifier
	rdb      *redis.Client // webhook 重投去重，可为 nil
}

func NewLifecycleService(repo repository.OrderRepository, gateway ProviderGateway, notifier Notifier, rdb *redis.Client) LifecycleService {
	return &lifecycleService{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		rdb:      rdb,
	}
}

// Poll 客户端主动查询订单。已分配直接返回；
// 待分配则查一次供应商并应用转移规则。
// 供应商查询失败对轮询是非致命的，按 "还在处理中" 返回当前状态
func (s *lifecycleService) Poll(ctx context.Context, userID, orderID string) (*model.Order, error) {
	order, err := s.repo.GetByIDForUser(orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	// 幂等短路：已分配的订单不再查供应商
	if order.OrderStatus != model.OrderStatusPending || order.OrderNo == "" {
		return order, nil
	}

	profiles, err := s.gateway.QueryProfiles(ctx, esimapi.ProfileQuery{OrderNo: order.OrderNo})
	if err != nil {
		logger.Log.Warn("provider query failed during poll, returning current state",
			zap.String("order_id", order.ID),
			zap.String("order_no", order.OrderNo),
			zap.Error(err),
		)
		return order, nil
	}

	fresh, _, err := s.apply(order, profiles)
	return fresh, err
}

// HandleWebhook 供应商回调。无论处理结果如何，HTTP 层都回 200，
// 避免供应商按失败重投放大流量；幂等性由转移规则本身保证
func (s *lifecycleService) HandleWebhook(ctx context.Context, payload WebhookPayload) error {
	if payload.OrderNo == "" {
		return fmt.Errorf("webhook payload missing orderNo")
	}

	// redis 去重只是省一次处理，漏判也无害（写入本身是收敛的）
	dedupeKey := fmt.Sprintf("webhook:dedupe:%s:%s", payload.OrderNo, payload.NotifyType)
	if s.rdb != nil {
		if n, err := s.rdb.Exists(ctx, dedupeKey).Result(); err == nil && n > 0 {
			logger.Log.Info("duplicate webhook skipped", zap.String("order_no", payload.OrderNo))
			return nil
		}
	}

	order, err := s.repo.GetByOrderNo(payload.OrderNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Warn("webhook for unknown order", zap.String("order_no", payload.OrderNo))
			return nil
		}
		return err
	}

	// 回调内联了分配数据就直接用，否则查一次供应商。
	// 两条路径拿到的都是单次读取的完整快照
	profiles := payload.EsimList
	if len(profiles) == 0 {
		profiles, err = s.gateway.QueryProfiles(ctx, esimapi.ProfileQuery{OrderNo: payload.OrderNo})
		if err != nil {
			return fmt.Errorf("query profiles for webhook: %w", err)
		}
	}

	_, decision, err := s.apply(order, profiles)
	if err != nil {
		return err
	}

	// 只有真正落了分配才写去重键："还在出货" 的空回调不算处理完，
	// 供应商带着真实分配结果的重投必须放行
	if decision.Allocate && s.rdb != nil {
		s.rdb.Set(ctx, dedupeKey, 1, 24*time.Hour)
	}
	return nil
}

// apply 执行转移决策：整体覆盖写入 + 至多一次的通知入队
func (s *lifecycleService) apply(order *model.Order, profiles []esimapi.Profile) (*model.Order, Decision, error) {
	decision := Reconcile(order, profiles)
	if !decision.Allocate {
		return order, decision, nil
	}

	if err := s.repo.UpdateAllocation(order.ID, decision.Fields); err != nil {
		return nil, decision, fmt.Errorf("persist allocation: %w", err)
	}

	if decision.Notify && s.notifier != nil {
		s.notifier.AddTask(worker.NotifyTask{
			OrderID:        order.ID,
			UserID:         order.UserID,
			Email:          order.Email,
			PackageName:    order.PackageName,
			Iccid:          decision.Fields.Iccid,
			QRCodeURL:      decision.Fields.QrCodeURL,
			ActivationCode: decision.Fields.ActivationCode,
		})
	}

	fresh, err := s.repo.GetByID(order.ID)
	if err != nil {
		return nil, decision, err
	}
	return fresh, decision, nil
}

// GetUsage 查询一张 eSIM 的用量
func (s *lifecycleService) GetUsage(ctx context.Context, userID, orderID string) (*esimapi.Usage, error) {
	order, err := s.repo.GetByIDForUser(orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if order.EsimTranNo == "" {
		return nil, ErrNotActivated
	}

	usages, err := s.gateway.QueryUsage(ctx, []string{order.EsimTranNo})
	if err != nil {
		return nil, err
	}
	if len(usages) == 0 {
		return nil, fmt.Errorf("provider returned no usage for %s", order.EsimTranNo)
	}
	return &usages[0], nil
}

func (s *lifecycleService) ListOrders(userID string, page, limit int) ([]model.Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(userID, (page-1)*limit, limit)
}

func (s *lifecycleService) ListTopups(userID, orderID string) ([]model.OrderActionLog, error) {
	if _, err := s.repo.GetByIDForUser(orderID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return s.repo.ListActionLogs(orderID)
}

package service

import (
	"context"
	"encoding/json"
	"errors"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/pkg/esimapi"
	"esim_store/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PackageLookup 套餐信息查询，由 catalog 模块实现
type PackageLookup interface {
	// PackageDelta 充值套餐的流量/天数/价格，用于流水快照
	PackageDelta(ctx context.Context, packageCode string) (volume int64, days int, priceUSD int64, err error)

	// PackageInfo 套餐名称和价格，用于下单
	PackageInfo(ctx context.Context, packageCode string) (name string, priceUSD int64, err error)
}

// TopupResult 返回给客户端的充值结果
type TopupResult struct {
	TransactionID string `json:"transactionId"`
	TotalVolume   int64  `json:"totalVolume"`
	TotalDuration int    `json:"totalDuration"`
	ExpiredTime   string `json:"expiredTime"`
}

type TopupService interface {
	TopUp(ctx context.Context, userID, orderID, packageCode string) (*TopupResult, error)
}

type topupService struct {
	repo     repository.OrderRepository
	gateway  ProviderGateway
	packages PackageLookup
}

func NewTopupService(repo repository.OrderRepository, gateway ProviderGateway, packages PackageLookup) TopupService {
	return &topupService{
		repo:     repo,
		gateway:  gateway,
		packages: packages,
	}
}

// TopUp 为订单充值。前置校验按顺序执行，第一个失败即返回，
// 校验全部通过前不会产生任何外部调用或写入
func (s *topupService) TopUp(ctx context.Context, userID, orderID, packageCode string) (*TopupResult, error) {
	// 1. 订单存在且属于当前用户
	order, err := s.repo.GetByIDForUser(orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	// 2. eSIM 已分配才能充值
	if order.Iccid == "" && order.EsimTranNo == "" {
		return nil, ErrNotActivated
	}

	// 3. 充值次数上限
	count, err := s.repo.CountTopups(order.ID)
	if err != nil {
		return nil, err
	}
	if count >= model.MaxTopupsPerOrder {
		return nil, ErrTopupLimitReached
	}

	// 每次尝试生成唯一事务号：既是供应商侧的幂等键，也是流水的自然键
	transactionID := uuid.New().String()

	// 套餐增量用于补算充值前快照，查不到不阻塞充值
	volume, days, priceUSD, lookupErr := s.packages.PackageDelta(ctx, packageCode)
	if lookupErr != nil {
		logger.Log.Warn("package delta lookup failed, previous_state will be omitted",
			zap.String("package_code", packageCode), zap.Error(lookupErr))
	}

	result, err := s.gateway.TopUp(ctx, esimapi.TopUpRequest{
		EsimTranNo:    order.EsimTranNo,
		Iccid:         order.Iccid,
		PackageCode:   packageCode,
		TransactionID: transactionID,
	})
	if err != nil {
		// 失败也落流水，订单本身不做任何变更
		entry := &model.OrderActionLog{
			OrderID:            order.ID,
			UserID:             userID,
			ActionType:         model.ActionTypeTopup,
			TopupPackageCode:   packageCode,
			TopupTransactionID: transactionID,
			PriceUSD:           priceUSD,
			DataVolume:         volume,
			Days:               days,
			Status:             model.ActionStatusFailed,
			ErrorMessage:       err.Error(),
		}
		if pe, ok := esimapi.IsProviderError(err); ok {
			entry.ErrorMessage = pe.Message
			entry.APIResponse = pe.Raw
		}
		if logErr := s.repo.InsertActionLog(entry); logErr != nil {
			logger.Log.Error("failed to record failed topup attempt",
				zap.String("order_id", order.ID), zap.Error(logErr))
		}
		return nil, err
	}

	// 供应商返回了新的过期时间就同步到订单
	if result.ExpiredTime != "" {
		if err := s.repo.UpdateExpiry(order.ID, result.ExpiredTime); err != nil {
			logger.Log.Error("failed to update order expiry after topup",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	// 充值前快照 = 供应商新总量减去本次套餐增量。
	// 依赖供应商增量准确；不回读充值前的本地状态
	newState, _ := json.Marshal(model.StateSnapshot{
		TotalVolume:   result.TotalVolume,
		TotalDuration: result.TotalDuration,
		ExpiredTime:   result.ExpiredTime,
	})

	entry := &model.OrderActionLog{
		OrderID:            order.ID,
		UserID:             userID,
		ActionType:         model.ActionTypeTopup,
		TopupPackageCode:   packageCode,
		TopupTransactionID: transactionID,
		PriceUSD:           priceUSD,
		DataVolume:         volume,
		Days:               days,
		Status:             model.ActionStatusSuccess,
		NewState:           newState,
		APIResponse:        result.Raw,
	}
	if lookupErr == nil {
		previousState, _ := json.Marshal(model.StateSnapshot{
			TotalVolume:   result.TotalVolume - volume,
			TotalDuration: result.TotalDuration - days,
			ExpiredTime:   order.ExpiryDate,
		})
		entry.PreviousState = previousState
	}

	// 供应商侧充值已完成，本地流水写失败只记录不回滚
	if err := s.repo.InsertActionLog(entry); err != nil {
		logger.Log.Error("failed to record successful topup",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", transactionID),
			zap.Error(err))
	}

	return &TopupResult{
		TransactionID: result.TransactionID,
		TotalVolume:   result.TotalVolume,
		TotalDuration: result.TotalDuration,
		ExpiredTime:   result.ExpiredTime,
	}, nil
}

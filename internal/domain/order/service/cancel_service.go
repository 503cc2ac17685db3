package service

import (
	"context"
	"errors"
	"fmt"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/pkg/esimapi"
	"esim_store/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CancelService interface {
	Cancel(ctx context.Context, userID, orderID, reason string) error
}

type cancelService struct {
	repo    repository.OrderRepository
	gateway ProviderGateway
}

func NewCancelService(repo repository.OrderRepository, gateway ProviderGateway) CancelService {
	return &cancelService{
		repo:    repo,
		gateway: gateway,
	}
}

// Cancel 取消订单。只有已分配且从未安装过的 eSIM 可以取消。
// 本地的 esim_status 可能已过期，取消前必须向供应商重新确认
func (s *cancelService) Cancel(ctx context.Context, userID, orderID, reason string) error {
	order, err := s.repo.GetByIDForUser(orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	if order.OrderStatus == model.OrderStatusCancelled {
		return ErrAlreadyCancelled
	}
	if order.OrderStatus != model.OrderStatusAllocated {
		return ErrNotCancellable
	}

	// 取消前实时查一次供应商，确认卡没被装过
	profiles, err := s.gateway.QueryProfiles(ctx, esimapi.ProfileQuery{EsimTranNo: order.EsimTranNo})
	if err != nil {
		return fmt.Errorf("verify esim status before cancel: %w", err)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("provider returned no profile for %s", order.EsimTranNo)
	}

	p := profiles[0]
	if p.EsimStatus != esimapi.EsimStatusGotResource {
		return ErrEsimInUse
	}
	if p.SmdpStatus != "" && p.SmdpStatus != esimapi.SmdpStatusReleased {
		return ErrEsimInUse
	}

	if err := s.gateway.Cancel(ctx, order.EsimTranNo); err != nil {
		// 供应商拒绝取消，本地不做任何变更
		return err
	}

	// 供应商侧已经取消成功，这才是权威状态；
	// 本地更新失败只记录，不向调用方报错，允许短暂不一致
	if err := s.repo.UpdateCancelled(order.ID, reason); err != nil {
		logger.Log.Error("provider cancel succeeded but local update failed",
			zap.String("order_id", order.ID),
			zap.String("esim_tran_no", order.EsimTranNo),
			zap.Error(err))
	}

	return nil
}

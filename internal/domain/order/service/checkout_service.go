package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/domain/order/strategy"
	"esim_store/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CheckoutService interface {
	CreateOrder(ctx context.Context, userID, email, packageCode, channel string) (*model.Order, string, error)
	HandlePaymentNotify(ctx context.Context, channel string, params interface{}) error
	RegisterStrategy(channel string, st strategy.PaymentStrategy)
}

type checkoutService struct {
	repo       repository.OrderRepository
	gateway    ProviderGateway
	packages   PackageLookup
	strategies map[string]strategy.PaymentStrategy
}

func NewCheckoutService(repo repository.OrderRepository, gateway ProviderGateway, packages PackageLookup) CheckoutService {
	return &checkoutService{
		repo:       repo,
		gateway:    gateway,
		packages:   packages,
		strategies: make(map[string]strategy.PaymentStrategy),
	}
}

// RegisterStrategy 注册支付策略
func (s *checkoutService) RegisterStrategy(channel string, st strategy.PaymentStrategy) {
	s.strategies[channel] = st
}

// CreateOrder 下单：建本地订单（待支付）并返回支付参数。
// 供应商下单发生在支付回调确认之后
func (s *checkoutService) CreateOrder(ctx context.Context, userID, email, packageCode, channel string) (*model.Order, string, error) {
	st, ok := s.strategies[channel]
	if !ok {
		return nil, "", errors.New("unsupported payment channel")
	}

	name, priceUSD, err := s.packages.PackageInfo(ctx, packageCode)
	if err != nil {
		return nil, "", fmt.Errorf("package %s: %w", packageCode, err)
	}

	order := &model.Order{
		UserID:        userID,
		Email:         email,
		PackageCode:   packageCode,
		PackageName:   name,
		OrderStatus:   model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		Channel:       channel,
		AmountUSD:     priceUSD,
	}
	if err := s.repo.Create(order); err != nil {
		return nil, "", err
	}

	payParam, err := st.Pay(order.ID, float64(priceUSD)/10000, name)
	if err != nil {
		return nil, "", err
	}

	return order, payParam, nil
}

// HandlePaymentNotify 支付回调。验签、标记已支付、向供应商提交 eSIM 订单。
// 回调可能重投，每一步都要能安全重入
func (s *checkoutService) HandlePaymentNotify(ctx context.Context, channel string, params interface{}) error {
	st, ok := s.strategies[channel]
	if !ok {
		return errors.New("unsupported payment channel")
	}

	orderID, _, success, err := st.Notify(params)
	if err != nil {
		return err
	}

	order, err := s.repo.GetByID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}

	if !success {
		logger.Log.Warn("payment failed", zap.String("order_id", orderID), zap.String("channel", channel))
		return nil
	}

	if order.PaymentStatus != model.PaymentStatusPaid {
		now := time.Now()
		extraJSON, _ := json.Marshal(params)
		if err := s.repo.UpdatePayment(orderID, model.PaymentStatusPaid, channel, &now, extraJSON); err != nil {
			return err
		}
	}

	// 已经提交过供应商订单就不再重复提交
	if order.OrderNo != "" {
		return nil
	}

	// 本地订单ID作为供应商幂等键，重投的回调不会重复下单
	orderNo, err := s.gateway.OrderProfiles(ctx, order.ID, order.PackageCode, 1)
	if err != nil {
		// 钱已收到但供应商下单失败：记录错误并向支付渠道报失败，
		// 渠道重投回调时会重试提交
		if setErr := s.repo.SetErrorMessage(orderID, err.Error()); setErr != nil {
			logger.Log.Error("failed to record provider order error",
				zap.String("order_id", orderID), zap.Error(setErr))
		}
		return fmt.Errorf("submit provider order: %w", err)
	}

	if err := s.repo.SetOrderNo(orderID, orderNo); err != nil {
		logger.Log.Error("provider order submitted but order_no not persisted",
			zap.String("order_id", orderID),
			zap.String("order_no", orderNo),
			zap.Error(err))
		return err
	}

	return nil
}

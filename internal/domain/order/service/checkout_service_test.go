package service

import (
	"context"
	"testing"

	"esim_store/internal/domain/order/model"
	basemodel "esim_store/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// fakeStrategy 固定返回的支付策略
type fakeStrategy struct {
	payParam string
	orderID  string
	amount   float64
	success  bool
	err      error
}

func (f *fakeStrategy) Pay(orderID string, amountUSD float64, subject string) (string, error) {
	return f.payParam, f.err
}

func (f *fakeStrategy) Notify(params interface{}) (string, float64, bool, error) {
	return f.orderID, f.amount, f.success, f.err
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending order and returns pay params", func(t *testing.T) {
		repo := new(MockOrderRepository)
		pkgs := new(MockPackageLookup)
		svc := NewCheckoutService(repo, new(MockGateway), pkgs)
		svc.RegisterStrategy("alipay", &fakeStrategy{payParam: "pay-url"})

		pkgs.On("PackageInfo", "PKG-ID-5GB").Return("Indonesia 5GB", int64(55000), nil)
		repo.On("Create", mock.MatchedBy(func(o *model.Order) bool {
			return o.OrderStatus == model.OrderStatusPending &&
				o.PaymentStatus == model.PaymentStatusUnpaid &&
				o.AmountUSD == 55000
		})).Return(nil)

		order, payParam, err := svc.CreateOrder(ctx, "user-1", "buyer@example.com", "PKG-ID-5GB", "alipay")
		assert.NoError(t, err)
		assert.Equal(t, "pay-url", payParam)
		assert.Equal(t, model.OrderStatusPending, order.OrderStatus)
	})

	t.Run("unknown channel is rejected", func(t *testing.T) {
		svc := NewCheckoutService(new(MockOrderRepository), new(MockGateway), new(MockPackageLookup))
		_, _, err := svc.CreateOrder(ctx, "user-1", "buyer@example.com", "PKG-ID-5GB", "paypal")
		assert.Error(t, err)
	})
}

func TestHandlePaymentNotify(t *testing.T) {
	ctx := context.Background()

	unpaid := func() *model.Order {
		return &model.Order{
			BaseModel:     basemodel.BaseModel{ID: "order-1"},
			UserID:        "user-1",
			PackageCode:   "PKG-ID-5GB",
			OrderStatus:   model.OrderStatusPending,
			PaymentStatus: model.PaymentStatusUnpaid,
		}
	}

	t.Run("marks paid and submits provider order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewCheckoutService(repo, gw, new(MockPackageLookup))
		svc.RegisterStrategy("alipay", &fakeStrategy{orderID: "order-1", amount: 5.5, success: true})

		repo.On("GetByID", "order-1").Return(unpaid(), nil)
		repo.On("UpdatePayment", "order-1", model.PaymentStatusPaid, "alipay", mock.Anything, mock.Anything).Return(nil)
		// 本地订单 ID 作为供应商侧幂等键
		gw.On("OrderProfiles", "order-1", "PKG-ID-5GB", 1).Return("B24010100001", nil)
		repo.On("SetOrderNo", "order-1", "B24010100001").Return(nil)

		err := svc.HandlePaymentNotify(ctx, "alipay", nil)
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("replayed notify after provider order is a no-op", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewCheckoutService(repo, gw, new(MockPackageLookup))
		svc.RegisterStrategy("alipay", &fakeStrategy{orderID: "order-1", amount: 5.5, success: true})

		done := unpaid()
		done.PaymentStatus = model.PaymentStatusPaid
		done.OrderNo = "B24010100001"
		repo.On("GetByID", "order-1").Return(done, nil)

		err := svc.HandlePaymentNotify(ctx, "alipay", nil)
		assert.NoError(t, err)
		gw.AssertNotCalled(t, "OrderProfiles", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider order failure records error for retry on next notify", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewCheckoutService(repo, gw, new(MockPackageLookup))
		svc.RegisterStrategy("alipay", &fakeStrategy{orderID: "order-1", amount: 5.5, success: true})

		repo.On("GetByID", "order-1").Return(unpaid(), nil)
		repo.On("UpdatePayment", "order-1", model.PaymentStatusPaid, "alipay", mock.Anything, mock.Anything).Return(nil)
		gw.On("OrderProfiles", "order-1", "PKG-ID-5GB", 1).Return("", assert.AnError)
		repo.On("SetErrorMessage", "order-1", mock.Anything).Return(nil)

		err := svc.HandlePaymentNotify(ctx, "alipay", nil)
		assert.Error(t, err)
		repo.AssertNotCalled(t, "SetOrderNo", mock.Anything, mock.Anything)
	})

	t.Run("failed payment leaves order unpaid", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewCheckoutService(repo, gw, new(MockPackageLookup))
		svc.RegisterStrategy("alipay", &fakeStrategy{orderID: "order-1", success: false})

		repo.On("GetByID", "order-1").Return(unpaid(), nil)

		err := svc.HandlePaymentNotify(ctx, "alipay", nil)
		assert.NoError(t, err)
		repo.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		gw.AssertNotCalled(t, "OrderProfiles", mock.Anything, mock.Anything, mock.Anything)
	})
}

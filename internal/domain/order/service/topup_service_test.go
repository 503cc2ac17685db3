package service

import (
	"context"
	"encoding/json"
	"testing"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/pkg/esimapi"
	basemodel "esim_store/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

func activatedOrder() *model.Order {
	return &model.Order{
		BaseModel:   basemodel.BaseModel{ID: "order-1"},
		UserID:      "user-1",
		OrderNo:     "B24010100001",
		OrderStatus: model.OrderStatusAllocated,
		Iccid:       "8962000000000000001",
		EsimTranNo:  "T240101001",
		ExpiryDate:  "2024-06-01T00:00:00Z",
	}
}

func TestTopUp(t *testing.T) {
	ctx := context.Background()

	t.Run("successful topup records ledger entry with snapshots", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		pkgs := new(MockPackageLookup)
		svc := NewTopupService(repo, gw, pkgs)

		repo.On("GetByIDForUser", "order-1", "user-1").Return(activatedOrder(), nil)
		repo.On("CountTopups", "order-1").Return(int64(3), nil)
		pkgs.On("PackageDelta", "TOPUP-ID-1GB").
			Return(int64(1073741824), 7, int64(35000), nil)
		gw.On("TopUp", mock.MatchedBy(func(req esimapi.TopUpRequest) bool {
			return req.EsimTranNo == "T240101001" &&
				req.PackageCode == "TOPUP-ID-1GB" &&
				req.TransactionID != ""
		})).Return(&esimapi.TopUpResult{
			TotalVolume:   5368709120,
			TotalDuration: 30,
			ExpiredTime:   "2024-07-01T00:00:00Z",
			TransactionID: "T1",
			Raw:           json.RawMessage(`{"success":true}`),
		}, nil)
		repo.On("UpdateExpiry", "order-1", "2024-07-01T00:00:00Z").Return(nil)
		repo.On("InsertActionLog", mock.MatchedBy(func(e *model.OrderActionLog) bool {
			if e.Status != model.ActionStatusSuccess {
				return false
			}
			var prev, next model.StateSnapshot
			if err := json.Unmarshal(e.PreviousState, &prev); err != nil {
				return false
			}
			if err := json.Unmarshal(e.NewState, &next); err != nil {
				return false
			}
			// 充值前快照 = 新总量 - 本次套餐增量
			return next.TotalVolume == 5368709120 &&
				prev.TotalVolume == 5368709120-1073741824 &&
				prev.TotalDuration == 30-7 &&
				prev.ExpiredTime == "2024-06-01T00:00:00Z"
		})).Return(nil)

		result, err := svc.TopUp(ctx, "user-1", "order-1", "TOPUP-ID-1GB")
		assert.NoError(t, err)
		assert.Equal(t, "T1", result.TransactionID)
		assert.Equal(t, int64(5368709120), result.TotalVolume)
		repo.AssertExpectations(t)
	})

	t.Run("limit reached rejects before any provider call", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewTopupService(repo, gw, new(MockPackageLookup))

		repo.On("GetByIDForUser", "order-1", "user-1").Return(activatedOrder(), nil)
		repo.On("CountTopups", "order-1").Return(int64(model.MaxTopupsPerOrder), nil)

		_, err := svc.TopUp(ctx, "user-1", "order-1", "TOPUP-ID-1GB")
		assert.ErrorIs(t, err, ErrTopupLimitReached)
		gw.AssertNotCalled(t, "TopUp", mock.Anything)
		repo.AssertNotCalled(t, "InsertActionLog", mock.Anything)
	})

	t.Run("unactivated order is rejected", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewTopupService(repo, gw, new(MockPackageLookup))

		order := activatedOrder()
		order.Iccid = ""
		order.EsimTranNo = ""
		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)

		_, err := svc.TopUp(ctx, "user-1", "order-1", "TOPUP-ID-1GB")
		assert.ErrorIs(t, err, ErrNotActivated)
		gw.AssertNotCalled(t, "TopUp", mock.Anything)
	})

	t.Run("provider failure records failed ledger entry without touching order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		pkgs := new(MockPackageLookup)
		svc := NewTopupService(repo, gw, pkgs)

		repo.On("GetByIDForUser", "order-1", "user-1").Return(activatedOrder(), nil)
		repo.On("CountTopups", "order-1").Return(int64(0), nil)
		pkgs.On("PackageDelta", "TOPUP-ID-1GB").
			Return(int64(1073741824), 7, int64(35000), nil)
		gw.On("TopUp", mock.Anything).Return(nil, &esimapi.ProviderError{
			Code:    "310202",
			Message: "package not rechargeable",
			Raw:     json.RawMessage(`{"success":false,"errorCode":"310202"}`),
		})
		repo.On("InsertActionLog", mock.MatchedBy(func(e *model.OrderActionLog) bool {
			return e.Status == model.ActionStatusFailed &&
				e.ErrorMessage == "package not rechargeable" &&
				len(e.APIResponse) > 0
		})).Return(nil)

		_, err := svc.TopUp(ctx, "user-1", "order-1", "TOPUP-ID-1GB")
		assert.Error(t, err)
		repo.AssertNotCalled(t, "UpdateExpiry", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("delta lookup failure omits previous state but does not block topup", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		pkgs := new(MockPackageLookup)
		svc := NewTopupService(repo, gw, pkgs)

		repo.On("GetByIDForUser", "order-1", "user-1").Return(activatedOrder(), nil)
		repo.On("CountTopups", "order-1").Return(int64(0), nil)
		pkgs.On("PackageDelta", "TOPUP-ID-1GB").
			Return(int64(0), 0, int64(0), assert.AnError)
		gw.On("TopUp", mock.Anything).Return(&esimapi.TopUpResult{
			TotalVolume:   2147483648,
			TotalDuration: 14,
			TransactionID: "T2",
		}, nil)
		repo.On("InsertActionLog", mock.MatchedBy(func(e *model.OrderActionLog) bool {
			return e.Status == model.ActionStatusSuccess && e.PreviousState == nil
		})).Return(nil)

		result, err := svc.TopUp(ctx, "user-1", "order-1", "TOPUP-ID-1GB")
		assert.NoError(t, err)
		assert.Equal(t, "T2", result.TransactionID)
	})

	t.Run("missing order returns not found", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := NewTopupService(repo, new(MockGateway), new(MockPackageLookup))

		repo.On("GetByIDForUser", "missing", "user-1").Return(nil, gorm.ErrRecordNotFound)

		_, err := svc.TopUp(ctx, "user-1", "missing", "TOPUP-ID-1GB")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

package service

import (
	"context"
	"testing"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/pkg/esimapi"
	basemodel "esim_store/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"
)

func pendingOrder() *model.Order {
	return &model.Order{
		BaseModel:   basemodel.BaseModel{ID: "order-1"},
		UserID:      "user-1",
		Email:       "buyer@example.com",
		OrderNo:     "B24010100001",
		PackageCode: "PKG-ID-5GB",
		PackageName: "Indonesia 5GB",
		OrderStatus: model.OrderStatusPending,
	}
}

func allocatedProfile() esimapi.Profile {
	return esimapi.Profile{
		Iccid:          "8962000000000000001",
		EsimTranNo:     "T240101001",
		EsimStatus:     esimapi.EsimStatusGotResource,
		SmdpStatus:     esimapi.SmdpStatusReleased,
		QrCodeURL:      "https://cdn.example.com/qr/1.png",
		ActivationCode: "LPA:1$smdp.example.com$ABC",
		SmdpAddress:    "smdp.example.com",
		ExpiredTime:    "2024-07-01T00:00:00Z",
	}
}

func TestReconcile(t *testing.T) {
	t.Run("empty profile list keeps order unchanged", func(t *testing.T) {
		d := Reconcile(pendingOrder(), nil)
		assert.False(t, d.Allocate)
		assert.False(t, d.Notify)
	})

	t.Run("profile present advances to allocated", func(t *testing.T) {
		d := Reconcile(pendingOrder(), []esimapi.Profile{allocatedProfile()})
		assert.True(t, d.Allocate)
		assert.True(t, d.Notify)
		assert.Equal(t, "8962000000000000001", d.Fields.Iccid)
		assert.Equal(t, "T240101001", d.Fields.EsimTranNo)
		assert.Equal(t, "LPA:1$smdp.example.com$ABC", d.Fields.ActivationCode)
	})

	t.Run("already notified order is not notified again", func(t *testing.T) {
		o := pendingOrder()
		o.EmailSent = true
		d := Reconcile(o, []esimapi.Profile{allocatedProfile()})
		assert.True(t, d.Allocate)
		assert.False(t, d.Notify)
	})

	t.Run("cancelled order is never resurrected", func(t *testing.T) {
		o := pendingOrder()
		o.OrderStatus = model.OrderStatusCancelled
		d := Reconcile(o, []esimapi.Profile{allocatedProfile()})
		assert.False(t, d.Allocate)
	})
}

func TestLifecyclePoll(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order with empty provider result stays pending", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, nil)

		order := pendingOrder()
		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)
		gw.On("QueryProfiles", esimapi.ProfileQuery{OrderNo: "B24010100001"}).
			Return([]esimapi.Profile{}, nil)

		got, err := svc.Poll(ctx, "user-1", "order-1")
		assert.NoError(t, err)
		assert.Equal(t, model.OrderStatusPending, got.OrderStatus)
		repo.AssertNotCalled(t, "UpdateAllocation", mock.Anything, mock.Anything)
	})

	t.Run("pending order is allocated when provider returns a profile", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		notifier := &MockNotifier{}
		svc := NewLifecycleService(repo, gw, notifier, nil)

		order := pendingOrder()
		allocated := pendingOrder()
		allocated.OrderStatus = model.OrderStatusAllocated
		allocated.Iccid = "8962000000000000001"

		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)
		gw.On("QueryProfiles", esimapi.ProfileQuery{OrderNo: "B24010100001"}).
			Return([]esimapi.Profile{allocatedProfile()}, nil)
		repo.On("UpdateAllocation", "order-1", mock.MatchedBy(func(f repository.AllocationFields) bool {
			return f.Iccid == "8962000000000000001" && f.EsimTranNo == "T240101001"
		})).Return(nil)
		repo.On("GetByID", "order-1").Return(allocated, nil)

		got, err := svc.Poll(ctx, "user-1", "order-1")
		assert.NoError(t, err)
		assert.Equal(t, model.OrderStatusAllocated, got.OrderStatus)
		assert.Len(t, notifier.Tasks, 1)
		assert.Equal(t, "buyer@example.com", notifier.Tasks[0].Email)
		repo.AssertExpectations(t)
	})

	t.Run("allocated order short circuits without provider call", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, nil)

		order := pendingOrder()
		order.OrderStatus = model.OrderStatusAllocated
		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)

		got, err := svc.Poll(ctx, "user-1", "order-1")
		assert.NoError(t, err)
		assert.Equal(t, model.OrderStatusAllocated, got.OrderStatus)
		gw.AssertNotCalled(t, "QueryProfiles", mock.Anything)
	})

	t.Run("provider failure during poll is non fatal", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, nil)

		order := pendingOrder()
		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)
		gw.On("QueryProfiles", mock.Anything).
			Return(nil, assert.AnError)

		got, err := svc.Poll(ctx, "user-1", "order-1")
		assert.NoError(t, err)
		assert.Equal(t, model.OrderStatusPending, got.OrderStatus)
	})

	t.Run("unknown order returns not found", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := NewLifecycleService(repo, new(MockGateway), nil, nil)

		repo.On("GetByIDForUser", "missing", "user-1").Return(nil, gorm.ErrRecordNotFound)

		_, err := svc.Poll(ctx, "user-1", "missing")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestLifecycleHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("webhook with inline esim list allocates without provider query", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		notifier := &MockNotifier{}
		svc := NewLifecycleService(repo, gw, notifier, nil)

		order := pendingOrder()
		allocated := pendingOrder()
		allocated.OrderStatus = model.OrderStatusAllocated

		repo.On("GetByOrderNo", "B24010100001").Return(order, nil)
		repo.On("UpdateAllocation", "order-1", mock.Anything).Return(nil)
		repo.On("GetByID", "order-1").Return(allocated, nil)

		err := svc.HandleWebhook(ctx, WebhookPayload{
			OrderNo:    "B24010100001",
			NotifyType: "ORDER_STATUS",
			EsimList:   []esimapi.Profile{allocatedProfile()},
		})
		assert.NoError(t, err)
		assert.Len(t, notifier.Tasks, 1)
		gw.AssertNotCalled(t, "QueryProfiles", mock.Anything)
	})

	t.Run("duplicate delivery converges with a single notification", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		notifier := &MockNotifier{}
		svc := NewLifecycleService(repo, gw, notifier, nil)

		first := pendingOrder()
		// 第二次投递时订单已分配、已通知
		second := pendingOrder()
		second.OrderStatus = model.OrderStatusAllocated
		second.EmailSent = true
		second.Iccid = "8962000000000000001"

		repo.On("GetByOrderNo", "B24010100001").Return(first, nil).Once()
		repo.On("GetByOrderNo", "B24010100001").Return(second, nil).Once()
		repo.On("UpdateAllocation", "order-1", mock.Anything).Return(nil).Twice()
		repo.On("GetByID", "order-1").Return(second, nil)

		payload := WebhookPayload{
			OrderNo:    "B24010100001",
			NotifyType: "ORDER_STATUS",
			EsimList:   []esimapi.Profile{allocatedProfile()},
		}
		assert.NoError(t, svc.HandleWebhook(ctx, payload))
		assert.NoError(t, svc.HandleWebhook(ctx, payload))

		// 写入是收敛的，重投只会重复覆盖同样的值；通知只发一次
		assert.Len(t, notifier.Tasks, 1)
	})

	t.Run("empty delivery does not burn the dedupe key", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, rdb)

		allocated := pendingOrder()
		allocated.OrderStatus = model.OrderStatusAllocated

		// 第一次投递抢在供应商查询接口之前，esimList 还是空的
		repo.On("GetByOrderNo", "B24010100001").Return(pendingOrder(), nil).Twice()
		gw.On("QueryProfiles", esimapi.ProfileQuery{OrderNo: "B24010100001"}).
			Return([]esimapi.Profile{}, nil).Once()
		gw.On("QueryProfiles", esimapi.ProfileQuery{OrderNo: "B24010100001"}).
			Return([]esimapi.Profile{allocatedProfile()}, nil).Once()
		repo.On("UpdateAllocation", "order-1", mock.Anything).Return(nil).Once()
		repo.On("GetByID", "order-1").Return(allocated, nil)

		payload := WebhookPayload{OrderNo: "B24010100001", NotifyType: "ORDER_STATUS"}
		dedupeKey := "webhook:dedupe:B24010100001:ORDER_STATUS"

		// 空投递不算处理完，去重键不能写
		assert.NoError(t, svc.HandleWebhook(context.Background(), payload))
		assert.False(t, mr.Exists(dedupeKey))

		// 带着真实分配结果的重投必须放行
		assert.NoError(t, svc.HandleWebhook(context.Background(), payload))
		repo.AssertCalled(t, "UpdateAllocation", "order-1", mock.Anything)
		assert.True(t, mr.Exists(dedupeKey))

		// 分配落库之后的重投才会被去重键挡住
		assert.NoError(t, svc.HandleWebhook(context.Background(), payload))
		repo.AssertNumberOfCalls(t, "GetByOrderNo", 2)
	})

	t.Run("webhook for unknown order is swallowed", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := NewLifecycleService(repo, new(MockGateway), nil, nil)

		repo.On("GetByOrderNo", "UNKNOWN").Return(nil, gorm.ErrRecordNotFound)

		err := svc.HandleWebhook(ctx, WebhookPayload{OrderNo: "UNKNOWN", NotifyType: "ORDER_STATUS"})
		assert.NoError(t, err)
	})

	t.Run("webhook without orderNo is rejected", func(t *testing.T) {
		svc := NewLifecycleService(new(MockOrderRepository), new(MockGateway), nil, nil)
		err := svc.HandleWebhook(ctx, WebhookPayload{NotifyType: "ORDER_STATUS"})
		assert.Error(t, err)
	})

	t.Run("webhook without inline list queries provider", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, nil)

		order := pendingOrder()
		allocated := pendingOrder()
		allocated.OrderStatus = model.OrderStatusAllocated

		repo.On("GetByOrderNo", "B24010100001").Return(order, nil)
		gw.On("QueryProfiles", esimapi.ProfileQuery{OrderNo: "B24010100001"}).
			Return([]esimapi.Profile{allocatedProfile()}, nil)
		repo.On("UpdateAllocation", "order-1", mock.Anything).Return(nil)
		repo.On("GetByID", "order-1").Return(allocated, nil)

		err := svc.HandleWebhook(ctx, WebhookPayload{OrderNo: "B24010100001", NotifyType: "ORDER_STATUS"})
		assert.NoError(t, err)
		gw.AssertExpectations(t)
	})
}

func TestLifecycleGetUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("returns usage for activated order", func(t *testing.T) {
		repo := new(MockOrderRepository)
		gw := new(MockGateway)
		svc := NewLifecycleService(repo, gw, nil, nil)

		order := pendingOrder()
		order.OrderStatus = model.OrderStatusAllocated
		order.EsimTranNo = "T240101001"

		repo.On("GetByIDForUser", "order-1", "user-1").Return(order, nil)
		gw.On("QueryUsage", []string{"T240101001"}).Return([]esimapi.Usage{
			{EsimTranNo: "T240101001", DataUsage: 1024, TotalData: 5368709120},
		}, nil)

		usage, err := svc.GetUsage(ctx, "user-1", "order-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(5368709120), usage.TotalData)
	})

	t.Run("unactivated order is rejected", func(t *testing.T) {
		repo := new(MockOrderRepository)
		svc := NewLifecycleService(repo, new(MockGateway), nil, nil)

		repo.On("GetByIDForUser", "order-1", "user-1").Return(pendingOrder(), nil)

		_, err := svc.GetUsage(ctx, "user-1", "order-1")
		assert.ErrorIs(t, err, ErrNotActivated)
	})
}

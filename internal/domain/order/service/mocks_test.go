package service

import (
	"context"
	"encoding/json"
	"time"

	"esim_store/internal/domain/order/model"
	"esim_store/internal/domain/order/repository"
	"esim_store/internal/pkg/esimapi"
	"esim_store/internal/pkg/worker"

	"github.com/stretchr/testify/mock"
)

// MockOrderRepository is a mock of repository.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(order *model.Order) error {
	args := m.Called(order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(id string) (*model.Order, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIDForUser(id, userID string) (*model.Order, error) {
	args := m.Called(id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByOrderNo(orderNo string) (*model.Order, error) {
	args := m.Called(orderNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByUser(userID string, offset, limit int) ([]model.Order, int64, error) {
	args := m.Called(userID, offset, limit)
	return args.Get(0).([]model.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) UpdateAllocation(id string, fields repository.AllocationFields) error {
	args := m.Called(id, fields)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdatePayment(id, status, channel string, paidAt *time.Time, extra json.RawMessage) error {
	args := m.Called(id, status, channel, paidAt, extra)
	return args.Error(0)
}

func (m *MockOrderRepository) SetOrderNo(id, orderNo string) error {
	args := m.Called(id, orderNo)
	return args.Error(0)
}

func (m *MockOrderRepository) SetErrorMessage(id, msg string) error {
	args := m.Called(id, msg)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateCancelled(id, reason string) error {
	args := m.Called(id, reason)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateExpiry(id, expiry string) error {
	args := m.Called(id, expiry)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkEmailSent(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateQRCodeURL(id, url string) error {
	args := m.Called(id, url)
	return args.Error(0)
}

func (m *MockOrderRepository) InsertActionLog(entry *model.OrderActionLog) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockOrderRepository) ListActionLogs(orderID string) ([]model.OrderActionLog, error) {
	args := m.Called(orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderActionLog), args.Error(1)
}

func (m *MockOrderRepository) CountTopups(orderID string) (int64, error) {
	args := m.Called(orderID)
	return args.Get(0).(int64), args.Error(1)
}

// MockGateway is a mock of ProviderGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) OrderProfiles(ctx context.Context, transactionID, packageCode string, count int) (string, error) {
	args := m.Called(transactionID, packageCode, count)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) QueryProfiles(ctx context.Context, q esimapi.ProfileQuery) ([]esimapi.Profile, error) {
	args := m.Called(q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]esimapi.Profile), args.Error(1)
}

func (m *MockGateway) QueryUsage(ctx context.Context, esimTranNos []string) ([]esimapi.Usage, error) {
	args := m.Called(esimTranNos)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]esimapi.Usage), args.Error(1)
}

func (m *MockGateway) Cancel(ctx context.Context, esimTranNo string) error {
	args := m.Called(esimTranNo)
	return args.Error(0)
}

func (m *MockGateway) TopUp(ctx context.Context, req esimapi.TopUpRequest) (*esimapi.TopUpResult, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*esimapi.TopUpResult), args.Error(1)
}

// MockNotifier records enqueued notification tasks
type MockNotifier struct {
	Tasks []worker.NotifyTask
}

func (m *MockNotifier) AddTask(task worker.NotifyTask) {
	m.Tasks = append(m.Tasks, task)
}

// MockPackageLookup is a mock of PackageLookup
type MockPackageLookup struct {
	mock.Mock
}

func (m *MockPackageLookup) PackageDelta(ctx context.Context, packageCode string) (int64, int, int64, error) {
	args := m.Called(packageCode)
	return args.Get(0).(int64), args.Int(1), args.Get(2).(int64), args.Error(3)
}

func (m *MockPackageLookup) PackageInfo(ctx context.Context, packageCode string) (string, int64, error) {
	args := m.Called(packageCode)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

package repository

import (
	"encoding/json"
	"time"

	"esim_store/internal/domain/order/model"

	"gorm.io/gorm"
)

// AllocationFields 分配结果的完整字段集。
// webhook 和轮询可能并发写同一订单，写入必须整体覆盖
// 同一次供应商查询得到的全部字段，不允许跨两次读取拼接
type AllocationFields struct {
	Iccid          string
	EsimTranNo     string
	EsimStatus     string
	SmdpStatus     string
	QrCodeURL      string
	QrCodeData     string
	ActivationCode string
	SmdpAddress    string
	ExpiryDate     string
}

type OrderRepository interface {
	Create(order *model.Order) error
	GetByID(id string) (*model.Order, error)
	GetByIDForUser(id, userID string) (*model.Order, error)
	GetByOrderNo(orderNo string) (*model.Order, error)
	ListByUser(userID string, offset, limit int) ([]model.Order, int64, error)

	UpdateAllocation(id string, fields AllocationFields) error
	UpdatePayment(id, status, channel string, paidAt *time.Time, extra json.RawMessage) error
	SetOrderNo(id, orderNo string) error
	SetErrorMessage(id, msg string) error
	UpdateCancelled(id, reason string) error
	UpdateExpiry(id, expiry string) error
	MarkEmailSent(id string) error
	UpdateQRCodeURL(id, url string) error

	InsertActionLog(entry *model.OrderActionLog) error
	ListActionLogs(orderID string) ([]model.OrderActionLog, error)
	CountTopups(orderID string) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(order *model.Order) error {
	return r.db.Create(order).Error
}

func (r *orderRepository) GetByID(id string) (*model.Order, error) {
	var order model.Order
	if err := r.db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByIDForUser(id, userID string) (*model.Order, error) {
	var order model.Order
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByOrderNo(orderNo string) (*model.Order, error) {
	var order model.Order
	if err := r.db.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByUser(userID string, offset, limit int) ([]model.Order, int64, error) {
	var (
		orders []model.Order
		total  int64
	)
	if err := r.db.Model(&model.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateAllocation 整体覆盖分配字段并推进到 ALLOCATED。
// 重复应用同一份供应商数据是幂等的
func (r *orderRepository) UpdateAllocation(id string, fields AllocationFields) error {
	updates := map[string]interface{}{
		"order_status":    model.OrderStatusAllocated,
		"iccid":           fields.Iccid,
		"esim_tran_no":    fields.EsimTranNo,
		"esim_status":     fields.EsimStatus,
		"smdp_status":     fields.SmdpStatus,
		"qr_code_url":     fields.QrCodeURL,
		"qr_code_data":    fields.QrCodeData,
		"activation_code": fields.ActivationCode,
		"smdp_address":    fields.SmdpAddress,
		"expiry_date":     fields.ExpiryDate,
		"error_message":   "",
	}
	return r.db.Model(&model.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *orderRepository) UpdatePayment(id, status, channel string, paidAt *time.Time, extra json.RawMessage) error {
	updates := map[string]interface{}{
		"payment_status": status,
	}
	if channel != "" {
		updates["channel"] = channel
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	if extra != nil {
		updates["extra_params"] = extra
	}
	return r.db.Model(&model.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *orderRepository) SetOrderNo(id, orderNo string) error {
	return r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("order_no", orderNo).Error
}

func (r *orderRepository) SetErrorMessage(id, msg string) error {
	return r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("error_message", msg).Error
}

func (r *orderRepository) UpdateCancelled(id, reason string) error {
	updates := map[string]interface{}{
		"order_status":  model.OrderStatusCancelled,
		"esim_status":   "CANCELLED",
		"cancel_reason": reason,
	}
	return r.db.Model(&model.Order{}).Where("id = ?", id).Updates(updates).Error
}

func (r *orderRepository) UpdateExpiry(id, expiry string) error {
	return r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("expiry_date", expiry).Error
}

func (r *orderRepository) MarkEmailSent(id string) error {
	return r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("email_sent", true).Error
}

func (r *orderRepository) UpdateQRCodeURL(id, url string) error {
	return r.db.Model(&model.Order{}).Where("id = ?", id).
		Update("qr_code_url", url).Error
}

func (r *orderRepository) InsertActionLog(entry *model.OrderActionLog) error {
	return r.db.Create(entry).Error
}

func (r *orderRepository) ListActionLogs(orderID string) ([]model.OrderActionLog, error) {
	var logs []model.OrderActionLog
	if err := r.db.Where("order_id = ?", orderID).
		Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// CountTopups 统计成功充值次数，计数逻辑在数据库函数里维护
func (r *orderRepository) CountTopups(orderID string) (int64, error) {
	var count int64
	if err := r.db.Raw("SELECT count_order_topups(?)", orderID).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

package model

import (
	"encoding/json"
	"time"

	baseModel "esim_store/pkg/model"
)

// Order 一次购买对应一张 eSIM
type Order struct {
	baseModel.BaseModel
	OrderNo     string `gorm:"uniqueIndex" json:"orderNo"` // 供应商订单号，下单成功后才有
	UserID      string `gorm:"type:uuid;index" json:"userId"`
	Email       string `json:"email"` // 通知邮箱，下单时填写
	PackageCode string `json:"packageCode"`
	PackageName string `json:"packageName"`

	// 订单主状态，只允许 PENDING -> ALLOCATED -> CANCELLED 单向推进
	OrderStatus string `gorm:"default:'PENDING';index" json:"orderStatus"`

	// 供应商侧子状态，跟随记录但不由本服务推进
	EsimStatus string `json:"esimStatus"` // GOT_RESOURCE / IN_USE / USED / CANCELLED
	SmdpStatus string `json:"smdpStatus"` // RELEASED / INSTALLED / ENABLED

	// 支付状态与订单生命周期分离；生命周期里的 PENDING 表示已支付待分配
	PaymentStatus string          `gorm:"default:'unpaid'" json:"paymentStatus"` // unpaid, paid, refunded
	Channel       string          `json:"channel"`                               // alipay, wechat
	AmountUSD     int64           `json:"amountUsd"`                             // 美元，放大 10000 倍
	ExtraParams   json.RawMessage `gorm:"type:jsonb" json:"-"`                   // 支付回调原始参数
	PaidAt        *time.Time      `json:"paidAt,omitempty"`

	// 分配结果，iccid 有值当且仅当订单已进入 ALLOCATED
	Iccid          string `gorm:"index" json:"iccid"`
	EsimTranNo     string `gorm:"index" json:"esimTranNo"`
	QrCodeURL      string `json:"qrCodeUrl"`
	QrCodeData     string `json:"qrCodeData"` // 即激活码内容
	ActivationCode string `json:"activationCode"`
	SmdpAddress    string `json:"smdpAddress"`
	ExpiryDate     string `json:"expiryDate"`

	CancelReason string `json:"cancelReason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	EmailSent    bool   `gorm:"default:false" json:"emailSent"`
}

// OrderActionLog 订单操作流水，只追加不修改。
// 每次充值尝试（无论成败）都落一行，成功行用于统计充值次数上限
type OrderActionLog struct {
	baseModel.BaseModel
	OrderID    string `gorm:"type:uuid;index" json:"orderId"`
	UserID     string `gorm:"type:uuid" json:"userId"`
	ActionType string `json:"actionType"` // TOPUP

	TopupPackageCode   string `json:"topupPackageCode"`
	TopupTransactionID string `gorm:"uniqueIndex" json:"topupTransactionId"` // 每次尝试唯一

	PriceUSD   int64 `json:"priceUsd"`   // 美元，放大 10000 倍
	DataVolume int64 `json:"dataVolume"` // 字节
	Days       int   `json:"days"`

	Status string `gorm:"index" json:"status"` // SUCCESS / FAILED

	// 充值前后快照（JSON: totalVolume / totalDuration / expiredTime）
	PreviousState json.RawMessage `gorm:"type:jsonb" json:"previousState,omitempty"`
	NewState      json.RawMessage `gorm:"type:jsonb" json:"newState,omitempty"`

	ErrorMessage string          `json:"errorMessage,omitempty"`
	APIResponse  json.RawMessage `gorm:"type:jsonb" json:"-"` // 供应商原始响应
}

// TableName 指定表名
func (OrderActionLog) TableName() string {
	return "order_action_logs"
}

const (
	OrderStatusPending   = "PENDING"
	OrderStatusAllocated = "ALLOCATED"
	OrderStatusCancelled = "CANCELLED"

	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"

	ActionTypeTopup = "TOPUP"

	ActionStatusSuccess = "SUCCESS"
	ActionStatusFailed  = "FAILED"

	// 单个订单的充值次数上限（只统计成功的充值）
	MaxTopupsPerOrder = 10
)

// StateSnapshot 充值前后快照的结构
type StateSnapshot struct {
	TotalVolume   int64  `json:"totalVolume"`
	TotalDuration int    `json:"totalDuration"`
	ExpiredTime   string `json:"expiredTime"`
}

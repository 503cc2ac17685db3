package esimapi

import "encoding/json"

// eSIM 状态（供应商侧）
const (
	EsimStatusGotResource = "GOT_RESOURCE" // 已分配未安装
	EsimStatusInUse       = "IN_USE"
	EsimStatusUsed        = "USED"
	EsimStatusCancelled   = "CANCELLED"
)

// SM-DP+ 状态（供应商侧）
const (
	SmdpStatusReleased  = "RELEASED"
	SmdpStatusInstalled = "INSTALLED"
	SmdpStatusEnabled   = "ENABLED"
)

// 套餐列表查询类型
const (
	PackageTypeBase  = "BASE"
	PackageTypeTopUp = "TOPUP"
)

// envelope 供应商统一响应外壳
type envelope struct {
	Success   bool            `json:"success"`
	ErrorCode string          `json:"errorCode"`
	ErrorMsg  string          `json:"errorMsg"`
	Obj       json.RawMessage `json:"obj"`
}

// Profile 一张 eSIM 的分配结果
type Profile struct {
	Iccid          string `json:"iccid"`
	EsimTranNo     string `json:"esimTranNo"`
	EsimStatus     string `json:"esimStatus"`
	SmdpStatus     string `json:"smdpStatus"`
	QrCodeURL      string `json:"qrCodeUrl"`
	ActivationCode string `json:"ac"`
	SmdpAddress    string `json:"smdpAddress"`
	ExpiredTime    string `json:"expiredTime"`
}

// ProfileQuery 查询条件，orderNo / iccid / esimTranNo 三选一
type ProfileQuery struct {
	OrderNo    string `json:"orderNo,omitempty"`
	Iccid      string `json:"iccid,omitempty"`
	EsimTranNo string `json:"esimTranNo,omitempty"`
}

// Usage 单张 eSIM 的用量
type Usage struct {
	EsimTranNo     string `json:"esimTranNo"`
	TotalData      int64  `json:"totalData"` // 字节
	DataUsage      int64  `json:"dataUsage"` // 字节
	LastUpdateTime string `json:"lastUpdateTime"`
}

// TopUpRequest 充值请求。TransactionID 是每次尝试唯一的幂等键
type TopUpRequest struct {
	EsimTranNo    string `json:"esimTranNo,omitempty"`
	Iccid         string `json:"iccid,omitempty"`
	PackageCode   string `json:"packageCode"`
	TransactionID string `json:"transactionId"`
}

// TopUpResult 充值成功后供应商返回的最新总量
type TopUpResult struct {
	TotalVolume   int64  `json:"totalVolume"`   // 字节
	TotalDuration int    `json:"totalDuration"` // 天
	ExpiredTime   string `json:"expiredTime"`
	TransactionID string `json:"transactionId"`
	OrderUsage    int64  `json:"orderUsage"`

	// Raw 完整响应体，写入充值流水的 api_response 字段
	Raw json.RawMessage `json:"-"`
}

// Package 可购买/可充值的套餐
type Package struct {
	PackageCode         string            `json:"packageCode"`
	Name                string            `json:"name"`
	Slug                string            `json:"slug"`
	Price               int64             `json:"price"`  // 美元，放大 10000 倍
	Volume              int64             `json:"volume"` // 字节
	Duration            int               `json:"duration"`
	DurationUnit        string            `json:"durationUnit"`
	SupportTopUpType    int               `json:"supportTopUpType"`
	DataType            int               `json:"dataType"`
	LocationNetworkList []LocationNetwork `json:"locationNetworkList"`
}

// LocationNetwork 套餐覆盖的国家/地区及运营商
type LocationNetwork struct {
	LocationCode string `json:"locationCode"`
	LocationName string `json:"locationName"`
	OperatorList []struct {
		OperatorName string `json:"operatorName"`
		NetworkType  string `json:"networkType"`
	} `json:"operatorList"`
}

// PackageListRequest 套餐列表查询
type PackageListRequest struct {
	Type         string `json:"type,omitempty"` // BASE / TOPUP
	PackageCode  string `json:"packageCode,omitempty"`
	Iccid        string `json:"iccid,omitempty"`
	LocationCode string `json:"locationCode,omitempty"`
}

// orderRequest 下单请求（支付完成后提交给供应商）
type orderRequest struct {
	TransactionID   string        `json:"transactionId"`
	PackageInfoList []packageInfo `json:"packageInfoList"`
}

type packageInfo struct {
	PackageCode string `json:"packageCode"`
	Count       int    `json:"count"`
}

package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 订单模块错误 200xx
	ErrOrderNotFound         = 20001
	ErrOrderNotActivated     = 20002 // eSIM 尚未分配，不能充值/取消
	ErrOrderNotCancellable   = 20003
	ErrOrderAlreadyCancelled = 20004
	ErrEsimInUse             = 20005 // 卡已安装或已使用，供应商侧不允许取消

	// 充值模块错误 300xx
	ErrTopupLimitReached = 30001
	ErrTopupFailed       = 30002

	// 供应商/外部服务错误 400xx
	ErrProviderFailed      = 40001
	ErrProviderUnreachable = 40002
	ErrPaymentFailed       = 40003

	// 套餐模块错误 600xx
	ErrPackageNotFound = 60001
	ErrSyncInProgress  = 60002

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
	ErrTokenInvalid    = 50004
	ErrNoPermission    = 50005
)

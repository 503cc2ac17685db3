package esimapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"esim_store/internal/pkg/config"
	"esim_store/pkg/metrics"

	"github.com/google/uuid"
)

// ProviderError 供应商返回 success=false 时的业务错误。
// 与网络/非 2xx 错误区分开，调用方需要分别处理这两类失败
type ProviderError struct {
	Code    string
	Message string
	Raw     json.RawMessage
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// IsProviderError 判断是否为供应商业务错误
func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Client eSIM 供应商 API 客户端。
// 所有接口均为 POST JSON，通过静态 access code 鉴权，
// 每个请求携带唯一的 RT-RequestID 便于和供应商对账。
// 本层不做重试，失败直接抛给调用方
type Client struct {
	baseURL    string
	accessCode string
	httpClient *http.Client
	metrics    *metrics.MetricsCollector
}

// NewClient 创建供应商客户端
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		accessCode: cfg.AccessCode,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetMetrics 注入指标收集器（可选）
func (c *Client) SetMetrics(m *metrics.MetricsCollector) {
	c.metrics = m
}

// OrderProfiles 提交一笔 eSIM 订单，返回供应商订单号。
// transactionID 用作供应商侧的幂等键，重复提交同一笔订单不会重复扣费
func (c *Client) OrderProfiles(ctx context.Context, transactionID, packageCode string, count int) (string, error) {
	req := orderRequest{
		TransactionID: transactionID,
		PackageInfoList: []packageInfo{
			{PackageCode: packageCode, Count: count},
		},
	}

	var obj struct {
		OrderNo string `json:"orderNo"`
	}
	if _, err := c.post(ctx, "/esim/order", "order", req, &obj); err != nil {
		return "", err
	}
	return obj.OrderNo, nil
}

// QueryProfiles 查询订单下的 eSIM 分配结果。
// 供应商还未分配时返回空列表，不算错误
func (c *Client) QueryProfiles(ctx context.Context, q ProfileQuery) ([]Profile, error) {
	var obj struct {
		EsimList []Profile `json:"esimList"`
	}
	if _, err := c.post(ctx, "/esim/query", "query", q, &obj); err != nil {
		return nil, err
	}
	return obj.EsimList, nil
}

// QueryUsage 批量查询 eSIM 用量
func (c *Client) QueryUsage(ctx context.Context, esimTranNos []string) ([]Usage, error) {
	req := map[string]interface{}{"esimTranNoList": esimTranNos}

	var obj struct {
		EsimUsageList []Usage `json:"esimUsageList"`
	}
	if _, err := c.post(ctx, "/esim/usage/query", "usage", req, &obj); err != nil {
		return nil, err
	}
	return obj.EsimUsageList, nil
}

// Cancel 取消一张 eSIM，实际的资源释放由供应商执行
func (c *Client) Cancel(ctx context.Context, esimTranNo string) error {
	req := map[string]interface{}{"esimTranNo": esimTranNo}
	_, err := c.post(ctx, "/esim/cancel", "cancel", req, nil)
	return err
}

// TopUp 为已分配的 eSIM 充值，成功时返回充值后的最新总量
func (c *Client) TopUp(ctx context.Context, req TopUpRequest) (*TopUpResult, error) {
	var obj TopUpResult
	raw, err := c.post(ctx, "/esim/topup", "topup", req, &obj)
	if err != nil {
		return nil, err
	}
	obj.Raw = raw
	return &obj, nil
}

// ListPackages 查询可购买/可充值的套餐列表
func (c *Client) ListPackages(ctx context.Context, req PackageListRequest) ([]Package, error) {
	var obj struct {
		PackageList []Package `json:"packageList"`
	}
	if _, err := c.post(ctx, "/package/list", "package_list", req, &obj); err != nil {
		return nil, err
	}
	return obj.PackageList, nil
}

// post 发送请求并解包统一响应外壳，返回完整响应体
func (c *Client) post(ctx context.Context, path, operation string, payload interface{}, out interface{}) (json.RawMessage, error) {
	start := time.Now()
	raw, err := c.doPost(ctx, path, payload, out)
	if c.metrics != nil {
		result := "ok"
		if err != nil {
			if _, ok := IsProviderError(err); ok {
				result = "provider_error"
			} else {
				result = "transport_error"
			}
		}
		c.metrics.ObserveProviderCall(operation, result, time.Since(start))
	}
	return raw, err
}

func (c *Client) doPost(ctx context.Context, path string, payload interface{}, out interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("RT-AccessCode", c.accessCode)
	req.Header.Set("RT-RequestID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d for %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}

	if !env.Success {
		return nil, &ProviderError{
			Code:    env.ErrorCode,
			Message: env.ErrorMsg,
			Raw:     respBody,
		}
	}

	if out != nil && len(env.Obj) > 0 {
		if err := json.Unmarshal(env.Obj, out); err != nil {
			return nil, fmt.Errorf("decode provider obj: %w", err)
		}
	}

	return respBody, nil
}

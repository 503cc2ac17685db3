package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"esim_store/internal/pkg/config"
	"esim_store/pkg/logger"

	"go.uber.org/zap"
)

// Fetcher 拉取当日美元汇率
type Fetcher interface {
	FetchRate(ctx context.Context) (float64, error)
}

// Cache 进程内单槽位汇率缓存。
// 命中且未过期直接返回；过期则重新拉取；
// 拉取失败返回兜底汇率且不写缓存，下次调用会重试拉取。
// 汇率只用于展示换算，精度要求低，并发刷新时后写者覆盖即可
type Cache struct {
	mu       sync.Mutex
	rate     float64
	fetched  time.Time
	ttl      time.Duration
	fallback float64
	fetcher  Fetcher
	now      func() time.Time
}

// NewCache 创建汇率缓存。now 可注入，便于测试控制时间
func NewCache(fetcher Fetcher, ttl time.Duration, fallback float64, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:      ttl,
		fallback: fallback,
		fetcher:  fetcher,
		now:      now,
	}
}

// NewCacheFromConfig 根据配置创建汇率缓存
func NewCacheFromConfig(cfg config.RatesConfig) *Cache {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	fallback := cfg.FallbackRate
	if fallback <= 0 {
		fallback = 12800
	}
	return NewCache(NewHTTPFetcher(cfg.Endpoint), ttl, fallback, time.Now)
}

// Rate 返回当前美元兑本币汇率
func (c *Cache) Rate(ctx context.Context) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		return c.rate
	}

	rate, err := c.fetcher.FetchRate(ctx)
	if err != nil || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		// 拉取失败不写缓存，保证下一次调用会重试
		if logger.Log != nil {
			logger.Log.Warn("exchange rate fetch failed, using fallback",
				zap.Float64("fallback", c.fallback),
				zap.Error(err),
			)
		}
		return c.fallback
	}

	c.rate = rate
	c.fetched = c.now()
	return rate
}

// HTTPFetcher 调用外部汇率接口
type HTTPFetcher struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPFetcher 创建 HTTP 汇率拉取器
func NewHTTPFetcher(endpoint string) *HTTPFetcher {
	return &HTTPFetcher{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchRate 拉取当日美元汇率
func (f *HTTPFetcher) FetchRate(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var data struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}

	rate, ok := data.Rates["IDR"]
	if !ok {
		return 0, fmt.Errorf("rate response missing IDR")
	}
	return rate, nil
}

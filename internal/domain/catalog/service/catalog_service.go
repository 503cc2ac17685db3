package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"esim_store/internal/domain/catalog/model"
	"esim_store/internal/domain/catalog/repository"
	"esim_store/internal/pkg/esimapi"
	"esim_store/internal/pkg/rates"
	"esim_store/pkg/logger"
	"esim_store/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrSyncInProgress  = errors.New("price sync already in progress")
)

const (
	listCacheTTL    = 5 * time.Minute
	listCachePrefix = "catalog:packages:"
	syncLockKey     = "catalog:sync:lock"
	syncLockTTL     = 10 * time.Minute
)

// PackageView 套餐列表项，带按当前汇率折算的本币价格
type PackageView struct {
	PackageCode  string  `json:"packageCode"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	PriceUSD     float64 `json:"priceUsd"`
	PriceIDR     int64   `json:"priceIdr"`
	Volume       int64   `json:"volume"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"durationUnit"`
	LocationCode string  `json:"locationCode"`
	LocationName string  `json:"locationName"`
}

// SyncResult 一次价格同步的汇总
type SyncResult struct {
	SyncID       string `json:"syncId"`
	Status       string `json:"status"`
	TotalCount   int    `json:"totalCount"`
	UpdatedCount int    `json:"updatedCount"`
	FailedCount  int    `json:"failedCount"`
}

// ProviderCatalog 目录同步依赖的供应商操作
type ProviderCatalog interface {
	ListPackages(ctx context.Context, req esimapi.PackageListRequest) ([]esimapi.Package, error)
}

type CatalogService interface {
	ListPackages(ctx context.Context, locationCode string) ([]PackageView, error)
	GetTopupPackages(ctx context.Context, iccid string) ([]PackageView, error)
	SyncPrices(ctx context.Context, triggeredBy string) (*SyncResult, error)

	// PackageDelta / PackageInfo 供订单模块使用
	PackageDelta(ctx context.Context, packageCode string) (volume int64, days int, priceUSD int64, err error)
	PackageInfo(ctx context.Context, packageCode string) (name string, priceUSD int64, err error)
}

type catalogService struct {
	repo     repository.PackageRepository
	provider ProviderCatalog
	rates    *rates.Cache
	rdb      *redis.Client             // 列表缓存 + 同步互斥，可为 nil
	metrics  *metrics.MetricsCollector // 可为 nil
}

func NewCatalogService(repo repository.PackageRepository, provider ProviderCatalog, rateCache *rates.Cache, rdb *redis.Client, m *metrics.MetricsCollector) CatalogService {
	return &catalogService{
		repo:     repo,
		provider: provider,
		rates:    rateCache,
		rdb:      rdb,
		metrics:  m,
	}
}

// ListPackages 套餐列表。redis 缓存 5 分钟，缓存失效走 DB。
// 本币价格按当前汇率实时折算，不进缓存键
func (s *catalogService) ListPackages(ctx context.Context, locationCode string) ([]PackageView, error) {
	cacheKey := listCachePrefix + locationCode

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var pkgs []model.EsimPackage
			if json.Unmarshal([]byte(cached), &pkgs) == nil {
				return s.toViews(ctx, pkgs), nil
			}
		}
	}

	pkgs, err := s.repo.List(locationCode)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(pkgs); err == nil {
			s.rdb.Set(ctx, cacheKey, data, listCacheTTL)
		}
	}

	return s.toViews(ctx, pkgs), nil
}

// GetTopupPackages 查一张卡可充值的套餐，直接代理供应商
func (s *catalogService) GetTopupPackages(ctx context.Context, iccid string) ([]PackageView, error) {
	remote, err := s.provider.ListPackages(ctx, esimapi.PackageListRequest{
		Type:  esimapi.PackageTypeTopUp,
		Iccid: iccid,
	})
	if err != nil {
		return nil, err
	}

	rate := s.rates.Rate(ctx)
	views := make([]PackageView, 0, len(remote))
	for _, p := range remote {
		views = append(views, PackageView{
			PackageCode:  p.PackageCode,
			Name:         p.Name,
			Slug:         p.Slug,
			PriceUSD:     float64(p.Price) / 10000,
			PriceIDR:     displayPrice(p.Price, rate),
			Volume:       p.Volume,
			Duration:     p.Duration,
			DurationUnit: p.DurationUnit,
		})
	}
	return views, nil
}

// SyncPrices 管理员触发的全量价格同步。redis 锁防止并发执行；
// 同步记录先落 running 行，结束时按结果收尾
func (s *catalogService) SyncPrices(ctx context.Context, triggeredBy string) (*SyncResult, error) {
	if s.rdb != nil {
		ok, err := s.rdb.SetNX(ctx, syncLockKey, 1, syncLockTTL).Result()
		if err == nil && !ok {
			return nil, ErrSyncInProgress
		}
		defer s.rdb.Del(context.Background(), syncLockKey)
	}

	entry := &model.PriceSyncLog{
		Status:      model.SyncStatusRunning,
		TriggeredBy: triggeredBy,
	}
	if err := s.repo.CreateSyncLog(entry); err != nil {
		return nil, err
	}

	remote, err := s.provider.ListPackages(ctx, esimapi.PackageListRequest{Type: esimapi.PackageTypeBase})
	if err != nil {
		summary := fmt.Sprintf("provider list failed: %v", err)
		if finishErr := s.repo.FinishSyncLog(entry.ID, model.SyncStatusFailed, 0, 0, 0, summary); finishErr != nil {
			logger.Log.Error("failed to finish sync log", zap.String("sync_id", entry.ID), zap.Error(finishErr))
		}
		s.observeSync(model.SyncStatusFailed)
		return nil, err
	}

	var updated, failed int
	for _, p := range remote {
		pkg := &model.EsimPackage{
			PackageCode:      p.PackageCode,
			Name:             p.Name,
			Slug:             p.Slug,
			PriceUSD:         p.Price,
			Volume:           p.Volume,
			Duration:         p.Duration,
			DurationUnit:     p.DurationUnit,
			SupportTopUpType: p.SupportTopUpType,
			DataType:         p.DataType,
			Active:           true,
		}
		if len(p.LocationNetworkList) > 0 {
			pkg.LocationCode = p.LocationNetworkList[0].LocationCode
			pkg.LocationName = p.LocationNetworkList[0].LocationName
		}
		if err := s.repo.Upsert(pkg); err != nil {
			logger.Log.Warn("package upsert failed during sync",
				zap.String("package_code", p.PackageCode), zap.Error(err))
			failed++
			continue
		}
		updated++
	}

	status := model.SyncStatusSuccess
	switch {
	case updated == 0 && failed > 0:
		status = model.SyncStatusFailed
	case failed > 0:
		status = model.SyncStatusPartial
	}

	summary := fmt.Sprintf("synced %d/%d packages", updated, len(remote))
	if err := s.repo.FinishSyncLog(entry.ID, status, len(remote), updated, failed, summary); err != nil {
		logger.Log.Error("failed to finish sync log", zap.String("sync_id", entry.ID), zap.Error(err))
	}
	s.observeSync(status)

	// 目录变了，列表缓存全部作废
	s.invalidateListCache(ctx)

	return &SyncResult{
		SyncID:       entry.ID,
		Status:       status,
		TotalCount:   len(remote),
		UpdatedCount: updated,
		FailedCount:  failed,
	}, nil
}

func (s *catalogService) PackageDelta(ctx context.Context, packageCode string) (int64, int, int64, error) {
	pkg, err := s.repo.GetByCode(packageCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, 0, 0, ErrPackageNotFound
		}
		return 0, 0, 0, err
	}
	return pkg.Volume, pkg.Duration, pkg.PriceUSD, nil
}

func (s *catalogService) PackageInfo(ctx context.Context, packageCode string) (string, int64, error) {
	pkg, err := s.repo.GetByCode(packageCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, ErrPackageNotFound
		}
		return "", 0, err
	}
	return pkg.Name, pkg.PriceUSD, nil
}

func (s *catalogService) toViews(ctx context.Context, pkgs []model.EsimPackage) []PackageView {
	rate := s.rates.Rate(ctx)
	views := make([]PackageView, 0, len(pkgs))
	for _, p := range pkgs {
		views = append(views, PackageView{
			PackageCode:  p.PackageCode,
			Name:         p.Name,
			Slug:         p.Slug,
			PriceUSD:     float64(p.PriceUSD) / 10000,
			PriceIDR:     displayPrice(p.PriceUSD, rate),
			Volume:       p.Volume,
			Duration:     p.Duration,
			DurationUnit: p.DurationUnit,
			LocationCode: p.LocationCode,
			LocationName: p.LocationName,
		})
	}
	return views
}

func (s *catalogService) observeSync(status string) {
	if s.metrics != nil {
		s.metrics.ObservePriceSync(status)
	}
}

func (s *catalogService) invalidateListCache(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	iter := s.rdb.Scan(ctx, 0, listCachePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
}

// displayPrice 美元（×10000）按汇率折算成整数本币价格
func displayPrice(priceUSD int64, rate float64) int64 {
	return int64(math.Round(float64(priceUSD) / 10000 * rate))
}

package model

import (
	basemodel "esim_store/pkg/model"
)

// EsimPackage 本地套餐表，由价格同步任务从供应商目录落库
type EsimPackage struct {
	basemodel.BaseModel
	PackageCode  string `gorm:"uniqueIndex;size:64;not null" json:"packageCode"`
	Name         string `gorm:"size:255;not null" json:"name"`
	Slug         string `gorm:"size:255" json:"slug"`
	PriceUSD     int64  `gorm:"not null" json:"priceUsd"` // 美元，放大 10000 倍
	Volume       int64  `gorm:"not null" json:"volume"`   // 字节
	Duration     int    `gorm:"not null" json:"duration"`
	DurationUnit string `gorm:"size:16" json:"durationUnit"`
	LocationCode string `gorm:"index;size:32" json:"locationCode"`
	LocationName string `gorm:"size:255" json:"locationName"`

	SupportTopUpType int  `json:"supportTopUpType"`
	DataType         int  `json:"dataType"`
	Active           bool `gorm:"default:true" json:"active"`
}

func (EsimPackage) TableName() string {
	return "esim_packages"
}

// 价格同步结果
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)

// PriceSyncLog 一次价格同步的记录，只追加不修改（running 行结束时收尾一次）
type PriceSyncLog struct {
	basemodel.BaseModel
	Status       string `gorm:"size:16;not null" json:"status"`
	TotalCount   int    `json:"totalCount"`
	UpdatedCount int    `json:"updatedCount"`
	FailedCount  int    `json:"failedCount"`
	Summary      string `gorm:"type:text" json:"summary"`
	TriggeredBy  string `gorm:"size:36" json:"triggeredBy"`
}

func (PriceSyncLog) TableName() string {
	return "price_sync_logs"
}

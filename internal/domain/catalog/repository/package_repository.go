package repository

import (
	"esim_store/internal/domain/catalog/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PackageRepository interface {
	GetByCode(packageCode string) (*model.EsimPackage, error)
	List(locationCode string) ([]model.EsimPackage, error)
	Upsert(pkg *model.EsimPackage) error

	CreateSyncLog(entry *model.PriceSyncLog) error
	FinishSyncLog(id, status string, total, updated, failed int, summary string) error
}

type packageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func (r *packageRepository) GetByCode(packageCode string) (*model.EsimPackage, error) {
	var pkg model.EsimPackage
	if err := r.db.Where("package_code = ?", packageCode).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (r *packageRepository) List(locationCode string) ([]model.EsimPackage, error) {
	query := r.db.Where("active = ?", true)
	if locationCode != "" {
		query = query.Where("location_code = ?", locationCode)
	}
	var pkgs []model.EsimPackage
	if err := query.Order("price_usd ASC").Find(&pkgs).Error; err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Upsert 按 package_code 冲突更新，同步任务重复执行是幂等的
func (r *packageRepository) Upsert(pkg *model.EsimPackage) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "package_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "slug", "price_usd", "volume", "duration", "duration_unit",
			"location_code", "location_name", "support_top_up_type", "data_type",
			"active", "updated_at",
		}),
	}).Create(pkg).Error
}

func (r *packageRepository) CreateSyncLog(entry *model.PriceSyncLog) error {
	return r.db.Create(entry).Error
}

func (r *packageRepository) FinishSyncLog(id, status string, total, updated, failed int, summary string) error {
	return r.db.Model(&model.PriceSyncLog{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"total_count":   total,
		"updated_count": updated,
		"failed_count":  failed,
		"summary":       summary,
	}).Error
}

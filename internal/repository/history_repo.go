package repository

import (
	"context"
	"errors"
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
	"gorm.io/gorm"
)

type HistoryListParams struct {
	Topic    string
	Style    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// HistoryRepository records completed generations for later browsing.
// Recording is best-effort from the caller's perspective: a write failure
// never fails the generation itself.
type HistoryRepository interface {
	SaveGeneration(ctx context.Context, record *domain.GenerationRecord) error
	GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error)
	List(ctx context.Context, params HistoryListParams) ([]domain.GenerationRecord, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) SaveGeneration(ctx context.Context, record *domain.GenerationRecord) error {
	model := recordModelFromDomain(record)
	if model == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*record = *recordModelToDomain(model)
	return nil
}

func (r *GormHistoryRepo) GetByJobID(ctx context.Context, jobID string) (*domain.GenerationRecord, error) {
	var model GenerationRecordModel
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormHistoryRepo) List(ctx context.Context, params HistoryListParams) ([]domain.GenerationRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&GenerationRecordModel{})

	if params.Topic != "" {
		query = query.Where("topic ILIKE ?", "%"+params.Topic+"%")
	}
	if params.Style != "" {
		query = query.Where("style = ?", params.Style)
	}
	if params.From != nil {
		query = query.Where("completed_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("completed_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	var models []GenerationRecordModel
	err := query.
		Order("completed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.GenerationRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, total, nil
}

func (r *GormHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("completed_at < ?", cutoff).
		Delete(&GenerationRecordModel{})
	return result.RowsAffected, result.Error
}

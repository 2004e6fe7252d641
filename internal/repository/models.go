package repository

import (
	"time"

	"github.com/infogenhq/infogen-engine/internal/domain"
)

// GenerationRecordModel is the persistence model for the
// generation_records table.
type GenerationRecordModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	JobID       string `gorm:"type:uuid;not null;index"`
	Topic       string `gorm:"type:varchar(500);not null"`
	Style       string `gorm:"type:varchar(50)"`
	Title       string `gorm:"type:varchar(255)"`
	ImageURL    string `gorm:"type:text;not null"`
	ImageWidth  int    `gorm:"not null"`
	ImageHeight int    `gorm:"not null"`
	CompletedAt time.Time
	CreatedAt   time.Time
}

func (GenerationRecordModel) TableName() string {
	return "generation_records"
}

func recordModelFromDomain(r *domain.GenerationRecord) *GenerationRecordModel {
	if r == nil {
		return nil
	}

	return &GenerationRecordModel{
		ID:          r.ID,
		JobID:       r.JobID,
		Topic:       r.Topic,
		Style:       r.Style,
		Title:       r.Title,
		ImageURL:    r.ImageURL,
		ImageWidth:  r.ImageWidth,
		ImageHeight: r.ImageHeight,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func recordModelToDomain(m *GenerationRecordModel) *domain.GenerationRecord {
	if m == nil {
		return nil
	}

	return &domain.GenerationRecord{
		ID:          m.ID,
		JobID:       m.JobID,
		Topic:       m.Topic,
		Style:       m.Style,
		Title:       m.Title,
		ImageURL:    m.ImageURL,
		ImageWidth:  m.ImageWidth,
		ImageHeight: m.ImageHeight,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
	}
}

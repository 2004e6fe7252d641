package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/infogenhq/infogen-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_generation_records",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.GenerationRecordModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_generation_records_completed_at ON generation_records (completed_at DESC)`,
					`CREATE INDEX IF NOT EXISTS idx_generation_records_topic ON generation_records (topic)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.GenerationRecordModel{})
			},
		},
	})

	return m.Migrate()
}

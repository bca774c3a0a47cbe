package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSingleCurrentMovie   = "2024-06-01_single_current_movie"
	migrationClearBlankReviewText = "2024-06-08_clear_blank_review_text"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSingleCurrentMovie, apply: keepNewestCurrentMovie},
		{name: migrationClearBlankReviewText, apply: clearBlankReviewText},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// keepNewestCurrentMovie repairs data written before the current flag was
// maintained transactionally: only the most recently added current movie keeps it.
func keepNewestCurrentMovie(db *gorm.DB) error {
	var current []club.Movie
	if err := db.Where("is_current = ?", true).Order("created_at DESC").Find(&current).Error; err != nil {
		return err
	}
	if len(current) <= 1 {
		return nil
	}
	return db.Model(&club.Movie{}).
		Where("is_current = ? AND id <> ?", true, current[0].ID).
		Update("is_current", false).Error
}

func clearBlankReviewText(db *gorm.DB) error {
	return db.Model(&club.Rating{}).
		Where("review IS NOT NULL AND TRIM(review) = ''").
		Update("review", nil).Error
}

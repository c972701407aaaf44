package database

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/propforge/docsync/internal/docsync"
)

const migrationNormalizeProviderTags = "2026-05-12_normalize_provider_tags"

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
		{name: migrationNormalizeProviderTags, apply: normalizeProviderTags},
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
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Early deployments stored provider tags with arbitrary casing; lookups are
// exact-match, so normalize everything to the lowercase canonical tags.
func normalizeProviderTags(db *gorm.DB) error {
	for _, provider := range []docsync.Provider{
		docsync.ProviderOneDrive,
		docsync.ProviderSharePoint,
		docsync.ProviderGoogleDrive,
	} {
		tag := provider.String()
		err := db.Model(&docsync.SyncState{}).
			Where("provider <> ? AND LOWER(provider) = ?", tag, strings.ToLower(tag)).
			Update("provider", tag).Error
		if err != nil {
			return err
		}
	}
	return nil
}

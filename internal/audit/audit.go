// Package audit persists the append-only action log written by the sync
// service. Entries are best-effort: the service never fails an operation
// because an audit write failed.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/propforge/docsync/internal/docsync"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// Log is one immutable audit entry.
type Log struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null"`
	Action           string `gorm:"column:action;size:64;not null;index"`
	EntityType       string `gorm:"column:entity_type;size:64;not null"`
	EntityID         string `gorm:"column:entity_id;size:190;not null;index"`
	UserID           string `gorm:"column:user_id;size:190;not null;default:''"`
	MetadataJSON     string `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Log) TableName() string {
	return "audit_logs"
}

// RecorderConfig bundles the recorder dependencies.
type RecorderConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider docsync.IDProvider
}

// Recorder writes audit entries to the database.
type Recorder struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider docsync.IDProvider
}

// NewRecorder validates dependencies and constructs a Recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider}, nil
}

// Record persists one audit entry.
func (r *Recorder) Record(ctx context.Context, entry docsync.AuditEntry) error {
	entryID, err := r.idProvider.NewID()
	if err != nil {
		return err
	}

	metadataJSON := ""
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		metadataJSON = string(encoded)
	}

	record := Log{
		ID:               entryID,
		Action:           entry.Action,
		EntityType:       entry.EntityType,
		EntityID:         entry.EntityID,
		UserID:           entry.UserID,
		MetadataJSON:     metadataJSON,
		CreatedAtSeconds: r.clock().UTC().Unix(),
	}
	return r.db.WithContext(ctx).Create(&record).Error
}

// ForEntity returns the audit trail for one entity, newest first.
func (r *Recorder) ForEntity(ctx context.Context, entityID string, limit int) ([]Log, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []Log
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at_s DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

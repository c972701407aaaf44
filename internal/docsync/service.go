// Package docsync keeps locally authored documents consistent with copies
// held by cloud file providers: divergence detection, conflict records,
// version history, and the per-document sync state machine.
package docsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/propforge/docsync/internal/provider"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingProviders  = errors.New("provider registry is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues identifiers for conflicts, versions, and audit entries.
type IDProvider interface {
	NewID() (string, error)
}

// AuditEntry is one record for the audit sink. Metadata is free-form.
type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Metadata   map[string]any
}

// AuditRecorder is the audit sink collaborator. Write failures must never
// abort the primary operation; the service logs and swallows them.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// StatusEvent describes one sync status transition.
type StatusEvent struct {
	DocumentID string
	CompanyID  string
	Provider   string
	Status     SyncStatus
	At         time.Time
}

// EventPublisher receives status transitions for realtime delivery.
// Publishing must not block.
type EventPublisher interface {
	PublishStatus(event StatusEvent)
}

// ServiceConfig bundles the collaborators for the sync service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Providers  *provider.Registry
	Audit      AuditRecorder
	Events     EventPublisher
	Logger     *zap.Logger
}

// Service orchestrates webhook- and user-triggered synchronization.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	providers  *provider.Registry
	audit      AuditRecorder
	events     EventPublisher
	logger     *zap.Logger
	locks      *documentLocks
}

// NewService validates dependencies and constructs the sync service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Providers == nil {
		return nil, newServiceError(opServiceNew, "missing_providers", errMissingProviders)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		providers:  cfg.Providers,
		audit:      cfg.Audit,
		events:     cfg.Events,
		logger:     logger,
		locks:      newDocumentLocks(),
	}, nil
}

// recordAudit writes to the audit sink; failures are logged, never propagated.
func (s *Service) recordAudit(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.loggerOrDefault().Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}
}

func (s *Service) publishStatus(state *SyncState) {
	if s.events == nil || state == nil {
		return
	}
	s.events.PublishStatus(StatusEvent{
		DocumentID: state.DocumentID,
		CompanyID:  state.CompanyID,
		Provider:   state.Provider,
		Status:     SyncStatus(state.SyncStatus),
		At:         s.clock().UTC(),
	})
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("docsync service error", attrs...)
}

package docsync

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("docsync: invalid document id")
	// ErrInvalidCompanyID indicates that a company identifier is empty or exceeds storage bounds.
	ErrInvalidCompanyID = errors.New("docsync: invalid company id")
	// ErrUnknownProvider indicates a cloud provider tag outside the supported set.
	ErrUnknownProvider = errors.New("docsync: unknown cloud provider")
	// ErrUnknownResolution indicates a conflict resolution value outside the supported set.
	ErrUnknownResolution = errors.New("docsync: unknown resolution")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// CompanyID represents a validated tenant identifier.
type CompanyID string

// NewCompanyID validates raw input and returns a CompanyID.
func NewCompanyID(rawInput string) (CompanyID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCompanyID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCompanyID, maxIdentifierLength)
	}
	return CompanyID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CompanyID) String() string {
	return string(id)
}

// Provider enumerates the supported cloud file providers.
type Provider string

const (
	ProviderOneDrive    Provider = "onedrive"
	ProviderSharePoint  Provider = "sharepoint"
	ProviderGoogleDrive Provider = "google_drive"
)

// ParseProvider validates a raw provider tag.
func ParseProvider(rawInput string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ProviderOneDrive:
		return ProviderOneDrive, nil
	case ProviderSharePoint:
		return ProviderSharePoint, nil
	case ProviderGoogleDrive:
		return ProviderGoogleDrive, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, rawInput)
	}
}

// String returns the provider tag.
func (p Provider) String() string {
	return string(p)
}

// SyncStatus enumerates the per-document sync state machine states.
type SyncStatus string

const (
	StatusIdle     SyncStatus = "idle"
	StatusSyncing  SyncStatus = "syncing"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
)

// Resolution enumerates conflict resolution outcomes.
type Resolution string

const (
	ResolutionPending   Resolution = "pending"
	ResolutionKeepLocal Resolution = "keep_local"
	ResolutionKeepCloud Resolution = "keep_cloud"
	ResolutionMerged    Resolution = "merged"
)

// ParseResolution validates a raw resolution value. "pending" parses
// successfully; rejecting it as a resolution target is the resolver's job.
func ParseResolution(rawInput string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(rawInput))) {
	case ResolutionPending:
		return ResolutionPending, nil
	case ResolutionKeepLocal:
		return ResolutionKeepLocal, nil
	case ResolutionKeepCloud:
		return ResolutionKeepCloud, nil
	case ResolutionMerged:
		return ResolutionMerged, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResolution, rawInput)
	}
}

// String returns the resolution value.
func (r Resolution) String() string {
	return string(r)
}

// SyncState models one (document, provider) synchronization binding.
type SyncState struct {
	ID                     string `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID             string `gorm:"column:document_id;size:190;not null;uniqueIndex:idx_sync_state_doc_provider,priority:1"`
	Provider               string `gorm:"column:provider;size:32;not null;uniqueIndex:idx_sync_state_doc_provider,priority:2;index:idx_sync_state_provider_file,priority:1"`
	CompanyID              string `gorm:"column:company_id;size:190;not null;index"`
	CloudFileID            string `gorm:"column:cloud_file_id;size:190;not null;index:idx_sync_state_provider_file,priority:2"`
	SyncStatus             string `gorm:"column:sync_status;size:16;not null;default:'idle'"`
	LastSyncAtSeconds      int64  `gorm:"column:last_sync_at_s;not null;default:0"`
	LastLocalEditAtSeconds int64  `gorm:"column:last_local_edit_at_s;not null;default:0"`
	LastCloudEditAtSeconds int64  `gorm:"column:last_cloud_edit_at_s;not null;default:0"`
	MetadataJSON           string `gorm:"column:metadata_json;type:text;not null;default:''"`
	CreatedAtSeconds       int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds       int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SyncState) TableName() string {
	return "document_sync_state"
}

// Conflict models a detected divergence awaiting a human decision.
type Conflict struct {
	ID                    string  `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID            string  `gorm:"column:document_id;size:190;not null;index:idx_conflicts_doc_resolution,priority:1"`
	SectionID             *string `gorm:"column:section_id;size:190"`
	CompanyID             string  `gorm:"column:company_id;size:190;not null;index"`
	LocalContent          string  `gorm:"column:local_content;type:text;not null"`
	LocalUpdatedAtSeconds int64   `gorm:"column:local_updated_at_s;not null"`
	CloudContent          string  `gorm:"column:cloud_content;type:text;not null"`
	CloudUpdatedAtSeconds int64   `gorm:"column:cloud_updated_at_s;not null"`
	CloudSource           string  `gorm:"column:cloud_source;size:32;not null;default:''"`
	Resolution            string  `gorm:"column:resolution;size:16;not null;default:'pending';index:idx_conflicts_doc_resolution,priority:2"`
	ResolvedBy            *string `gorm:"column:resolved_by;size:190"`
	ResolvedAtSeconds     *int64  `gorm:"column:resolved_at_s"`
	CreatedAtSeconds      int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Conflict) TableName() string {
	return "sync_conflicts"
}

// Version is an append-only, immutable document version log entry.
type Version struct {
	ID               string  `gorm:"column:id;primaryKey;size:190;not null"`
	DocumentID       string  `gorm:"column:document_id;size:190;not null;uniqueIndex:idx_versions_doc_number,priority:1"`
	CompanyID        string  `gorm:"column:company_id;size:190;not null;index"`
	VersionNumber    int64   `gorm:"column:version_number;not null;uniqueIndex:idx_versions_doc_number,priority:2"`
	Source           string  `gorm:"column:source;size:32;not null"`
	SnapshotJSON     string  `gorm:"column:snapshot_json;type:text;not null"`
	DiffSummaryJSON  *string `gorm:"column:diff_summary_json;type:text"`
	CreatedBy        string  `gorm:"column:created_by;size:190;not null;default:''"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "document_versions"
}

// Document holds the authoritative local content for a document. The webhook
// path overwrites it on a clean cloud-side pull.
type Document struct {
	DocumentID       string `gorm:"column:document_id;primaryKey;size:190;not null"`
	CompanyID        string `gorm:"column:company_id;size:190;not null;index"`
	Content          string `gorm:"column:content;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "document_contents"
}

package docsync

import (
	"errors"
	"fmt"
)

// Failure taxonomy surfaced to callers. All are matchable with errors.Is
// through ServiceError unwrapping.
var (
	// ErrNotInitialized indicates no sync state exists for the document and provider.
	ErrNotInitialized = errors.New("docsync: sync not initialized")
	// ErrAlreadyInitialized indicates a sync state already exists for the document and provider.
	ErrAlreadyInitialized = errors.New("docsync: sync already initialized")
	// ErrNotFound indicates a conflict or version identifier did not resolve.
	ErrNotFound = errors.New("docsync: record not found")
	// ErrProviderUnavailable indicates a missing credential or unregistered provider client.
	ErrProviderUnavailable = errors.New("docsync: provider unavailable")
	// ErrUploadFailed indicates the cloud provider rejected or dropped an upload.
	ErrUploadFailed = errors.New("docsync: cloud upload failed")
	// ErrFetchFailed indicates cloud content could not be retrieved.
	ErrFetchFailed = errors.New("docsync: cloud fetch failed")
	// ErrInvalidResolution indicates an attempt to resolve a conflict with "pending".
	ErrInvalidResolution = errors.New("docsync: invalid resolution")
)

// ServiceError carries a structured operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the structured error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "docsync.service.new"
	opInitializeSync  = "docsync.initialize_sync"
	opProcessWebhook  = "docsync.process_webhook"
	opFetchCloud      = "docsync.fetch_cloud_content"
	opSyncToCloud     = "docsync.sync_to_cloud"
	opGetSyncStatus   = "docsync.get_sync_status"
	opSaveContent     = "docsync.save_local_content"
	opDisconnect      = "docsync.disconnect_provider"
	opCreateConflict  = "docsync.create_conflict"
	opResolveConflict = "docsync.resolve_conflict"
	opListConflicts   = "docsync.list_conflicts"
	opRecordVersion   = "docsync.record_version"
	opVersionHistory  = "docsync.version_history"
	opVersionDiff     = "docsync.version_diff"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

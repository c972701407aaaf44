package docsync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/propforge/docsync/internal/diff"
	"github.com/propforge/docsync/internal/provider"
)

// SourceLocal tags versions produced by local pushes.
const SourceLocal = "local"

// PushResult reports the outcome of a successful push to the cloud.
type PushResult struct {
	State         *SyncState
	Summary       diff.Summary
	VersionNumber int64
}

// InitializeSync creates the sync state binding for a document and provider.
// Fails with ErrAlreadyInitialized when a binding already exists.
func (s *Service) InitializeSync(ctx context.Context, documentID DocumentID, prov Provider, cloudFileID string, companyID CompanyID, userID string) (*SyncState, error) {
	if cloudFileID == "" {
		return nil, newServiceError(opInitializeSync, "missing_cloud_file_id", fmt.Errorf("cloud file id is required"))
	}

	release := s.locks.acquire(documentID.String())
	defer release()

	now := s.clock().UTC().Unix()
	state := &SyncState{
		DocumentID:       documentID.String(),
		Provider:         prov.String(),
		CompanyID:        companyID.String(),
		CloudFileID:      cloudFileID,
		SyncStatus:       string(StatusIdle),
		MetadataJSON:     "{}",
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing SyncState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ? AND provider = ?", documentID.String(), prov.String()).
			Take(&existing).Error
		if err == nil {
			return newServiceError(opInitializeSync, "already_initialized", ErrAlreadyInitialized)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opInitializeSync, "state_select_failed", err)
		}

		stateID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opInitializeSync, "id_generation_failed", err)
		}
		state.ID = stateID
		if err := tx.Create(state).Error; err != nil {
			return newServiceError(opInitializeSync, "state_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrAlreadyInitialized) {
			s.logError(opInitializeSync, "transaction_failed", txErr,
				zap.String("document_id", documentID.String()),
				zap.String("provider", prov.String()))
		}
		return nil, txErr
	}

	s.recordAudit(ctx, AuditEntry{
		Action:     "sync_initialized",
		EntityType: "document_sync_state",
		EntityID:   documentID.String(),
		UserID:     userID,
		Metadata:   map[string]any{"provider": prov.String(), "cloud_file_id": cloudFileID},
	})
	s.publishStatus(state)
	return state, nil
}

// ProcessWebhook handles a change notification from a cloud provider.
// Unmapped payloads and unknown files are ignored: webhooks for documents we
// do not track are expected noise. No base content is tracked across webhook
// cycles, so detection runs without one and can over-report conflicts.
func (s *Service) ProcessWebhook(ctx context.Context, prov Provider, payload map[string]any) error {
	client, err := s.providers.Client(prov.String())
	if err != nil {
		s.logError(opProcessWebhook, "provider_unavailable", err, zap.String("provider", prov.String()))
		return newServiceError(opProcessWebhook, "provider_unavailable", ErrProviderUnavailable)
	}

	cloudFileID := client.ExtractFileID(payload)
	if cloudFileID == "" {
		return nil
	}

	var state SyncState
	err = s.db.WithContext(ctx).
		Where("provider = ? AND cloud_file_id = ?", prov.String(), cloudFileID).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		s.logError(opProcessWebhook, "state_select_failed", err, zap.String("cloud_file_id", cloudFileID))
		return newServiceError(opProcessWebhook, "state_select_failed", err)
	}

	release := s.locks.acquire(state.DocumentID)
	defer release()

	now := s.clock().UTC().Unix()
	state.LastCloudEditAtSeconds = now
	if err := s.transition(ctx, &state, StatusSyncing); err != nil {
		return err
	}

	content, fetchErr := client.FetchContent(ctx, state.CompanyID, state.CloudFileID)
	if fetchErr != nil {
		s.logError(opProcessWebhook, "cloud_fetch_failed", fetchErr, zap.String("document_id", state.DocumentID))
		if err := s.transition(context.WithoutCancel(ctx), &state, StatusError); err != nil {
			return err
		}
		return newServiceError(opProcessWebhook, "cloud_fetch_failed", ErrFetchFailed)
	}

	localContent, err := s.loadDocumentContent(ctx, state.DocumentID)
	if err != nil {
		s.logError(opProcessWebhook, "document_select_failed", err, zap.String("document_id", state.DocumentID))
		_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
		return newServiceError(opProcessWebhook, "document_select_failed", err)
	}

	report := DetectConflict(localContent, content.Body, nil)
	switch {
	case report.HasConflict:
		if _, err := s.createConflictLocked(ctx, &state, nil, localContent, now, content.Body, content.LastModified.Unix()); err != nil {
			_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
			return err
		}
	case report.CloudChanged && !report.LocalChanged:
		document := Document{
			DocumentID:       state.DocumentID,
			CompanyID:        state.CompanyID,
			Content:          content.Body,
			UpdatedAtSeconds: now,
		}
		if err := s.db.WithContext(ctx).Save(&document).Error; err != nil {
			s.logError(opProcessWebhook, "document_save_failed", err, zap.String("document_id", state.DocumentID))
			_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
			return newServiceError(opProcessWebhook, "document_save_failed", err)
		}
		state.LastSyncAtSeconds = now
		if err := s.transition(ctx, &state, StatusSynced); err != nil {
			return err
		}
	default:
		state.LastSyncAtSeconds = now
		if err := s.transition(ctx, &state, StatusSynced); err != nil {
			return err
		}
	}
	return nil
}

// FetchCloudContent retrieves the current cloud body and modification time
// for a tracked document. Callers treat any error as "no content available".
func (s *Service) FetchCloudContent(ctx context.Context, documentID DocumentID, prov Provider) (*provider.Content, error) {
	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND provider = ?", documentID.String(), prov.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opFetchCloud, "not_initialized", ErrNotInitialized)
	}
	if err != nil {
		return nil, newServiceError(opFetchCloud, "state_select_failed", err)
	}

	client, err := s.providers.Client(prov.String())
	if err != nil {
		return nil, newServiceError(opFetchCloud, "provider_unavailable", ErrProviderUnavailable)
	}

	content, err := client.FetchContent(ctx, state.CompanyID, state.CloudFileID)
	if err != nil {
		if errors.Is(err, provider.ErrNoCredential) {
			return nil, newServiceError(opFetchCloud, "no_credential", ErrProviderUnavailable)
		}
		return nil, newServiceError(opFetchCloud, "cloud_fetch_failed", ErrFetchFailed)
	}
	return &content, nil
}

// SyncToCloud pushes local content to the provider, recording a version with
// a diff summary against the previous cloud content. No retry is performed
// here; a failed upload leaves the state in error for the caller to act on.
func (s *Service) SyncToCloud(ctx context.Context, documentID DocumentID, content string, prov Provider, userID string) (PushResult, error) {
	release := s.locks.acquire(documentID.String())
	defer release()

	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND provider = ?", documentID.String(), prov.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PushResult{}, newServiceError(opSyncToCloud, "not_initialized", ErrNotInitialized)
	}
	if err != nil {
		s.logError(opSyncToCloud, "state_select_failed", err, zap.String("document_id", documentID.String()))
		return PushResult{}, newServiceError(opSyncToCloud, "state_select_failed", err)
	}

	if err := s.transition(ctx, &state, StatusSyncing); err != nil {
		return PushResult{}, err
	}

	client, err := s.providers.Client(prov.String())
	if err != nil {
		_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
		return PushResult{}, newServiceError(opSyncToCloud, "provider_unavailable", ErrProviderUnavailable)
	}

	// Previous cloud content is best-effort: a failed fetch diffs against
	// empty rather than aborting the push.
	previousContent := ""
	if previous, fetchErr := client.FetchContent(ctx, state.CompanyID, state.CloudFileID); fetchErr == nil {
		previousContent = previous.Body
	} else {
		s.loggerOrDefault().Debug("previous cloud content unavailable",
			zap.String("document_id", documentID.String()), zap.Error(fetchErr))
	}

	diffResult := diff.ComputeDiff(previousContent, content)
	summary := diff.Summarize(diffResult)

	if err := client.UploadContent(ctx, state.CompanyID, state.CloudFileID, content); err != nil {
		s.logError(opSyncToCloud, "cloud_upload_failed", err, zap.String("document_id", documentID.String()))
		if transitionErr := s.transition(context.WithoutCancel(ctx), &state, StatusError); transitionErr != nil {
			return PushResult{}, transitionErr
		}
		if errors.Is(err, provider.ErrNoCredential) {
			return PushResult{}, newServiceError(opSyncToCloud, "no_credential", ErrProviderUnavailable)
		}
		return PushResult{}, newServiceError(opSyncToCloud, "cloud_upload_failed", ErrUploadFailed)
	}

	now := s.clock().UTC().Unix()
	document := Document{
		DocumentID:       state.DocumentID,
		CompanyID:        state.CompanyID,
		Content:          content,
		UpdatedAtSeconds: now,
	}
	if err := s.db.WithContext(ctx).Save(&document).Error; err != nil {
		s.logError(opSyncToCloud, "document_save_failed", err, zap.String("document_id", documentID.String()))
		_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
		return PushResult{}, newServiceError(opSyncToCloud, "document_save_failed", err)
	}

	version, err := s.recordVersionLocked(ctx, documentID.String(), state.CompanyID, SourceLocal, map[string]any{"content": content}, userID)
	if err != nil {
		_ = s.transition(context.WithoutCancel(ctx), &state, StatusError)
		return PushResult{}, err
	}

	state.LastSyncAtSeconds = now
	state.LastLocalEditAtSeconds = now
	if err := s.transition(ctx, &state, StatusSynced); err != nil {
		return PushResult{}, err
	}

	return PushResult{State: &state, Summary: summary, VersionNumber: version.VersionNumber}, nil
}

// SaveLocalContent stores the authoritative local content without contacting
// the provider. Deferred pushes read it back when the sync queue drains.
func (s *Service) SaveLocalContent(ctx context.Context, documentID DocumentID, companyID CompanyID, content string) error {
	document := Document{
		DocumentID:       documentID.String(),
		CompanyID:        companyID.String(),
		Content:          content,
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Save(&document).Error; err != nil {
		s.logError(opSaveContent, "document_save_failed", err, zap.String("document_id", documentID.String()))
		return newServiceError(opSaveContent, "document_save_failed", err)
	}
	return nil
}

// GetSyncStatus returns the sync state for a document, or nil when the
// document was never initialized.
func (s *Service) GetSyncStatus(ctx context.Context, documentID DocumentID) (*SyncState, error) {
	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGetSyncStatus, "state_select_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opGetSyncStatus, "state_select_failed", err)
	}
	return &state, nil
}

// DisconnectProvider returns the binding to idle and clears the cloud file
// reference. State records are never deleted: history survives disconnects.
func (s *Service) DisconnectProvider(ctx context.Context, documentID DocumentID, prov Provider, userID string) error {
	release := s.locks.acquire(documentID.String())
	defer release()

	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND provider = ?", documentID.String(), prov.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opDisconnect, "not_initialized", ErrNotInitialized)
	}
	if err != nil {
		return newServiceError(opDisconnect, "state_select_failed", err)
	}

	previousFileID := state.CloudFileID
	state.CloudFileID = ""
	if err := s.db.WithContext(ctx).Model(&SyncState{}).
		Where("id = ?", state.ID).
		Update("cloud_file_id", "").Error; err != nil {
		return newServiceError(opDisconnect, "state_update_failed", err)
	}
	if err := s.transition(ctx, &state, StatusIdle); err != nil {
		return err
	}

	s.recordAudit(ctx, AuditEntry{
		Action:     "sync_disconnected",
		EntityType: "document_sync_state",
		EntityID:   documentID.String(),
		UserID:     userID,
		Metadata:   map[string]any{"provider": prov.String(), "cloud_file_id": previousFileID},
	})
	return nil
}

// transition persists a status change plus the timestamp columns carried on
// the state struct, then publishes the event.
func (s *Service) transition(ctx context.Context, state *SyncState, status SyncStatus) error {
	now := s.clock().UTC().Unix()
	state.SyncStatus = string(status)
	state.UpdatedAtSeconds = now

	err := s.db.WithContext(ctx).Model(&SyncState{}).
		Where("id = ?", state.ID).
		Updates(map[string]any{
			"sync_status":          state.SyncStatus,
			"last_sync_at_s":       state.LastSyncAtSeconds,
			"last_local_edit_at_s": state.LastLocalEditAtSeconds,
			"last_cloud_edit_at_s": state.LastCloudEditAtSeconds,
			"updated_at_s":         state.UpdatedAtSeconds,
		}).Error
	if err != nil {
		s.logError("docsync.transition", "state_update_failed", err,
			zap.String("document_id", state.DocumentID),
			zap.String("status", string(status)))
		return newServiceError("docsync.transition", "state_update_failed", err)
	}
	s.publishStatus(state)
	return nil
}

func (s *Service) loadDocumentContent(ctx context.Context, documentID string) (string, error) {
	var document Document
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Take(&document).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return document.Content, nil
}

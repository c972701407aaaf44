package docsync

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateConflictRecord persists a pending conflict for a detected divergence
// and moves the owning sync state to conflict. A document carries at most one
// open conflict: an existing pending record is refreshed in place rather than
// duplicated.
func (s *Service) CreateConflictRecord(ctx context.Context, documentID DocumentID, sectionID *string, companyID CompanyID, localContent string, localUpdatedAt int64, cloudContent string, cloudUpdatedAt int64, cloudSource string) (*Conflict, error) {
	release := s.locks.acquire(documentID.String())
	defer release()

	var state SyncState
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opCreateConflict, "not_initialized", ErrNotInitialized)
	}
	if err != nil {
		return nil, newServiceError(opCreateConflict, "state_select_failed", err)
	}
	if state.CompanyID != companyID.String() {
		return nil, newServiceError(opCreateConflict, "company_mismatch", ErrNotFound)
	}
	if cloudSource == "" {
		cloudSource = state.Provider
	}
	conflict, err := s.createConflictLocked(ctx, &state, sectionID, localContent, localUpdatedAt, cloudContent, cloudUpdatedAt)
	if err != nil {
		return nil, err
	}
	if conflict.CloudSource != cloudSource {
		conflict.CloudSource = cloudSource
		if err := s.db.WithContext(ctx).Model(&Conflict{}).
			Where("id = ?", conflict.ID).
			Update("cloud_source", cloudSource).Error; err != nil {
			return nil, newServiceError(opCreateConflict, "conflict_update_failed", err)
		}
	}
	return conflict, nil
}

// createConflictLocked assumes the caller holds the document lock.
func (s *Service) createConflictLocked(ctx context.Context, state *SyncState, sectionID *string, localContent string, localUpdatedAt int64, cloudContent string, cloudUpdatedAt int64) (*Conflict, error) {
	now := s.clock().UTC().Unix()
	conflict := &Conflict{
		DocumentID:            state.DocumentID,
		SectionID:             sectionID,
		CompanyID:             state.CompanyID,
		LocalContent:          localContent,
		LocalUpdatedAtSeconds: localUpdatedAt,
		CloudContent:          cloudContent,
		CloudUpdatedAtSeconds: cloudUpdatedAt,
		CloudSource:           state.Provider,
		Resolution:            string(ResolutionPending),
		CreatedAtSeconds:      now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Conflict
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ? AND resolution = ?", state.DocumentID, string(ResolutionPending)).
			Take(&existing).Error
		if err == nil {
			existing.LocalContent = localContent
			existing.LocalUpdatedAtSeconds = localUpdatedAt
			existing.CloudContent = cloudContent
			existing.CloudUpdatedAtSeconds = cloudUpdatedAt
			if err := tx.Save(&existing).Error; err != nil {
				return newServiceError(opCreateConflict, "conflict_update_failed", err)
			}
			*conflict = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opCreateConflict, "conflict_select_failed", err)
		}

		conflictID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opCreateConflict, "id_generation_failed", err)
		}
		conflict.ID = conflictID
		if err := tx.Create(conflict).Error; err != nil {
			return newServiceError(opCreateConflict, "conflict_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateConflict, "transaction_failed", txErr, zap.String("document_id", state.DocumentID))
		return nil, txErr
	}

	if err := s.transition(ctx, state, StatusConflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

// ResolveConflict closes a pending conflict with a human decision. Resolving
// with "pending" is rejected before any state mutation; an unknown conflict
// id fails with ErrNotFound. On success the owning sync state returns to
// synced and an audit record is written.
func (s *Service) ResolveConflict(ctx context.Context, conflictID string, resolution Resolution, userID string) (*Conflict, error) {
	if resolution == ResolutionPending {
		return nil, newServiceError(opResolveConflict, "invalid_resolution", ErrInvalidResolution)
	}

	var conflict Conflict
	err := s.db.WithContext(ctx).
		Where("id = ?", conflictID).
		Take(&conflict).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opResolveConflict, "conflict_not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opResolveConflict, "conflict_select_failed", err, zap.String("conflict_id", conflictID))
		return nil, newServiceError(opResolveConflict, "conflict_select_failed", err)
	}

	release := s.locks.acquire(conflict.DocumentID)
	defer release()

	now := s.clock().UTC().Unix()
	conflict.Resolution = string(resolution)
	conflict.ResolvedBy = &userID
	conflict.ResolvedAtSeconds = &now
	if err := s.db.WithContext(ctx).Save(&conflict).Error; err != nil {
		s.logError(opResolveConflict, "conflict_save_failed", err, zap.String("conflict_id", conflictID))
		return nil, newServiceError(opResolveConflict, "conflict_save_failed", err)
	}

	var state SyncState
	err = s.db.WithContext(ctx).
		Where("document_id = ?", conflict.DocumentID).
		Take(&state).Error
	if err == nil {
		state.LastSyncAtSeconds = now
		if err := s.transition(ctx, &state, StatusSynced); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newServiceError(opResolveConflict, "state_select_failed", err)
	}

	s.recordAudit(ctx, AuditEntry{
		Action:     "sync_conflict_resolved",
		EntityType: "sync_conflict",
		EntityID:   conflictID,
		UserID:     userID,
		Metadata:   map[string]any{"resolution": string(resolution), "document_id": conflict.DocumentID},
	})
	return &conflict, nil
}

// OpenConflict returns the pending conflict for a document, or nil when the
// document has none.
func (s *Service) OpenConflict(ctx context.Context, documentID DocumentID) (*Conflict, error) {
	var conflict Conflict
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND resolution = ?", documentID.String(), string(ResolutionPending)).
		Take(&conflict).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, newServiceError(opListConflicts, "conflict_select_failed", err)
	}
	return &conflict, nil
}

// ConflictHistory lists all conflicts for a document, newest first. Closed
// conflicts are retained for audit.
func (s *Service) ConflictHistory(ctx context.Context, documentID DocumentID) ([]Conflict, error) {
	var conflicts []Conflict
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("created_at_s DESC").
		Find(&conflicts).Error; err != nil {
		s.logError(opListConflicts, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListConflicts, "query_failed", err)
	}
	return conflicts, nil
}

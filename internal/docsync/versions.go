package docsync

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/propforge/docsync/internal/diff"
	"github.com/propforge/docsync/internal/snapshot"
)

const defaultHistoryLimit = 50

// DiffSummary is the change summary stored with each version after the
// first: block counts plus which named top-level sections changed.
type DiffSummary struct {
	Additions       int      `json:"additions"`
	Deletions       int      `json:"deletions"`
	Modifications   int      `json:"modifications"`
	SectionsChanged []string `json:"sections_changed,omitempty"`
}

// RecordVersion appends an immutable version entry for a document. The
// version number is 1 + the highest existing number, computed under a row
// lock so concurrent writers cannot mint duplicates. Versions after the
// first carry a diff summary against the previous snapshot.
func (s *Service) RecordVersion(ctx context.Context, documentID DocumentID, companyID CompanyID, source string, snapshotContent map[string]any, userID string) (*Version, error) {
	release := s.locks.acquire(documentID.String())
	defer release()
	return s.recordVersionLocked(ctx, documentID.String(), companyID.String(), source, snapshotContent, userID)
}

// recordVersionLocked assumes the caller holds the document lock.
func (s *Service) recordVersionLocked(ctx context.Context, documentID, companyID, source string, snapshotContent map[string]any, userID string) (*Version, error) {
	snapshotJSON, err := json.Marshal(snapshotContent)
	if err != nil {
		return nil, newServiceError(opRecordVersion, "snapshot_encode_failed", err)
	}

	version := &Version{
		DocumentID:       documentID,
		CompanyID:        companyID,
		Source:           source,
		SnapshotJSON:     string(snapshotJSON),
		CreatedBy:        userID,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest Version
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ? AND company_id = ?", documentID, companyID).
			Order("version_number DESC").
			Take(&latest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecordVersion, "version_select_failed", err)
		}

		if err == nil {
			version.VersionNumber = latest.VersionNumber + 1
			summaryJSON, summaryErr := summarizeAgainst(latest.SnapshotJSON, snapshotContent)
			if summaryErr != nil {
				return newServiceError(opRecordVersion, "diff_summary_failed", summaryErr)
			}
			version.DiffSummaryJSON = &summaryJSON
		} else {
			version.VersionNumber = 1
		}

		versionID, idErr := s.idProvider.NewID()
		if idErr != nil {
			return newServiceError(opRecordVersion, "id_generation_failed", idErr)
		}
		version.ID = versionID
		if err := tx.Create(version).Error; err != nil {
			return newServiceError(opRecordVersion, "version_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opRecordVersion, "transaction_failed", txErr, zap.String("document_id", documentID))
		return nil, txErr
	}
	return version, nil
}

// VersionHistory returns versions for a document, newest first.
func (s *Service) VersionHistory(ctx context.Context, documentID DocumentID, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var versions []Version
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("version_number DESC").
		Limit(limit).
		Find(&versions).Error; err != nil {
		s.logError(opVersionHistory, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opVersionHistory, "query_failed", err)
	}
	return versions, nil
}

// VersionDiff serializes the snapshots of two versions and diffs them line by
// line. Returns nil when either id does not resolve.
func (s *Service) VersionDiff(ctx context.Context, versionID1, versionID2 string) (*diff.Result, error) {
	oldVersion, err := s.loadVersion(ctx, versionID1)
	if err != nil {
		return nil, err
	}
	newVersion, err := s.loadVersion(ctx, versionID2)
	if err != nil {
		return nil, err
	}
	if oldVersion == nil || newVersion == nil {
		return nil, nil
	}

	oldSnapshot, err := decodeSnapshot(oldVersion.SnapshotJSON)
	if err != nil {
		return nil, newServiceError(opVersionDiff, "snapshot_decode_failed", err)
	}
	newSnapshot, err := decodeSnapshot(newVersion.SnapshotJSON)
	if err != nil {
		return nil, newServiceError(opVersionDiff, "snapshot_decode_failed", err)
	}

	result := diff.ComputeDiff(snapshot.Serialize(oldSnapshot), snapshot.Serialize(newSnapshot))
	return &result, nil
}

func (s *Service) loadVersion(ctx context.Context, versionID string) (*Version, error) {
	var version Version
	err := s.db.WithContext(ctx).
		Where("id = ?", versionID).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opVersionDiff, "version_select_failed", err, zap.String("version_id", versionID))
		return nil, newServiceError(opVersionDiff, "version_select_failed", err)
	}
	return &version, nil
}

// summarizeAgainst computes the serialized-snapshot line diff plus changed
// top-level sections and encodes the result.
func summarizeAgainst(previousSnapshotJSON string, newSnapshot map[string]any) (string, error) {
	previousSnapshot, err := decodeSnapshot(previousSnapshotJSON)
	if err != nil {
		return "", err
	}

	result := diff.ComputeDiff(snapshot.Serialize(previousSnapshot), snapshot.Serialize(newSnapshot))
	counts := diff.Summarize(result)
	summary := DiffSummary{
		Additions:       counts.Additions,
		Deletions:       counts.Deletions,
		Modifications:   counts.Modifications,
		SectionsChanged: snapshot.ChangedSections(previousSnapshot, newSnapshot),
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeSnapshot(raw string) (map[string]any, error) {
	decoded := make(map[string]any)
	if raw == "" {
		return decoded, nil
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

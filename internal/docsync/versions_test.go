package docsync

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
)

func TestRecordVersionFirstEntryHasNoSummary(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1"})

	version, err := fixture.service.RecordVersion(context.Background(),
		mustDocumentID(t, "doc-1"), mustCompanyID(t, "company-1"),
		SourceLocal, map[string]any{"content": "alpha"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", version.VersionNumber)
	}
	if version.DiffSummaryJSON != nil {
		t.Fatalf("first version must carry no summary, got %v", *version.DiffSummaryJSON)
	}
	if version.CreatedBy != "user-1" {
		t.Fatalf("unexpected creator %s", version.CreatedBy)
	}
}

func TestRecordVersionIncrementsAndSummarizes(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1", "version-2"})
	documentID := mustDocumentID(t, "doc-1")
	companyID := mustCompanyID(t, "company-1")

	if _, err := fixture.service.RecordVersion(context.Background(), documentID, companyID,
		SourceLocal, map[string]any{"content": "alpha"}, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	version, err := fixture.service.RecordVersion(context.Background(), documentID, companyID,
		SourceLocal, map[string]any{"content": "alpha", "extra": "new"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", version.VersionNumber)
	}
	if version.DiffSummaryJSON == nil {
		t.Fatalf("expected a diff summary")
	}

	var summary DiffSummary
	if err := json.Unmarshal([]byte(*version.DiffSummaryJSON), &summary); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if summary.Additions != 1 || summary.Deletions != 0 || summary.Modifications != 0 {
		t.Fatalf("unexpected summary counts %+v", summary)
	}
	if !reflect.DeepEqual(summary.SectionsChanged, []string{"extra"}) {
		t.Fatalf("unexpected changed sections %v", summary.SectionsChanged)
	}
}

func TestRecordVersionNumbersPerDocument(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1", "version-2"})
	companyID := mustCompanyID(t, "company-1")

	first, err := fixture.service.RecordVersion(context.Background(),
		mustDocumentID(t, "doc-a"), companyID, SourceLocal, map[string]any{"content": "a"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := fixture.service.RecordVersion(context.Background(),
		mustDocumentID(t, "doc-b"), companyID, SourceLocal, map[string]any{"content": "b"}, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.VersionNumber != 1 || second.VersionNumber != 1 {
		t.Fatalf("version numbering must be per document: %d, %d",
			first.VersionNumber, second.VersionNumber)
	}
}

func TestVersionHistoryNewestFirst(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1", "version-2", "version-3"})
	documentID := mustDocumentID(t, "doc-1")
	companyID := mustCompanyID(t, "company-1")

	for _, content := range []string{"one", "two", "three"} {
		if _, err := fixture.service.RecordVersion(context.Background(), documentID, companyID,
			SourceLocal, map[string]any{"content": content}, "user-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history, err := fixture.service.VersionHistory(context.Background(), documentID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit to apply, got %d entries", len(history))
	}
	if history[0].VersionNumber != 3 || history[1].VersionNumber != 2 {
		t.Fatalf("expected newest first, got %d then %d",
			history[0].VersionNumber, history[1].VersionNumber)
	}
}

func TestVersionDiffComparesSnapshots(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1", "version-2"})
	documentID := mustDocumentID(t, "doc-1")
	companyID := mustCompanyID(t, "company-1")

	if _, err := fixture.service.RecordVersion(context.Background(), documentID, companyID,
		SourceLocal, map[string]any{"summary": "old wording"}, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fixture.service.RecordVersion(context.Background(), documentID, companyID,
		SourceLocal, map[string]any{"summary": "new wording"}, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := fixture.service.VersionDiff(context.Background(), "version-1", "version-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a diff result")
	}
	if len(result.Modifications) != 1 {
		t.Fatalf("expected one modification block, got %+v", result)
	}
	if result.Modifications[0].Content != "summary: new wording" {
		t.Fatalf("modification must carry the new side: %+v", result.Modifications[0])
	}
}

func TestVersionDiffUnknownIDReturnsNil(t *testing.T) {
	fixture := newTestFixture(t, []string{"version-1"})
	if _, err := fixture.service.RecordVersion(context.Background(),
		mustDocumentID(t, "doc-1"), mustCompanyID(t, "company-1"),
		SourceLocal, map[string]any{"content": "x"}, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := fixture.service.VersionDiff(context.Background(), "version-1", "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for unknown version, got %+v", result)
	}
}

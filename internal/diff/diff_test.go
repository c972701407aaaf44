package diff

import (
	"sort"
	"strings"
	"testing"
)

func TestComputeDiffIdenticalContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		lines   int
	}{
		{name: "empty", content: "", lines: 1},
		{name: "single-line", content: "alpha", lines: 1},
		{name: "multi-line", content: "alpha\nbeta\ngamma", lines: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeDiff(tt.content, tt.content)
			if len(result.Additions) != 0 || len(result.Deletions) != 0 || len(result.Modifications) != 0 {
				t.Fatalf("expected no changes, got %#v", result)
			}
			if result.Unchanged != tt.lines {
				t.Fatalf("expected %d unchanged lines, got %d", tt.lines, result.Unchanged)
			}
		})
	}
}

func TestComputeDiffPureAddition(t *testing.T) {
	result := ComputeDiff("Header", "Header\nLine one\nLine two\nLine three")

	if len(result.Deletions) != 0 {
		t.Fatalf("expected no deletions, got %d", len(result.Deletions))
	}
	if len(result.Modifications) != 0 {
		t.Fatalf("expected no modifications, got %d", len(result.Modifications))
	}
	if len(result.Additions) != 1 {
		t.Fatalf("expected 1 addition block, got %d", len(result.Additions))
	}
	block := result.Additions[0]
	if block.Content != "Line one\nLine two\nLine three" {
		t.Fatalf("unexpected added content %q", block.Content)
	}
	if block.LineStart != 1 || block.LineEnd != 3 {
		t.Fatalf("unexpected block range [%d,%d]", block.LineStart, block.LineEnd)
	}
	if result.Unchanged != 1 {
		t.Fatalf("expected 1 unchanged line, got %d", result.Unchanged)
	}
}

func TestComputeDiffPureDeletion(t *testing.T) {
	result := ComputeDiff("Line one\nLine two\nLine three\nFooter", "Footer")

	if len(result.Additions) != 0 {
		t.Fatalf("expected no additions, got %d", len(result.Additions))
	}
	if len(result.Deletions) != 1 {
		t.Fatalf("expected 1 deletion block, got %d", len(result.Deletions))
	}
	block := result.Deletions[0]
	if block.Content != "Line one\nLine two\nLine three" {
		t.Fatalf("unexpected deleted content %q", block.Content)
	}
	if block.LineStart != 0 || block.LineEnd != 2 {
		t.Fatalf("unexpected block range [%d,%d]", block.LineStart, block.LineEnd)
	}
}

func TestComputeDiffReclassifiesSameLengthEdit(t *testing.T) {
	oldContent := "Header\nOriginal middle line\nFooter"
	newContent := "Header\nModified middle line\nFooter"
	result := ComputeDiff(oldContent, newContent)

	if len(result.Additions) != 0 || len(result.Deletions) != 0 {
		t.Fatalf("expected edit to collapse into a modification, got %#v", result)
	}
	if len(result.Modifications) != 1 {
		t.Fatalf("expected 1 modification block, got %d", len(result.Modifications))
	}
	block := result.Modifications[0]
	if block.Content != "Modified middle line" {
		t.Fatalf("modification should carry the new-side content, got %q", block.Content)
	}
	if block.LineStart != 1 || block.LineEnd != 1 {
		t.Fatalf("unexpected block range [%d,%d]", block.LineStart, block.LineEnd)
	}
	if result.Unchanged != 2 {
		t.Fatalf("header and footer should be unchanged, got %d", result.Unchanged)
	}
}

func TestComputeDiffKeepsUnequalLengthBlocksApart(t *testing.T) {
	oldContent := "keep\nremoved one\nremoved two\nkeep tail"
	newContent := "keep\nadded line\nkeep tail"
	result := ComputeDiff(oldContent, newContent)

	// One added line against two removed lines cannot pair up, so both
	// survive reclassification.
	if len(result.Modifications) != 0 {
		t.Fatalf("expected no modifications, got %d", len(result.Modifications))
	}
	if len(result.Additions) != 1 {
		t.Fatalf("expected 1 addition block, got %d", len(result.Additions))
	}
	if len(result.Deletions) != 1 {
		t.Fatalf("expected 1 deletion block, got %d", len(result.Deletions))
	}
	if result.Deletions[0].Content != "removed one\nremoved two" {
		t.Fatalf("unexpected deletion content %q", result.Deletions[0].Content)
	}
}

// The LCS backtrack must be lossless before reclassification: replaying the
// reported removals against the old lines and splicing in the reported
// additions must rebuild the new content exactly.
func TestExtractBlocksRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		oldContent string
		newContent string
	}{
		{name: "disjoint-edits", oldContent: "a\nb\nc\nd\ne", newContent: "a\nB\nc\nd\nE\nf"},
		{name: "prefix-insert", oldContent: "one\ntwo", newContent: "zero\none\ntwo"},
		{name: "total-rewrite", oldContent: "x\ny", newContent: "p\nq\nr"},
		{name: "shifted-block", oldContent: "a\nb\nc", newContent: "b\nc\na\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldLines := strings.Split(tt.oldContent, "\n")
			newLines := strings.Split(tt.newContent, "\n")
			table := buildLCSTable(oldLines, newLines)
			added, removed, _ := extractBlocks(oldLines, newLines, table)

			rebuilt := replay(oldLines, added, removed)
			if got := strings.Join(rebuilt, "\n"); got != tt.newContent {
				t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", tt.newContent, got)
			}
		})
	}
}

// replay removes the removed-line indices from the old side and inserts the
// added lines at their new-side indices.
func replay(oldLines []string, added, removed []lineBlock) []string {
	removedIndices := make(map[int]struct{})
	for _, block := range removed {
		for offset := range block.lines {
			removedIndices[block.start+offset] = struct{}{}
		}
	}

	var kept []string
	for index, line := range oldLines {
		if _, gone := removedIndices[index]; !gone {
			kept = append(kept, line)
		}
	}

	type insertion struct {
		index int
		line  string
	}
	var insertions []insertion
	for _, block := range added {
		for offset, line := range block.lines {
			insertions = append(insertions, insertion{index: block.start + offset, line: line})
		}
	}
	sort.Slice(insertions, func(i, j int) bool { return insertions[i].index < insertions[j].index })

	result := kept
	for _, ins := range insertions {
		if ins.index >= len(result) {
			result = append(result, ins.line)
			continue
		}
		result = append(result[:ins.index], append([]string{ins.line}, result[ins.index:]...)...)
	}
	return result
}

func TestComputeSectionDiff(t *testing.T) {
	oldSections := map[string]string{
		"executive_summary": "We win.",
		"technical":         "Old approach.",
		"pricing":           "Fixed price.",
	}
	newSections := map[string]string{
		"executive_summary": "We win.",
		"technical":         "New approach.",
		"staffing":          "Five engineers.",
	}

	result := ComputeSectionDiff(oldSections, newSections)

	if len(result.Additions) != 1 || result.Additions[0].Path != "staffing" {
		t.Fatalf("unexpected additions %#v", result.Additions)
	}
	if result.Additions[0].Content != "Five engineers." {
		t.Fatalf("addition should carry new content, got %q", result.Additions[0].Content)
	}
	if len(result.Deletions) != 1 || result.Deletions[0].Path != "pricing" {
		t.Fatalf("unexpected deletions %#v", result.Deletions)
	}
	if len(result.Modifications) != 1 || result.Modifications[0].Path != "technical" {
		t.Fatalf("unexpected modifications %#v", result.Modifications)
	}
	if result.Modifications[0].Content != "New approach." {
		t.Fatalf("modification should carry new content, got %q", result.Modifications[0].Content)
	}
	if result.Unchanged != 1 {
		t.Fatalf("expected 1 unchanged section, got %d", result.Unchanged)
	}
}

func TestComputeSectionDiffEmptyMaps(t *testing.T) {
	result := ComputeSectionDiff(nil, nil)
	if len(result.Additions) != 0 || len(result.Deletions) != 0 || len(result.Modifications) != 0 || result.Unchanged != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestSummarize(t *testing.T) {
	result := ComputeDiff("a\nb\nc", "a\nB\nc\nd")
	summary := Summarize(result)

	if summary.Modifications != 1 {
		t.Fatalf("expected 1 modification, got %d", summary.Modifications)
	}
	if summary.Additions != 1 {
		t.Fatalf("expected 1 addition, got %d", summary.Additions)
	}
	if summary.Deletions != 0 {
		t.Fatalf("expected 0 deletions, got %d", summary.Deletions)
	}
}

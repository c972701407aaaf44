package docsync

import "strings"

// ConflictRegion is a contiguous run of line indices where local and cloud
// both diverged from base and disagree with each other.
type ConflictRegion struct {
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`
}

// ConflictReport is the outcome of three-way divergence detection.
type ConflictReport struct {
	HasConflict  bool             `json:"has_conflict"`
	LocalChanged bool             `json:"local_changed"`
	CloudChanged bool             `json:"cloud_changed"`
	Regions      []ConflictRegion `json:"conflict_regions"`
}

// Merge conflict markers, git style.
const (
	mergeMarkerLocal     = "<<<<<<< Local"
	mergeMarkerSeparator = "======="
	mergeMarkerCloud     = ">>>>>>> Cloud"
)

// DetectConflict decides whether local and cloud content have diverged from a
// common base. A nil base conservatively treats both sides as changed, which
// can misreport a one-sided edit as a conflict; callers should supply a base
// when one is known.
func DetectConflict(localContent, cloudContent string, baseContent *string) ConflictReport {
	if localContent == cloudContent {
		return ConflictReport{Regions: []ConflictRegion{}}
	}

	localChanged := true
	cloudChanged := true
	if baseContent != nil {
		localChanged = localContent != *baseContent
		cloudChanged = cloudContent != *baseContent
	}

	if !localChanged || !cloudChanged {
		return ConflictReport{
			LocalChanged: localChanged,
			CloudChanged: cloudChanged,
			Regions:      []ConflictRegion{},
		}
	}

	localLines := strings.Split(localContent, "\n")
	cloudLines := strings.Split(cloudContent, "\n")
	var baseLines []string
	if baseContent != nil {
		baseLines = strings.Split(*baseContent, "\n")
	}

	maxLen := len(localLines)
	if len(cloudLines) > maxLen {
		maxLen = len(cloudLines)
	}
	if len(baseLines) > maxLen {
		maxLen = len(baseLines)
	}

	regions := []ConflictRegion{}
	regionStart := -1
	for i := 0; i < maxLen; i++ {
		baseLine := lineAt(baseLines, i)
		localLine := lineAt(localLines, i)
		cloudLine := lineAt(cloudLines, i)

		bothDiverged := localLine != baseLine && cloudLine != baseLine && localLine != cloudLine
		if bothDiverged {
			if regionStart < 0 {
				regionStart = i
			}
			continue
		}
		if regionStart >= 0 {
			regions = append(regions, ConflictRegion{LineStart: regionStart, LineEnd: i - 1})
			regionStart = -1
		}
	}
	if regionStart >= 0 {
		regions = append(regions, ConflictRegion{LineStart: regionStart, LineEnd: maxLen - 1})
	}

	return ConflictReport{
		HasConflict:  len(regions) > 0,
		LocalChanged: localChanged,
		CloudChanged: cloudChanged,
		Regions:      regions,
	}
}

// MergedContent produces a best-effort line-by-line merge of the two sides.
// Lines present on only one side are kept, identical lines are kept once,
// and differing lines at the same index are wrapped in conflict markers.
// The merge is purely positional: it ignores any base, so insertions that
// shift line alignment produce spurious marker blocks.
func MergedContent(localContent, cloudContent string) string {
	localLines := strings.Split(localContent, "\n")
	cloudLines := strings.Split(cloudContent, "\n")

	maxLen := len(localLines)
	if len(cloudLines) > maxLen {
		maxLen = len(cloudLines)
	}

	merged := make([]string, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		switch {
		case i >= len(localLines):
			merged = append(merged, cloudLines[i])
		case i >= len(cloudLines):
			merged = append(merged, localLines[i])
		case localLines[i] == cloudLines[i]:
			merged = append(merged, localLines[i])
		default:
			merged = append(merged,
				mergeMarkerLocal,
				localLines[i],
				mergeMarkerSeparator,
				cloudLines[i],
				mergeMarkerCloud,
			)
		}
	}
	return strings.Join(merged, "\n")
}

func lineAt(lines []string, index int) string {
	if index < 0 || index >= len(lines) {
		return ""
	}
	return lines[index]
}

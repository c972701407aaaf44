// Package diff computes line-level and section-level differences between
// document contents. It is a leaf package: no persistence, no providers.
package diff

import (
	"sort"
	"strings"
)

// Block is a contiguous run of added, removed, or modified lines.
type Block struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

// Result holds the outcome of a diff computation.
type Result struct {
	Additions     []Block `json:"additions"`
	Deletions     []Block `json:"deletions"`
	Modifications []Block `json:"modifications"`
	Unchanged     int     `json:"unchanged"`
}

// Summary is a compact count of changes, suitable for version records.
type Summary struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
}

const linePath = "line"

// ComputeDiff computes a line-by-line diff between two content strings using
// a longest-common-subsequence table. Runs of adjacent added and removed
// lines are grouped into blocks, then equal-length add/remove block pairs at
// near-identical positions are reclassified as modifications. The
// reclassification is a heuristic: unrelated same-length pairs can be
// misreported as a modification.
func ComputeDiff(oldContent, newContent string) Result {
	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")

	table := buildLCSTable(oldLines, newLines)
	added, removed, same := extractBlocks(oldLines, newLines, table)
	added, removed, modified := reclassifyModifications(added, removed)

	result := Result{
		Additions:     make([]Block, 0, len(added)),
		Deletions:     make([]Block, 0, len(removed)),
		Modifications: make([]Block, 0, len(modified)),
		Unchanged:     same,
	}
	for _, block := range added {
		result.Additions = append(result.Additions, block.toBlock())
	}
	for _, block := range removed {
		result.Deletions = append(result.Deletions, block.toBlock())
	}
	for _, block := range modified {
		result.Modifications = append(result.Modifications, block.toBlock())
	}
	return result
}

// ComputeSectionDiff compares two named-section maps. A key present only in
// newSections is an addition, only in oldSections a deletion, present in both
// with differing content a modification. Equal values count as unchanged.
func ComputeSectionDiff(oldSections, newSections map[string]string) Result {
	keys := make(map[string]struct{}, len(oldSections)+len(newSections))
	for key := range oldSections {
		keys[key] = struct{}{}
	}
	for key := range newSections {
		keys[key] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	result := Result{
		Additions:     []Block{},
		Deletions:     []Block{},
		Modifications: []Block{},
	}
	for _, key := range sorted {
		oldValue, inOld := oldSections[key]
		newValue, inNew := newSections[key]
		switch {
		case !inOld && inNew:
			result.Additions = append(result.Additions, Block{Path: key, Content: newValue})
		case inOld && !inNew:
			result.Deletions = append(result.Deletions, Block{Path: key, Content: oldValue})
		case oldValue != newValue:
			result.Modifications = append(result.Modifications, Block{Path: key, Content: newValue})
		default:
			result.Unchanged++
		}
	}
	return result
}

// Summarize reduces a diff result to block counts.
func Summarize(result Result) Summary {
	return Summary{
		Additions:     len(result.Additions),
		Deletions:     len(result.Deletions),
		Modifications: len(result.Modifications),
	}
}

type lineBlock struct {
	start int
	lines []string
}

func (b lineBlock) toBlock() Block {
	return Block{
		Path:      linePath,
		Content:   strings.Join(b.lines, "\n"),
		LineStart: b.start,
		LineEnd:   b.start + len(b.lines) - 1,
	}
}

// buildLCSTable fills the classic dynamic-programming table where
// table[i][j] is the LCS length of oldLines[:i] and newLines[:j].
// O(m*n) time and space; fine for section-sized documents, not for
// multi-megabyte blobs.
func buildLCSTable(oldLines, newLines []string) [][]int {
	m := len(oldLines)
	n := len(newLines)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldLines[i-1] == newLines[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] >= table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}
	return table
}

type indexedLine struct {
	index int
	line  string
}

// extractBlocks walks the LCS table backwards, classifying each line as
// unchanged, added, or removed, and groups contiguous runs into blocks. Ties
// between the addition and removal branches prefer the addition from the new
// side. The raw added/removed sets are lossless: replaying them against the
// old lines reproduces the new lines exactly.
func extractBlocks(oldLines, newLines []string, table [][]int) (added, removed []lineBlock, same int) {
	i := len(oldLines)
	j := len(newLines)

	var addedLines []indexedLine
	var removedLines []indexedLine
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			same++
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			addedLines = append(addedLines, indexedLine{index: j - 1, line: newLines[j-1]})
			j--
		default:
			removedLines = append(removedLines, indexedLine{index: i - 1, line: oldLines[i-1]})
			i--
		}
	}
	reverseLines(addedLines)
	reverseLines(removedLines)

	return groupRuns(addedLines), groupRuns(removedLines), same
}

func reverseLines(lines []indexedLine) {
	for left, right := 0, len(lines)-1; left < right; left, right = left+1, right-1 {
		lines[left], lines[right] = lines[right], lines[left]
	}
}

// groupRuns folds lines at consecutive indices into blocks. Input must be
// ordered by ascending index.
func groupRuns(lines []indexedLine) []lineBlock {
	var blocks []lineBlock
	var current *lineBlock
	for _, entry := range lines {
		if current != nil && entry.index == current.start+len(current.lines) {
			current.lines = append(current.lines, entry.line)
			continue
		}
		if current != nil {
			blocks = append(blocks, *current)
		}
		current = &lineBlock{start: entry.index, lines: []string{entry.line}}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}
	return blocks
}

// reclassifyModifications pairs added and removed blocks with the same line
// count whose start indices differ by at most one and reports each pair as a
// single modification carrying the new-side lines. Isolated so it can be
// swapped for a stronger algorithm without touching callers.
func reclassifyModifications(added, removed []lineBlock) (remainingAdded, remainingRemoved, modified []lineBlock) {
	matchedRemovals := make(map[int]struct{})

	for ai := 0; ai < len(added); ai++ {
		for ri := 0; ri < len(removed); ri++ {
			if _, matched := matchedRemovals[ri]; matched {
				continue
			}
			addBlock := added[ai]
			remBlock := removed[ri]
			if len(addBlock.lines) != len(remBlock.lines) {
				continue
			}
			if delta := addBlock.start - remBlock.start; delta > 1 || delta < -1 {
				continue
			}
			modified = append(modified, lineBlock{start: addBlock.start, lines: addBlock.lines})
			matchedRemovals[ri] = struct{}{}
			added = append(added[:ai], added[ai+1:]...)
			ai--
			break
		}
	}

	remainingRemoved = make([]lineBlock, 0, len(removed))
	for ri, block := range removed {
		if _, matched := matchedRemovals[ri]; matched {
			continue
		}
		remainingRemoved = append(remainingRemoved, block)
	}
	return added, remainingRemoved, modified
}

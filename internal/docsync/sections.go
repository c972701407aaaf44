package docsync

import (
	"strings"

	"github.com/propforge/docsync/internal/diff"
)

// PreambleSection names the implicit section holding content that appears
// before the first heading.
const PreambleSection = "__preamble__"

// ExtractSections splits markdown-style content into a section map keyed by
// heading text. Headings of level one through three start a new section; the
// body lines until the next heading become its content. Sections with empty
// bodies are omitted.
func ExtractSections(content string) map[string]string {
	sections := make(map[string]string)
	currentHeading := PreambleSection
	var currentBody []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(currentBody, "\n"))
		if body != "" {
			sections[currentHeading] = body
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if heading, ok := headingText(line); ok {
			flush()
			currentHeading = heading
			currentBody = nil
			continue
		}
		currentBody = append(currentBody, line)
	}
	flush()

	return sections
}

// SectionDiff extracts sections from both contents and diffs them by name.
func SectionDiff(oldContent, newContent string) diff.Result {
	return diff.ComputeSectionDiff(ExtractSections(oldContent), ExtractSections(newContent))
}

func headingText(line string) (string, bool) {
	rest, found := strings.CutPrefix(line, "#")
	if !found {
		return "", false
	}
	level := 1
	for strings.HasPrefix(rest, "#") {
		rest = rest[1:]
		level++
	}
	if level > 3 {
		return "", false
	}
	if !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, "\t") {
		return "", false
	}
	title := strings.TrimSpace(rest)
	if title == "" {
		return "", false
	}
	return title, true
}

// Package diff parses unified-diff patches and reconstructs the
// approximate post-change file text that scanning backends run against.
package diff

import (
	"strconv"
	"strings"
)

// LineType represents the type of a line in a diff.
type LineType int

const (
	// LineContext represents an unchanged context line (starts with ' ').
	LineContext LineType = iota
	// LineAddition represents an added line (starts with '+').
	LineAddition
	// LineDeletion represents a deleted line (starts with '-').
	LineDeletion
)

// Line is a single line in a diff hunk.
type Line struct {
	Type    LineType
	Content string // line content without the prefix character
	NewLine int    // line number in the new file; 0 for deletions
}

// Hunk is a single @@ section of a unified diff.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Patch is a parsed unified diff for one file.
type Patch struct {
	Hunks []Hunk
}

// Parse parses a unified diff string. File headers and "no newline"
// markers are skipped; malformed hunk headers are tolerated.
func Parse(patch string) Patch {
	var result Patch
	if patch == "" {
		return result
	}

	var current *Hunk
	newLine := 0

	for _, line := range strings.Split(patch, "\n") {
		if isMetadataLine(line) {
			continue
		}

		if strings.HasPrefix(line, "@@") {
			if current != nil {
				result.Hunks = append(result.Hunks, *current)
			}
			hunk := parseHunkHeader(line)
			current = &hunk
			newLine = hunk.NewStart
			continue
		}

		if current == nil || line == "" {
			continue
		}

		var parsed Line
		switch line[0] {
		case '+':
			parsed = Line{Type: LineAddition, Content: line[1:], NewLine: newLine}
			newLine++
		case '-':
			parsed = Line{Type: LineDeletion, Content: line[1:]}
		case ' ':
			parsed = Line{Type: LineContext, Content: line[1:], NewLine: newLine}
			newLine++
		default:
			// Some hosting APIs emit context lines without the leading space.
			parsed = Line{Type: LineContext, Content: line, NewLine: newLine}
			newLine++
		}
		current.Lines = append(current.Lines, parsed)
	}

	if current != nil {
		result.Hunks = append(result.Hunks, *current)
	}
	return result
}

// Reconstruct converts a unified-diff patch into the approximate
// post-change file text: diff metadata and removed lines are dropped,
// added and context lines are kept with their prefix stripped. The result
// is an approximation -- unchanged regions outside the hunks are absent --
// but it is what pattern and tool scanners operate on.
func Reconstruct(patch string) string {
	if patch == "" {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(patch, "\n") {
		if isMetadataLine(line) || strings.HasPrefix(line, "@@") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			continue
		}
		lines = append(lines, strings.TrimPrefix(line, "+"))
	}
	return strings.Join(lines, "\n")
}

// Added returns the added lines of a patch with their new-file line numbers.
func (p Patch) Added() []Line {
	var added []Line
	for _, hunk := range p.Hunks {
		for _, line := range hunk.Lines {
			if line.Type == LineAddition {
				added = append(added, line)
			}
		}
	}
	return added
}

// Stats counts additions and deletions across all hunks.
func (p Patch) Stats() (additions, deletions int) {
	for _, hunk := range p.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case LineAddition:
				additions++
			case LineDeletion:
				deletions++
			}
		}
	}
	return additions, deletions
}

func isMetadataLine(line string) bool {
	return strings.HasPrefix(line, "diff --git") ||
		strings.HasPrefix(line, "index ") ||
		strings.HasPrefix(line, "--- ") ||
		strings.HasPrefix(line, "+++ ") ||
		strings.HasPrefix(line, "\\ ")
}

// parseHunkHeader parses "@@ -10,7 +10,8 @@ optional context".
func parseHunkHeader(line string) Hunk {
	hunk := Hunk{}
	parts := strings.Split(line, "@@")
	if len(parts) < 2 {
		return hunk
	}

	for _, field := range strings.Fields(strings.TrimSpace(parts[1])) {
		switch {
		case strings.HasPrefix(field, "-"):
			hunk.OldStart, hunk.OldLines = parseRange(strings.TrimPrefix(field, "-"))
		case strings.HasPrefix(field, "+"):
			hunk.NewStart, hunk.NewLines = parseRange(strings.TrimPrefix(field, "+"))
		}
	}
	return hunk
}

// parseRange parses "start,count" or "start".
func parseRange(s string) (start, count int) {
	if idx := strings.Index(s, ","); idx >= 0 {
		start, _ = strconv.Atoi(s[:idx])
		count, _ = strconv.Atoi(s[idx+1:])
	} else {
		start, _ = strconv.Atoi(s)
		count = 1
	}
	return start, count
}

package changelog

import (
	"strings"
)

// Header starts every new changelog file.
const Header = "# Changelog\n\nAll notable changes to this project will be documented in this file.\n\n"

// isReleaseHeading reports whether line is a previous release heading.
func isReleaseHeading(line string) bool {
	return strings.HasPrefix(line, "## [") || strings.HasPrefix(line, "## v")
}

// Merge inserts block into an existing changelog above the first previous
// release heading, or at the end when there is none. A missing file (exists
// false) gets the standard header. It returns the new content and whether
// anything changed: an empty block, or a block whose heading is already in
// the file, changes nothing.
func Merge(existing string, exists bool, block string) (string, bool) {
	if strings.TrimSpace(block) == "" {
		return existing, false
	}
	if !strings.HasSuffix(block, "\n") {
		block += "\n"
	}
	if !exists {
		return Header + block, true
	}

	heading, _, _ := strings.Cut(block, "\n")
	heading = strings.TrimSpace(heading)

	lines := strings.SplitAfter(existing, "\n")
	insertAt := -1
	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r\n")
		if heading != "" && strings.TrimSpace(trimmed) == heading {
			return existing, false
		}
		if insertAt < 0 && isReleaseHeading(trimmed) {
			insertAt = i
		}
	}

	if insertAt < 0 {
		out := existing
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		if out != "" && !strings.HasSuffix(out, "\n\n") {
			out += "\n"
		}
		return out + block, true
	}

	if !strings.HasSuffix(block, "\n\n") {
		block += "\n"
	}
	var sb strings.Builder
	for _, l := range lines[:insertAt] {
		sb.WriteString(l)
	}
	sb.WriteString(block)
	for _, l := range lines[insertAt:] {
		sb.WriteString(l)
	}
	return sb.String(), true
}

package utils

import (
	"regexp"
	"strings"
)

var (
	unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// Sanitized names become on-disk directory names (per-site status DBs), so
// cap them well under common filesystem limits.
const maxSanitizedLen = 100

// SanitizeFilename makes a string safe to use as a file or directory name
// component. Unsafe characters become underscores, runs of underscores
// collapse to one, and an all-unsafe input falls back to "untitled".
func SanitizeFilename(name string) string {
	s := unsafePathChars.ReplaceAllString(name, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_ ")

	if len(s) > maxSanitizedLen {
		s = strings.Trim(s[:maxSanitizedLen], "_ ")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

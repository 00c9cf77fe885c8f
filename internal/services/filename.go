package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripDiacritics decomposes accented characters and drops the
// combining marks, so "Tarea Áéí" becomes "Tarea Aei".
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func sanitizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range stripDiacritics(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ArtifactFileName derives a collision-resistant storage name from the
// original upload name: diacritics stripped, anything outside
// [A-Za-z0-9._-] replaced with '_', and a nanosecond timestamp inserted
// before the extension.
func ArtifactFileName(originalName string, now time.Time) string {
	base := strings.TrimSpace(originalName)
	if base == "" {
		base = "annotated.pdf"
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	ext = strings.ToLower(sanitizeNamePart(ext))
	if ext == "" || ext == "." {
		ext = ".pdf"
	}
	stem = sanitizeNamePart(stem)
	if stem == "" {
		stem = "annotated"
	}
	return fmt.Sprintf("%s_%d%s", stem, now.UnixNano(), ext)
}

package download

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/reelfetch/backend/internal/platform"
)

const maxFilenameLen = 100

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9\s_-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Sanitize turns a title into a filesystem safe name: accents are
// folded, anything outside [A-Za-z0-9_-] and whitespace is dropped and
// whitespace runs become a single underscore.
func Sanitize(s string, limit int) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = unsafeChars.ReplaceAllString(folded, "")
	folded = whitespace.ReplaceAllString(strings.TrimSpace(folded), "_")
	if limit > 0 && len(folded) > limit {
		folded = folded[:limit]
	}
	return folded
}

// naming is the subset of resolved metadata used for filenames
type naming struct {
	Title       string
	Author      string
	Description string
}

// baseName picks the artifact name without extension.
func baseName(n naming, pol *platform.Policy, custom string) string {
	var name string
	switch {
	case custom != "" && pol.Platform == platform.Direct:
		name = Sanitize(strings.TrimSuffix(custom, filepath.Ext(custom)), maxFilenameLen)
	case pol.Platform == platform.TikTok:
		desc := n.Description
		if desc == "" {
			desc = n.Title
		}
		parts := []string{Sanitize(n.Author, 30), Sanitize(desc, 50)}
		var kept []string
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		name = strings.Join(kept, "_")
	default:
		name = Sanitize(n.Title, maxFilenameLen)
	}

	if name == "" {
		name = pol.FilenameFallback
	}
	if name == "" {
		name = "video"
	}
	return name
}

// customExt returns the extension of a client supplied direct-download
// filename, without the dot.
func customExt(custom string) string {
	ext := strings.TrimPrefix(filepath.Ext(custom), ".")
	if ext == "" || len(ext) > 5 || unsafeChars.MatchString(ext) {
		return ""
	}
	return strings.ToLower(ext)
}

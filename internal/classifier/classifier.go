package classifier

import "strings"

// genericPatterns are substrings of placeholder/avatar sources that are never worth
// optimizing: Telegram CDN previews, default userpics, generated avatars and inline
// SVG placeholders.
var genericPatterns = []string{
	"telesco.pe",
	"t.me/i/userpic",
	"ui-avatars.com",
	"data:image/svg+xml",
}

// IsGenericSource reports whether url points at a known placeholder image.
// An empty url counts as generic.
func IsGenericSource(url string) bool {
	if strings.TrimSpace(url) == "" {
		return true
	}
	for _, p := range genericPatterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the generic source patterns, for diagnostics.
func Patterns() []string {
	out := make([]string, len(genericPatterns))
	copy(out, genericPatterns)
	return out
}

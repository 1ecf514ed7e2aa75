package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var identifierPattern = regexp.MustCompile(`^[\p{L}\p{Nd}]+(?:-[\p{L}\p{Nd}]+)*-[0-9]+$`)

// Slugify lower-cases name and joins its letter and digit runs with hyphens.
// Letters of any script are kept. Names without any such run become "item".
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return "item"
	}
	return b.String()
}

// NewIdentifier derives the human-readable item identifier.
func NewIdentifier(name string, createdAt time.Time) string {
	return Slugify(name) + "-" + strconv.FormatInt(createdAt.UnixMilli(), 10)
}

// IsIdentifier reports whether s has the shape produced by NewIdentifier.
func IsIdentifier(s string) bool {
	return s == strings.ToLower(s) && identifierPattern.MatchString(s)
}

package items

import (
	"strconv"
	"strings"
	"time"
)

const maxSlugLen = 32

// Slug lowercases s and collapses every run of characters outside [a-z0-9] into one dash.
// The result is trimmed of dashes and cut to 32 bytes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// NewID builds an item ID from a display name, the creation time and an optional seed.
func NewID(name string, createdAt time.Time, seed string) string {
	slug := Slug(name)
	if slug == "" {
		slug = "item"
	}

	id := slug + "-" + strconv.FormatInt(createdAt.UnixMilli(), 36)
	if seed != "" {
		id += "-" + Slug(seed)
	}
	return id
}

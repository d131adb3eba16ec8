// Package keyspace maps owner identities and category names onto the object
// storage key layout: users/<owner-bucket>/<category>/rec_<unixMillis>.<ext>.
package keyspace

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// PublicBucket receives uploads with no resolvable owner. Anonymous
	// uploads are accepted deliberately, not rejected.
	PublicBucket = "public"

	// DefaultCategory is used when a category is absent or sanitizes to
	// nothing.
	DefaultCategory = "unsorted"

	keyRoot    = "users"
	filePrefix = "rec_"
)

// OwnerBucket normalizes an owner identity (email or subject id) into a
// storage-safe path segment: lowercased, with '@' and '.' replaced by '_'.
func OwnerBucket(identity string) string {
	identity = strings.TrimSpace(strings.ToLower(identity))
	if identity == "" {
		return PublicBucket
	}
	var b strings.Builder
	for _, r := range identity {
		switch {
		case r == '@' || r == '.':
			b.WriteRune('_')
		case r == '/' || r == '\\' || unicode.IsSpace(r) || r < 0x20:
			// Path separators and whitespace would corrupt the key layout.
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeCategory strips everything outside the allow-list (letters, digits,
// hyphen, underscore, space) and trims the result.
func SanitizeCategory(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return DefaultCategory
	}
	return cleaned
}

// Prefix returns the listing prefix for everything an owner has stored.
func Prefix(bucket string) string {
	return keyRoot + "/" + bucket + "/"
}

// FileKey builds the storage key for a recording uploaded at ts. The
// millisecond timestamp is the sole collision-avoidance mechanism; writes are
// append-only and never collide at that granularity under normal load.
func FileKey(bucket, category string, ts time.Time, ext string) string {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%s/%s/%s%d%s", keyRoot, bucket, category, filePrefix, ts.UnixMilli(), ext)
}

// TranscriptKey derives the sibling transcript key by swapping the media
// extension for .txt. The two blobs always share the same base path.
func TranscriptKey(mediaKey string) string {
	ext := path.Ext(mediaKey)
	return strings.TrimSuffix(mediaKey, ext) + ".txt"
}

// ParseCategory extracts the category from a storage key. It is positional:
// the third path segment when present, DefaultCategory otherwise.
func ParseCategory(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) >= 4 && parts[2] != "" {
		return parts[2]
	}
	return DefaultCategory
}

// ParseUploadedAt recovers the upload timestamp embedded in a key's
// rec_<unixMillis> base name. ok is false for keys that do not follow the
// naming scheme.
func ParseUploadedAt(key string) (time.Time, bool) {
	base := path.Base(key)
	base = strings.TrimSuffix(base, path.Ext(base))
	digits, found := strings.CutPrefix(base, filePrefix)
	if !found {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// OwnsKey reports whether key lives under the owner bucket's prefix. Every
// read or delete on behalf of a caller goes through this check.
func OwnsKey(bucket, key string) bool {
	return strings.HasPrefix(key, Prefix(bucket))
}

// IsMediaKey filters listing results down to recording files.
func IsMediaKey(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4", ".webm", ".mov":
		return true
	}
	return false
}

// Package pathgen builds deterministic, collision-resistant storage keys
// and guards every local filesystem operation against unsafe paths.
package pathgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/mwantia/gostow/pkg/storage"
)

const (
	// DefaultBucket is used when a file has no entity association.
	DefaultBucket = "files"

	// entityPrefix is the host ORM table prefix stripped from entity
	// names before bucketing.
	entityPrefix = "tbl_"

	// maxBaseLen caps the cleaned basename so the suffix and extension
	// always fit within common key length limits.
	maxBaseLen = 100

	suffixLen = 8

	replacement = '_'
)

// unsafe reports whether r must never appear in a stored filename:
// path separators, shell and glob metacharacters, control characters
// and the null byte.
func unsafe(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ';', '&', '$', '`', '\'', '!', '(', ')', '[', ']', '{', '}', '~', '#', '%', '^', ' ':
		return true
	}
	return r == 0 || unicode.IsControl(r)
}

// CleanFilename replaces every denylisted character with an underscore,
// collapses runs of underscores, trims them from both ends and falls
// back to "file" when nothing survives. Idempotent.
func CleanFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastWasRepl := false
	for _, r := range name {
		if unsafe(r) {
			if !lastWasRepl {
				b.WriteRune(replacement)
				lastWasRepl = true
			}
			continue
		}
		if r == replacement {
			if lastWasRepl {
				continue
			}
			lastWasRepl = true
		} else {
			lastWasRepl = false
		}
		b.WriteRune(r)
	}

	cleaned := strings.Trim(b.String(), string(replacement))
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

// ValidatePath rejects any path containing a parent-directory segment,
// an absolute prefix (leading separator or drive letter) or an embedded
// null byte. Every local filesystem operation calls this before
// touching disk.
func ValidatePath(p string) error {
	if strings.ContainsRune(p, 0) {
		return storage.PathSecurityf("path %q contains null byte", p)
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return storage.PathSecurityf("path %q is absolute", p)
	}
	if len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]) {
		return storage.PathSecurityf("path %q has a drive prefix", p)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if seg == ".." {
			return storage.PathSecurityf("path %q contains parent segment", p)
		}
	}
	return nil
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// EntityBucket normalizes an entity or table name into a filesystem-safe
// bucket token. The host ORM prefix is stripped, the rest is lowercased
// and cleaned; empty input maps to DefaultBucket.
func EntityBucket(entityType string) string {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(entityType)), entityPrefix)
	name = CleanFilename(name)
	if name == "file" && entityType == "" {
		return DefaultBucket
	}
	return name
}

// GeneratePath returns a relative storage key of the shape
//
//	{entityBucket}/{year}/{month}/{day}/{uniqueFilename}
//
// The unique filename is the cleaned basename plus an eight character
// suffix derived from a random seed, the file id and the original name,
// plus the original extension (or one derived from mimeType). The
// result always passes ValidatePath.
func GeneratePath(filename, entityType, mimeType string, ts time.Time, fileID int64) string {
	base := filename
	ext := ""
	if i := strings.LastIndex(filename, "."); i > 0 && i < len(filename)-1 {
		base = filename[:i]
		ext = strings.ToLower(filename[i+1:])
	}
	if ext == "" || CleanFilename(ext) != ext {
		ext = ExtensionForMime(mimeType)
	}

	base = CleanFilename(base)
	if len(base) > maxBaseLen {
		base = strings.Trim(base[:maxBaseLen], string(replacement))
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", uuid.NewString(), fileID, filename)))
	suffix := hex.EncodeToString(sum[:])[:suffixLen]

	return path.Join(
		EntityBucket(entityType),
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", int(ts.Month())),
		fmt.Sprintf("%02d", ts.Day()),
		fmt.Sprintf("%s_%s.%s", base, suffix, ext),
	)
}

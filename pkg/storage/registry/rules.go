package registry

import (
	"strings"

	"github.com/mwantia/gostow/pkg/storage"
)

// FileInfo is the rule-matching view of a new or existing file.
type FileInfo struct {
	MimeType   string
	Size       int64
	EntityType string
	FileTypeID int64
}

// PlacementRule routes files to a backend. Unset criteria match
// everything; set criteria must all match.
type PlacementRule struct {
	MimePattern string
	MinSize     int64
	MaxSize     int64
	EntityTypes map[string]bool
	FileTypeIDs map[int64]bool

	Backend    storage.BackendType
	ConfigName string
}

// VisibilityRule assigns public/private access per entity or mime type.
type VisibilityRule struct {
	MimePattern string
	EntityTypes map[string]bool
	Visibility  storage.Visibility
}

// MatchMime matches a mime type against a pattern where * spans any
// run of characters. The match is anchored on both ends; an empty
// pattern matches everything.
func MatchMime(pattern, mimeType string) bool {
	if pattern == "" {
		return true
	}

	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == mimeType
	}

	rest := mimeType
	for i, part := range parts {
		switch {
		case i == 0:
			if !strings.HasPrefix(rest, part) {
				return false
			}
			rest = rest[len(part):]
		case i == len(parts)-1:
			return strings.HasSuffix(rest, part)
		default:
			idx := strings.Index(rest, part)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(part):]
		}
	}
	return true
}

// Matches reports whether every set criterion of the rule holds.
func (r PlacementRule) Matches(info FileInfo) bool {
	if !MatchMime(r.MimePattern, info.MimeType) {
		return false
	}
	if r.MinSize > 0 && info.Size < r.MinSize {
		return false
	}
	if r.MaxSize > 0 && info.Size > r.MaxSize {
		return false
	}
	if len(r.EntityTypes) > 0 && !r.EntityTypes[info.EntityType] {
		return false
	}
	if len(r.FileTypeIDs) > 0 && !r.FileTypeIDs[info.FileTypeID] {
		return false
	}
	return true
}

// Matches reports whether every set criterion of the rule holds.
func (r VisibilityRule) Matches(info FileInfo) bool {
	if !MatchMime(r.MimePattern, info.MimeType) {
		return false
	}
	if len(r.EntityTypes) > 0 && !r.EntityTypes[info.EntityType] {
		return false
	}
	return true
}

// ResolvePlacement returns the first matching rule, nil when none
// match.
func ResolvePlacement(rules []PlacementRule, info FileInfo) *PlacementRule {
	for i := range rules {
		if rules[i].Matches(info) {
			return &rules[i]
		}
	}
	return nil
}

// ResolveVisibility is the single precedence chain for visibility:
// first matching rule, then the hardcoded contact fallback (contact
// attachments are served publicly by long-standing host convention),
// then the configured default.
func ResolveVisibility(rules []VisibilityRule, info FileInfo, def storage.Visibility) storage.Visibility {
	for i := range rules {
		if rules[i].Matches(info) {
			return rules[i].Visibility
		}
	}
	if strings.EqualFold(info.EntityType, "contact") || strings.EqualFold(info.EntityType, "tbl_contacts") {
		return storage.VisibilityPublic
	}
	return def
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func toIDSet(values []int64) map[int64]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

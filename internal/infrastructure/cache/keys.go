package cache

import (
	"fmt"
	"strings"
)

// Key segment conventions: <entity>:id:<id>, <entity>:all:<filters...>, <entity>:search:<term>:<filters...>
const (
	SegmentID     = "id"
	SegmentAll    = "all"
	SegmentSearch = "search"
)

// Key joins segments with ':'. Non-string segments are formatted with %v.
func Key(entity string, segments ...any) string {
	var b strings.Builder
	b.WriteString(entity)
	for _, s := range segments {
		b.WriteByte(':')
		fmt.Fprint(&b, s)
	}
	return b.String()
}

// IDKey returns the key of a single entity
func IDKey(entity string, id any) string {
	return Key(entity, SegmentID, id)
}

// ListKey returns the key of a filtered listing
func ListKey(entity string, filters ...any) string {
	return Key(entity, append([]any{SegmentAll}, filters...)...)
}

// SearchKey returns the key of a search result
func SearchKey(entity, term string, filters ...any) string {
	return Key(entity, append([]any{SegmentSearch, term}, filters...)...)
}

// AllPattern matches every listing of an entity
func AllPattern(entity string) string {
	return Key(entity, SegmentAll, "*")
}

// SearchPattern matches every search result of an entity
func SearchPattern(entity string) string {
	return Key(entity, SegmentSearch, "*")
}

// EntityPattern matches every key of an entity
func EntityPattern(entity string) string {
	return entity + ":*"
}

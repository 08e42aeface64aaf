package cache

import (
	"strconv"
	"strings"
)

// DefaultNamespace is the key prefix used for user entries.
const DefaultNamespace = "users"

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// KeySerializer derives the exact cache keys for point reads and list pages.
//
//	point:  <ns>:<id>
//	list:   <ns>:list:<limit>:<offset>
//	prefix: <ns>:list:
//
// Keys are part of the external contract with other processes sharing the
// same Redis, so the format must not change.
type KeySerializer struct {
	namespace string
}

// NewKeySerializer returns a serializer for namespace. An empty or blank
// namespace falls back to DefaultNamespace.
func NewKeySerializer(namespace string) KeySerializer {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return KeySerializer{namespace: namespace}
}

// Namespace returns the key prefix in use.
func (s KeySerializer) Namespace() string {
	if s.namespace == "" {
		return DefaultNamespace
	}
	return s.namespace
}

// PointKey returns the key of a single entity.
func (s KeySerializer) PointKey(id string) string {
	return s.Namespace() + KeySeparator + id
}

// ListKey returns the key of one page of the ordered listing.
func (s KeySerializer) ListKey(limit, offset int) string {
	var b strings.Builder
	b.Grow(len(s.Namespace()) + 16)
	b.WriteString(s.ListPrefix())
	b.WriteString(strconv.Itoa(limit))
	b.WriteString(KeySeparator)
	b.WriteString(strconv.Itoa(offset))
	return b.String()
}

// ListPrefix returns the prefix shared by every list page key.
func (s KeySerializer) ListPrefix() string {
	return s.Namespace() + KeySeparator + "list" + KeySeparator
}

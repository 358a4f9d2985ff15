// Package tags models the tag namespace of a repository as an append-only
// set of names and provides the pure operations the mirror is built on:
// ref filtering, set difference, and version-aware selection of the newest
// tag.
package tags

import (
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

const (
	// RefPrefix is the ref namespace tags live under.
	RefPrefix = "refs/tags/"

	// PeeledSuffix marks the dereferenced (peeled) entry that an annotated
	// tag produces in a remote ref listing.
	PeeledSuffix = "^{}"
)

// Set is a sorted, de-duplicated collection of tag names.
// The zero value is an empty set.
type Set struct {
	names []string
}

// NewSet builds a Set from names in any order. Empty and whitespace-only
// names are ignored.
func NewSet(names ...string) Set {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return Set{names: out}
}

// FromRefs builds a Set from full ref names as produced by a remote listing.
// Only refs under refs/tags/ are kept and peeled entries are dropped, so an
// annotated tag counts once.
func FromRefs(refs []string) Set {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if name, ok := TagName(ref); ok {
			names = append(names, name)
		}
	}
	return NewSet(names...)
}

// TagName extracts the tag name from a full ref. It reports false for refs
// outside refs/tags/ and for peeled entries.
func TagName(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, RefPrefix) || strings.HasSuffix(ref, PeeledSuffix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, RefPrefix)
	if name == "" {
		return "", false
	}
	return name, true
}

// Ref returns the full ref name for a tag.
func Ref(name string) string {
	return RefPrefix + name
}

// Names returns a copy of the sorted tag names.
func (s Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of tags in the set.
func (s Set) Len() int {
	return len(s.names)
}

// IsEmpty reports whether the set has no tags.
func (s Set) IsEmpty() bool {
	return len(s.names) == 0
}

// Contains reports whether name is in the set.
func (s Set) Contains(name string) bool {
	i := sort.SearchStrings(s.names, name)
	return i < len(s.names) && s.names[i] == name
}

// Union returns a new set holding the tags of both sets. The tag namespace
// only grows, so Union is how a set advances after a sync.
func (s Set) Union(other Set) Set {
	merged := make([]string, 0, len(s.names)+len(other.names))
	merged = append(merged, s.names...)
	merged = append(merged, other.names...)
	return NewSet(merged...)
}

// IsSubsetOf reports whether every tag in s is also in other.
func (s Set) IsSubsetOf(other Set) bool {
	for _, n := range s.names {
		if !other.Contains(n) {
			return false
		}
	}
	return true
}

// String joins the names with newlines, the format of the synced_tags output.
func (s Set) String() string {
	return strings.Join(s.names, "\n")
}

// ComputeMissing returns upstream minus local. Both inputs are sorted sets, so
// the difference is a single merge walk and the result does not depend on
// the order the names were originally listed in.
func ComputeMissing(local, upstream Set) Set {
	missing := make([]string, 0)
	i, j := 0, 0
	for j < len(upstream.names) {
		u := upstream.names[j]
		switch {
		case i >= len(local.names) || u < local.names[i]:
			missing = append(missing, u)
			j++
		case u == local.names[i]:
			i++
			j++
		default:
			i++
		}
	}
	return Set{names: missing}
}

// Latest returns the highest tag of the set under version ordering. It
// reports false for an empty set.
func Latest(s Set) (string, bool) {
	if s.IsEmpty() {
		return "", false
	}
	best := s.names[0]
	for _, n := range s.names[1:] {
		if Compare(n, best) > 0 {
			best = n
		}
	}
	return best, true
}

// SortByVersion returns the names ordered from lowest to highest version.
func SortByVersion(s Set) []string {
	out := s.Names()
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j]) < 0
	})
	return out
}

// Compare orders two tag names. Numeric segments compare as numbers, so
// 0.10.0 > 0.9.0, and a prerelease sorts below its release. Names that do
// not parse as versions sort below every version and compare lexically
// among themselves.
func Compare(a, b string) int {
	va, errA := goversion.NewVersion(a)
	vb, errB := goversion.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// 1.0 and 1.0.0 are equal versions; keep the order total.
		return strings.Compare(a, b)
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	default:
		return strings.Compare(a, b)
	}
}

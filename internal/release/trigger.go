package release

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// ErrInvalidTrigger is returned when a trigger cannot be resolved to a tag.
var ErrInvalidTrigger = errors.New("invalid release trigger")

// releaseTagPattern matches the tags a tag-push event publishes: three
// dot-separated numeric segments.
var releaseTagPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// IsReleaseTag reports whether a pushed tag name should trigger a release.
func IsReleaseTag(name string) bool {
	return releaseTagPattern.MatchString(name)
}

// Trigger is how a publish run was started. It is either an ExplicitTag
// (manual or programmatic invocation with a tag input) or an AmbientRef
// (a tag push where the ref comes from the event).
type Trigger interface {
	isTrigger()
	fmt.Stringer
}

// ExplicitTag is a publish request naming its tag directly.
type ExplicitTag struct {
	Name string
}

// AmbientRef is a publish request carrying the ref of a tag-push event.
type AmbientRef struct {
	Ref string
}

func (ExplicitTag) isTrigger() {}
func (AmbientRef) isTrigger()  {}

func (t ExplicitTag) String() string { return "tag input " + t.Name }
func (t AmbientRef) String() string  { return "pushed ref " + t.Ref }

// Resolved is the canonical form every trigger is reduced to before any
// release work starts.
type Resolved struct {
	// Tag is the bare tag name, e.g. "1.2.3".
	Tag string
	// Ref is the full ref, e.g. "refs/tags/1.2.3".
	Ref string
}

// TriggerFor picks the trigger variant from the two possible inputs: an
// explicit tag wins, otherwise the ambient ref of the event is used.
func TriggerFor(tagInput, ambientRef string) (Trigger, error) {
	tagInput = strings.TrimSpace(tagInput)
	ambientRef = strings.TrimSpace(ambientRef)

	switch {
	case tagInput != "":
		return ExplicitTag{Name: tagInput}, nil
	case ambientRef != "":
		return AmbientRef{Ref: ambientRef}, nil
	default:
		return nil, fmt.Errorf("%w: no tag input and no triggering ref", ErrInvalidTrigger)
	}
}

// ResolveTrigger reduces a trigger to a single canonical tag and ref.
//
// Explicit tags are accepted as either "1.2.3" or "refs/tags/1.2.3" and must
// be valid git tag names. Ambient
// refs must be tag refs whose name matches the release tag pattern, the same
// filter the push event applies.
func ResolveTrigger(t Trigger) (Resolved, error) {
	switch v := t.(type) {
	case ExplicitTag:
		name := strings.TrimSpace(v.Name)
		if n, ok := tags.TagName(name); ok {
			name = n
		}
		if name == "" || strings.HasPrefix(name, "refs/") {
			return Resolved{}, fmt.Errorf("%w: bad tag %q", ErrInvalidTrigger, v.Name)
		}
		// Rejects revision syntax like "1.0.0^{}" or "a..b" that would
		// otherwise resolve through rev-parse.
		if err := plumbing.NewTagReferenceName(name).Validate(); err != nil {
			return Resolved{}, fmt.Errorf("%w: bad tag %q: %v", ErrInvalidTrigger, v.Name, err)
		}
		return Resolved{Tag: name, Ref: tags.Ref(name)}, nil

	case AmbientRef:
		name, ok := tags.TagName(v.Ref)
		if !ok {
			return Resolved{}, fmt.Errorf("%w: %q is not a tag ref", ErrInvalidTrigger, v.Ref)
		}
		if !IsReleaseTag(name) {
			return Resolved{}, fmt.Errorf("%w: tag %q does not match release pattern", ErrInvalidTrigger, name)
		}
		return Resolved{Tag: name, Ref: tags.Ref(name)}, nil

	case nil:
		return Resolved{}, fmt.Errorf("%w: nil trigger", ErrInvalidTrigger)

	default:
		return Resolved{}, fmt.Errorf("%w: unsupported trigger %T", ErrInvalidTrigger, t)
	}
}

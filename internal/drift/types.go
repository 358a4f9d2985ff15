// Package drift provides the status report of a tag mirror deployment.
// It compares three sources of truth: upstream tags, fork tags, and the
// releases published on the fork.
package drift

// DriftType represents the type of drift detected for a tag
type DriftType int

const (
	DriftOK DriftType = iota
	// DriftMissingTag is an upstream tag the fork does not have yet.
	DriftMissingTag
	// DriftMissingRelease is a release-pattern fork tag with no release.
	DriftMissingRelease
	// DriftPartialRelease is a release that lacks some matrix archives.
	DriftPartialRelease
)

// String returns human-readable drift type name
func (d DriftType) String() string {
	switch d {
	case DriftOK:
		return "OK"
	case DriftMissingTag:
		return "MISSING_TAG"
	case DriftMissingRelease:
		return "MISSING_RELEASE"
	case DriftPartialRelease:
		return "PARTIAL_RELEASE"
	default:
		return "UNKNOWN"
	}
}

// ReleaseState is a published release and the names of its attached assets.
type ReleaseState struct {
	Tag    string
	ID     int64
	Draft  bool
	Assets []string
}

// DriftResult represents a single drift detection result
type DriftResult struct {
	Tag       string
	DriftType DriftType
	ReleaseID int64
	// MissingAssets lists expected archive names absent from the release,
	// in matrix order.
	MissingAssets []string
}

// Options narrows detection.
type Options struct {
	// Since ignores tags that sort below it under version ordering. Empty
	// checks every tag.
	Since string
}

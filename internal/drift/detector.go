package drift

import (
	"sort"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
	"github.com/ZebulonRouseFrantzich/tagrelay/internal/tags"
)

// DetectDrift performs a three-way comparison of upstream tags, fork tags and
// releases, and returns one result per tag, ordered by version.
//
// The algorithm:
//  1. Build a lookup map of releases by tag
//  2. Every upstream tag the fork lacks is DriftMissingTag
//  3. Every fork tag that looks like a release tag is classified against
//     its release and expectedAssets
//  4. Other fork tags are DriftOK; they are mirrored but never published
//
// Parameters:
//   - upstream: tags listed on the upstream remote
//   - local: tags listed on the fork's origin remote
//   - releases: releases published on the fork
//   - expectedAssets: archive names every complete release carries
func DetectDrift(upstream, local tags.Set, releases []ReleaseState, expectedAssets []string, opts Options) []DriftResult {
	var results []DriftResult

	releaseMap := make(map[string]ReleaseState, len(releases))
	for _, r := range releases {
		releaseMap[r.Tag] = r
	}

	for _, tag := range tags.ComputeMissing(local, upstream).Names() {
		if skip(tag, opts) {
			continue
		}
		results = append(results, DriftResult{Tag: tag, DriftType: DriftMissingTag})
	}

	for _, tag := range local.Names() {
		if skip(tag, opts) {
			continue
		}
		result := DriftResult{Tag: tag}
		if release.IsReleaseTag(tag) {
			rel, hasRelease := releaseMap[tag]
			result.DriftType, result.MissingAssets = classifyDrift(rel, hasRelease, expectedAssets)
			result.ReleaseID = rel.ID
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return tags.Compare(results[i].Tag, results[j].Tag) < 0
	})
	return results
}

// classifyDrift determines the drift of one fork tag.
func classifyDrift(rel ReleaseState, hasRelease bool, expectedAssets []string) (DriftType, []string) {
	if !hasRelease {
		return DriftMissingRelease, nil
	}

	attached := make(map[string]bool, len(rel.Assets))
	for _, a := range rel.Assets {
		attached[a] = true
	}

	var missing []string
	for _, want := range expectedAssets {
		if !attached[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return DriftPartialRelease, missing
	}
	return DriftOK, nil
}

func skip(tag string, opts Options) bool {
	return opts.Since != "" && tags.Compare(tag, opts.Since) < 0
}

// ExpectedAssets returns the archive names a complete release carries for
// matrix under prefix.
func ExpectedAssets(prefix string, matrix []release.Target) []string {
	out := make([]string, 0, len(matrix))
	for _, t := range matrix {
		out = append(out, t.AssetName(prefix))
	}
	return out
}

// HasDrift reports whether any result is not DriftOK.
func HasDrift(results []DriftResult) bool {
	for _, r := range results {
		if r.DriftType != DriftOK {
			return true
		}
	}
	return false
}

// Count returns the number of results per drift type.
func Count(results []DriftResult) map[DriftType]int {
	counts := make(map[DriftType]int)
	for _, r := range results {
		counts[r.DriftType]++
	}
	return counts
}

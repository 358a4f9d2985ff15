package drift

import (
	"fmt"
	"strings"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// FormatDriftReport formats drift results for user display
func FormatDriftReport(results []DriftResult) string {
	var sb strings.Builder
	// Pre-allocate for typical report size (header + entries + summary)
	sb.Grow(1024 + len(results)*256)

	sb.WriteString("\n" + rule)
	sb.WriteString("STATUS REPORT\n")
	sb.WriteString(rule + "\n")

	counts := Count(results)

	// Display each drift (skip OK entries in detailed view)
	for _, r := range results {
		if r.DriftType == DriftOK {
			continue
		}
		sb.WriteString(formatDriftEntry(r))
		sb.WriteString("\n")
	}

	okCount := counts[DriftOK]
	if okCount > 0 {
		sb.WriteString(fmt.Sprintf("[OK] ✓\n  %d tags in sync\n\n", okCount))
	}

	sb.WriteString(rule)

	totalDrifts := len(results) - okCount
	if totalDrifts == 0 {
		sb.WriteString("SUMMARY: No drifts detected ✓\n")
	} else {
		sb.WriteString(fmt.Sprintf("SUMMARY: %d drifts detected\n", totalDrifts))

		var parts []string
		if counts[DriftMissingTag] > 0 {
			parts = append(parts, fmt.Sprintf("%d missing tag", counts[DriftMissingTag]))
		}
		if counts[DriftMissingRelease] > 0 {
			parts = append(parts, fmt.Sprintf("%d missing release", counts[DriftMissingRelease]))
		}
		if counts[DriftPartialRelease] > 0 {
			parts = append(parts, fmt.Sprintf("%d partial release", counts[DriftPartialRelease]))
		}
		sb.WriteString("  " + strings.Join(parts, ", ") + "\n")
	}

	sb.WriteString(rule)
	return sb.String()
}

// formatDriftEntry formats a single drift entry
func formatDriftEntry(r DriftResult) string {
	var sb strings.Builder
	sb.Grow(256)

	switch r.DriftType {
	case DriftMissingTag:
		sb.WriteString("[MISSING TAG]\n")
		sb.WriteString(fmt.Sprintf("  %s\n", r.Tag))
		sb.WriteString("    → Present upstream but not pushed to the fork\n")

	case DriftMissingRelease:
		sb.WriteString("[MISSING RELEASE]\n")
		sb.WriteString(fmt.Sprintf("  %s\n", r.Tag))
		sb.WriteString("    → Tag is mirrored but no release was published\n")

	case DriftPartialRelease:
		sb.WriteString("[PARTIAL RELEASE]\n")
		sb.WriteString(fmt.Sprintf("  %s (release %d)\n", r.Tag, r.ReleaseID))
		for _, a := range r.MissingAssets {
			sb.WriteString(fmt.Sprintf("    missing: %s\n", a))
		}
		sb.WriteString("    → Some matrix archives were never attached\n")
	}

	return sb.String()
}

package drift

import (
	"fmt"
	"strings"

	"github.com/ZebulonRouseFrantzich/tagrelay/internal/release"
)

// RepairAction is the command that resolves one drift.
type RepairAction int

const (
	ActionNone RepairAction = iota
	// ActionSync runs the tag mirror.
	ActionSync
	// ActionPublish creates the release and runs the whole matrix.
	ActionPublish
	// ActionBuild runs the missing targets against the existing release.
	ActionBuild
)

// String returns human-readable action name
func (a RepairAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionSync:
		return "sync"
	case ActionPublish:
		return "publish"
	case ActionBuild:
		return "build"
	default:
		return "unknown"
	}
}

// Repair is one suggested action.
type Repair struct {
	Tag     string
	Action  RepairAction
	Targets []release.Target
}

// Command renders the tagrelay invocation that performs the repair.
func (r Repair) Command() string {
	switch r.Action {
	case ActionSync:
		return "tagrelay sync"
	case ActionPublish:
		return fmt.Sprintf("tagrelay publish --tag %s", r.Tag)
	case ActionBuild:
		args := []string{"tagrelay build --tag " + r.Tag}
		for _, t := range r.Targets {
			args = append(args, "--target "+t.Triple)
		}
		return strings.Join(args, " ")
	default:
		return ""
	}
}

// PlanRepairs maps drift results to actions. Missing tags collapse into a
// single sync, since one mirror run pushes all of them. Partial releases
// name the matrix targets whose archives are absent.
func PlanRepairs(results []DriftResult, prefix string, matrix []release.Target) []Repair {
	byAsset := make(map[string]release.Target, len(matrix))
	for _, t := range matrix {
		byAsset[t.AssetName(prefix)] = t
	}

	var plan []Repair
	synced := false
	for _, r := range results {
		switch r.DriftType {
		case DriftMissingTag:
			if !synced {
				plan = append(plan, Repair{Tag: r.Tag, Action: ActionSync})
				synced = true
			}
		case DriftMissingRelease:
			plan = append(plan, Repair{Tag: r.Tag, Action: ActionPublish})
		case DriftPartialRelease:
			repair := Repair{Tag: r.Tag, Action: ActionBuild}
			for _, name := range r.MissingAssets {
				if t, ok := byAsset[name]; ok {
					repair.Targets = append(repair.Targets, t)
				}
			}
			plan = append(plan, repair)
		}
	}
	return plan
}

// FormatRepairPlan lists the commands of plan, one per line.
func FormatRepairPlan(plan []Repair) string {
	if len(plan) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("To repair:\n")
	for _, r := range plan {
		sb.WriteString("  " + r.Command() + "\n")
	}
	return sb.String()
}

package ranker

import (
	"math"
	"sort"
	"strings"

	"blastradius/internal/criticality"
	"blastradius/internal/domain"
	"blastradius/internal/graph"
	"blastradius/internal/reach"
)

// DefaultDecayFactor is applied once per trust hop: a resource reached only
// through cross-boundary trust weighs less than a same-boundary one.
const DefaultDecayFactor = 0.7

// destructiveActions are action verbs that can destroy or take over a
// resource outright
var destructiveActions = []string{"delete", "destroy", "terminate", "admin", "assume", "escalate"}

// writeActions are action verbs that can modify a resource
var writeActions = []string{"write", "put", "create", "update", "modify", "attach", "add"}

// readActions are action verbs limited to observation
var readActions = []string{"read", "get", "list", "describe", "view"}

// Ranker orders an identity's reachable resources by composite impact:
// criticality x permission strength x trust-hop decay
type Ranker struct {
	scorer      *criticality.Scorer
	store       *graph.Store
	decayFactor float64
	topN        int
}

// New returns a ranker. decayFactor outside (0, 1] selects the default;
// topN <= 0 means unlimited.
func New(store *graph.Store, scorer *criticality.Scorer, decayFactor float64, topN int) *Ranker {
	if decayFactor <= 0 || decayFactor > 1 {
		decayFactor = DefaultDecayFactor
	}
	return &Ranker{scorer: scorer, store: store, decayFactor: decayFactor, topN: topN}
}

// Rank produces the ordered findings for one identity. The ordering is
// deterministic: descending composite score, then descending criticality,
// then ascending resource id.
func (r *Ranker) Rank(identityID string, resources []reach.ReachableResource) []domain.RankedFinding {
	findings := make([]domain.RankedFinding, 0, len(resources))

	for _, resource := range resources {
		node, err := r.store.Node(resource.ResourceID)
		if err != nil {
			continue
		}
		crit := r.scorer.Score(node)
		strength := PermissionStrength(resource.Actions)
		decay := math.Pow(r.decayFactor, float64(resource.TrustHops))

		findings = append(findings, domain.RankedFinding{
			IdentityID:     identityID,
			ResourceID:     resource.ResourceID,
			Actions:        resource.Actions,
			Criticality:    crit,
			CompositeScore: crit * strength * decay,
			TrustHops:      resource.TrustHops,
			Path:           resource.Path,
		})
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].CompositeScore != findings[j].CompositeScore {
			return findings[i].CompositeScore > findings[j].CompositeScore
		}
		if findings[i].Criticality != findings[j].Criticality {
			return findings[i].Criticality > findings[j].Criticality
		}
		return findings[i].ResourceID < findings[j].ResourceID
	})

	if r.topN > 0 && len(findings) > r.topN {
		findings = findings[:r.topN]
	}
	return findings
}

// PermissionStrength weighs an action set by its most powerful member:
// destructive 1.0, write 0.75, read 0.4, anything unrecognized 0.5.
// A full wildcard counts as destructive.
func PermissionStrength(actions []string) float64 {
	strength := 0.0
	for _, action := range actions {
		s := actionStrength(action)
		if s > strength {
			strength = s
		}
	}
	return strength
}

func actionStrength(action string) float64 {
	lowered := strings.ToLower(action)
	if lowered == "*" {
		return 1.0
	}
	for _, verb := range destructiveActions {
		if strings.Contains(lowered, verb) {
			return 1.0
		}
	}
	for _, verb := range writeActions {
		if strings.Contains(lowered, verb) {
			return 0.75
		}
	}
	for _, verb := range readActions {
		if strings.Contains(lowered, verb) {
			return 0.4
		}
	}
	return 0.5
}

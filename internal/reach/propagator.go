package reach

import (
	"context"
	"sort"

	"blastradius/internal/domain"
	"blastradius/internal/graph"
	"blastradius/internal/logging"
	"blastradius/internal/policy"
	"blastradius/internal/resolver"
)

// DefaultMaxTrustHops bounds cross-boundary expansion
const DefaultMaxTrustHops = 3

// ReachableResource is one concretely reachable resource node with the
// actions attainable on it. TrustHops is the minimal number of TRUSTS edges
// crossed to reach the resource's boundary; 0 means same-boundary access.
type ReachableResource struct {
	ResourceID string
	Actions    []string
	TrustHops  int
	Path       []string
}

// Propagator expands effective grants into concrete reachable resources by
// matching resource patterns, descending CONTAINS hierarchies, and crossing
// TRUSTS boundaries up to the configured hop limit.
type Propagator struct {
	store        *graph.Store
	maxTrustHops int
	reqCtx       map[string]string
}

// New returns a propagator over the given store. maxTrustHops <= 0 selects
// the default of 3.
func New(store *graph.Store, maxTrustHops int, reqCtx map[string]string) *Propagator {
	if maxTrustHops <= 0 {
		maxTrustHops = DefaultMaxTrustHops
	}
	return &Propagator{store: store, maxTrustHops: maxTrustHops, reqCtx: reqCtx}
}

type reachEntry struct {
	actions map[string]bool
	hops    int
	path    []string
}

// Expand computes the reachable resource set for one identity's grant set.
// On context cancellation or deadline it returns the resources accumulated
// so far together with the context error, so callers can emit a partial,
// incomplete finding instead of dropping the identity entirely.
func (p *Propagator) Expand(ctx context.Context, grants *resolver.GrantSet) ([]ReachableResource, error) {
	boundaryHops := p.reachableBoundaries(grants.IdentityID)
	denies := denyStatements(grants)
	resources := p.store.NodesOfKind(domain.NodeKindResource)

	reached := make(map[string]*reachEntry)
	var walkErr error

grantLoop:
	for _, grant := range grants.Allows() {
		for _, resource := range resources {
			if err := ctx.Err(); err != nil {
				walkErr = err
				break grantLoop
			}
			match, err := policy.Match(grant.ResourcePattern, resource.ID)
			if err != nil || !match {
				continue
			}
			p.descend(ctx, resource, grant, denies, boundaryHops, reached)
		}
	}

	out := make([]ReachableResource, 0, len(reached))
	for resourceID, entry := range reached {
		if len(entry.actions) == 0 {
			continue
		}
		actions := make([]string, 0, len(entry.actions))
		for action := range entry.actions {
			actions = append(actions, action)
		}
		sort.Strings(actions)
		out = append(out, ReachableResource{
			ResourceID: resourceID,
			Actions:    actions,
			TrustHops:  entry.hops,
			Path:       entry.path,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })

	logging.GetMetrics().RecordResourcesExpanded(len(out))
	return out, walkErr
}

// descend walks the CONTAINS hierarchy below a pattern-matched resource,
// visited-set guarded so containment cycles terminate. Each node on the walk
// is admitted individually: its boundary must be reachable within the hop
// limit and no DENY grant may match it for the action.
func (p *Propagator) descend(ctx context.Context, root *domain.Node, grant domain.EffectiveGrant, denies []*domain.PolicyStatement, boundaryHops map[string]int, reached map[string]*reachEntry) {
	type queued struct {
		node *domain.Node
		path []string
	}

	visited := map[string]bool{root.ID: true}
	queue := []queued{{node: root, path: appendPath(grant.Path, root.ID)}}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return
		}
		current := queue[0]
		queue = queue[1:]

		hops, reachable := p.boundaryDistance(current.node, boundaryHops)
		if reachable && policy.Evaluate(denies, grant.Action, current.node.ID, p.reqCtx) != domain.DecisionDeny {
			p.admit(reached, current.node.ID, grant.Action, hops, current.path)
		}

		for _, edge := range p.store.Out(current.node.ID, domain.EdgeTypeContains) {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			child, err := p.store.Node(edge.To)
			if err != nil {
				continue
			}
			queue = append(queue, queued{node: child, path: appendPath(current.path, child.ID)})
		}
	}
}

// admit records an action on a resource, keeping the minimal trust-hop
// count and the path that achieved it
func (p *Propagator) admit(reached map[string]*reachEntry, resourceID, action string, hops int, path []string) {
	entry, ok := reached[resourceID]
	if !ok {
		entry = &reachEntry{actions: make(map[string]bool), hops: hops, path: path}
		reached[resourceID] = entry
	} else if hops < entry.hops {
		entry.hops = hops
		entry.path = path
	}
	entry.actions[action] = true
}

// reachableBoundaries runs a BFS over TRUSTS edges from the identity's home
// boundary, honoring per-edge conditions, and returns the minimal hop count
// for every boundary reachable within the limit. Cyclic trust graphs
// terminate via the hop map doubling as a visited set.
func (p *Propagator) reachableBoundaries(identityID string) map[string]int {
	hops := make(map[string]int)

	identityNode, err := p.store.Node(identityID)
	if err != nil {
		return hops
	}
	home := identityNode.Attr(domain.AttrBoundary)
	if home == "" {
		return hops
	}
	hops[home] = 0

	queue := []string{home}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if hops[current] >= p.maxTrustHops {
			continue
		}
		for _, edge := range p.store.Out(current, domain.EdgeTypeTrusts) {
			if _, seen := hops[edge.To]; seen {
				continue
			}
			if !policy.ConditionsMatch(edge.Conditions, p.reqCtx) {
				continue
			}
			hops[edge.To] = hops[current] + 1
			queue = append(queue, edge.To)
		}
	}
	return hops
}

// boundaryDistance returns the trust-hop distance to a resource's boundary.
// A resource with no boundary attribute is local to every identity.
func (p *Propagator) boundaryDistance(resource *domain.Node, boundaryHops map[string]int) (int, bool) {
	boundary := resource.Attr(domain.AttrBoundary)
	if boundary == "" {
		return 0, true
	}
	hops, ok := boundaryHops[boundary]
	return hops, ok
}

// denyStatements rebuilds the identity's DENY grants as statements so the
// containment walk applies the same deny-overrides precedence as statement
// evaluation. A deny local to a descendant overrides the allow inherited
// through its container, without blocking siblings.
func denyStatements(grants *resolver.GrantSet) []*domain.PolicyStatement {
	denies := grants.Denies()
	stmts := make([]*domain.PolicyStatement, 0, len(denies))
	for _, deny := range denies {
		stmts = append(stmts, &domain.PolicyStatement{
			Effect:          domain.EffectDeny,
			Actions:         []string{deny.Action},
			ResourcePattern: deny.ResourcePattern,
		})
	}
	return stmts
}

func appendPath(path []string, id string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, id)
}

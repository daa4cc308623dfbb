package resolver

import (
	"context"
	"fmt"

	"blastradius/internal/domain"
	"blastradius/internal/graph"
	"blastradius/internal/logging"
	"blastradius/internal/policy"
)

// sourcedGrant is an evaluated grant tagged with the node that carries the
// GRANTS edge. It holds no membership path, so closure evaluations can be
// shared across identities; each identity attaches its own shortest path.
type sourcedGrant struct {
	sourceID string
	action   string
	pattern  string
	effect   domain.Effect
}

// GrantSet is the effective permission set of one identity: every ALLOW and
// DENY grant reachable through membership closure, with shortest membership
// paths and warnings for grants that had to be skipped.
type GrantSet struct {
	IdentityID string
	Grants     []domain.EffectiveGrant
	Warnings   []string
}

// Allows returns the grants with effect ALLOW
func (g *GrantSet) Allows() []domain.EffectiveGrant {
	return g.byEffect(domain.EffectAllow)
}

// Denies returns the grants with effect DENY
func (g *GrantSet) Denies() []domain.EffectiveGrant {
	return g.byEffect(domain.EffectDeny)
}

func (g *GrantSet) byEffect(effect domain.Effect) []domain.EffectiveGrant {
	out := make([]domain.EffectiveGrant, 0, len(g.Grants))
	for _, grant := range g.Grants {
		if grant.Effect == effect {
			out = append(out, grant)
		}
	}
	return out
}

// Resolver computes effective grants over an immutable graph snapshot.
// Safe for concurrent use by multiple workers.
type Resolver struct {
	store *graph.Store
	memo  *Memo
}

// New returns a resolver over the given store, sharing the run-scoped memo
func New(store *graph.Store, memo *Memo) *Resolver {
	return &Resolver{store: store, memo: memo}
}

// Resolve computes the identity's effective grant set. Membership closure is
// a BFS over MEMBER_OF edges with a visited set, so cyclic membership
// terminates; BFS order guarantees the first path found to any ancestor is
// a shortest one. actions filters the grants of interest; empty means all,
// in which case grants are emitted per statement action pattern. Returns
// NotFoundError if the identity node does not exist.
func (r *Resolver) Resolve(ctx context.Context, identityID string, actions []string, reqCtx map[string]string) (*GrantSet, error) {
	if !r.store.HasNode(identityID) {
		return nil, &domain.NotFoundError{ID: identityID}
	}

	closure, parents, err := r.membershipClosure(ctx, identityID)
	if err != nil {
		return nil, err
	}

	key := memoKey(closure, actions, reqCtx)
	res, hit := r.memo.Do(key, func() memoResult {
		return r.evaluateClosure(closure, actions, reqCtx)
	})
	if hit {
		logging.GetMetrics().RecordCacheHit()
	}

	set := &GrantSet{IdentityID: identityID, Warnings: res.warnings}

	// Collapse duplicate (action, pattern, effect) grants to the first
	// occurrence; closure is in BFS order, so the first source is on a
	// shortest membership path.
	seen := make(map[sourcedGrant]bool)
	for _, g := range res.grants {
		dedup := sourcedGrant{action: g.action, pattern: g.pattern, effect: g.effect}
		if seen[dedup] {
			continue
		}
		seen[dedup] = true
		set.Grants = append(set.Grants, domain.EffectiveGrant{
			IdentityID:      identityID,
			Action:          g.action,
			ResourcePattern: g.pattern,
			Effect:          g.effect,
			Path:            pathTo(identityID, g.sourceID, parents),
		})
	}

	logging.GetMetrics().RecordGrantsEvaluated(len(res.grants))
	return set, nil
}

// membershipClosure returns the identity and all transitive MEMBER_OF
// ancestors in BFS order, plus the parent pointers of the BFS tree.
func (r *Resolver) membershipClosure(ctx context.Context, identityID string) ([]string, map[string]string, error) {
	closure := []string{identityID}
	parents := make(map[string]string)
	visited := map[string]bool{identityID: true}

	queue := []string{identityID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		current := queue[0]
		queue = queue[1:]

		for _, edge := range r.store.Out(current, domain.EdgeTypeMemberOf) {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			parents[edge.To] = current
			closure = append(closure, edge.To)
			queue = append(queue, edge.To)
		}
	}

	logging.GetMetrics().RecordNodesVisited(len(closure))
	return closure, parents, nil
}

// evaluateClosure walks the GRANTS edges of every node in the closure and
// evaluates each statement against the requested actions and context.
// Malformed statements are skipped with a warning so one bad grant does not
// mask the rest of the identity's blast radius.
func (r *Resolver) evaluateClosure(closure []string, actions []string, reqCtx map[string]string) memoResult {
	var res memoResult

	for _, nodeID := range closure {
		for _, edge := range r.store.Out(nodeID, domain.EdgeTypeGrants) {
			stmt := edge.Statement
			if err := policy.Validate(stmt); err != nil {
				res.warnings = append(res.warnings,
					fmt.Sprintf("skipping malformed grant on %s: %v", nodeID, err))
				continue
			}
			if !policy.ConditionsMatch(stmt.Conditions, reqCtx) {
				continue
			}

			if len(actions) == 0 {
				// No action filter: emit one grant per statement action pattern
				for _, action := range stmt.Actions {
					res.grants = append(res.grants, sourcedGrant{
						sourceID: nodeID,
						action:   action,
						pattern:  stmt.ResourcePattern,
						effect:   stmt.Effect,
					})
				}
				continue
			}

			for _, action := range actions {
				match, err := policy.MatchAny(stmt.Actions, action)
				if err != nil {
					res.warnings = append(res.warnings,
						fmt.Sprintf("skipping grant on %s: %v", nodeID, err))
					break
				}
				if match {
					res.grants = append(res.grants, sourcedGrant{
						sourceID: nodeID,
						action:   action,
						pattern:  stmt.ResourcePattern,
						effect:   stmt.Effect,
					})
				}
			}
		}
	}

	return res
}

// pathTo reconstructs the membership path from the identity to the grant
// source by following the BFS parent pointers back from the source.
func pathTo(identityID, sourceID string, parents map[string]string) []string {
	if identityID == sourceID {
		return []string{identityID}
	}
	var reversed []string
	for current := sourceID; ; {
		reversed = append(reversed, current)
		parent, ok := parents[current]
		if !ok {
			break
		}
		current = parent
	}
	path := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

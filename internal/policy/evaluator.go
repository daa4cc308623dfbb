package policy

import (
	"fmt"

	"blastradius/internal/domain"
)

// Validate checks that a statement is well-formed enough to evaluate.
// Callers skip invalid statements with a warning rather than aborting the
// identity's resolution.
func Validate(stmt *domain.PolicyStatement) error {
	if stmt == nil {
		return fmt.Errorf("nil statement")
	}
	if stmt.Effect != domain.EffectAllow && stmt.Effect != domain.EffectDeny {
		return fmt.Errorf("unknown effect %q", stmt.Effect)
	}
	if len(stmt.Actions) == 0 {
		return fmt.Errorf("statement has no actions")
	}
	for _, action := range stmt.Actions {
		if action == "" {
			return fmt.Errorf("empty action pattern")
		}
	}
	if stmt.ResourcePattern == "" {
		return fmt.Errorf("empty resource pattern")
	}
	return nil
}

// ConditionsMatch reports whether every condition key has the expected value
// in the request context. A statement with no conditions always matches.
func ConditionsMatch(conditions, reqCtx map[string]string) bool {
	for key, want := range conditions {
		if reqCtx[key] != want {
			return false
		}
	}
	return true
}

// Applies reports whether a statement matches the candidate
// (action, resource) pair under the given request context.
func Applies(stmt *domain.PolicyStatement, action, resource string, reqCtx map[string]string) (bool, error) {
	if err := Validate(stmt); err != nil {
		return false, err
	}
	if !ConditionsMatch(stmt.Conditions, reqCtx) {
		return false, nil
	}
	actionMatch, err := MatchAny(stmt.Actions, action)
	if err != nil {
		return false, err
	}
	if !actionMatch {
		return false, nil
	}
	return Match(stmt.ResourcePattern, resource)
}

// Evaluate applies deny-overrides-allow over the applicable statements:
// any matching DENY defeats every ALLOW regardless of order; at least one
// matching ALLOW with no DENY yields ALLOW; otherwise NOT_APPLICABLE.
// NOT_APPLICABLE is distinct from DENY: it means no statement spoke to the
// request at all. Malformed statements are ignored here; callers surface
// them via Validate.
func Evaluate(stmts []*domain.PolicyStatement, action, resource string, reqCtx map[string]string) domain.Decision {
	allowed := false
	for _, stmt := range stmts {
		applies, err := Applies(stmt, action, resource, reqCtx)
		if err != nil || !applies {
			continue
		}
		if stmt.Effect == domain.EffectDeny {
			return domain.DecisionDeny
		}
		allowed = true
	}
	if allowed {
		return domain.DecisionAllow
	}
	return domain.DecisionNotApplicable
}

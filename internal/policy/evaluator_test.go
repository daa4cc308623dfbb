package policy

import (
	"testing"

	"blastradius/internal/domain"
)

// =============================================================================
// Pattern matching TESTS
// =============================================================================

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
		wantErr bool
	}{
		{name: "exact match", pattern: "db/customers", value: "db/customers", want: true},
		{name: "exact mismatch", pattern: "db/customers", value: "db/orders", want: false},
		{name: "full wildcard", pattern: "*", value: "anything/at/all", want: true},
		{name: "suffix wildcard", pattern: "db/*", value: "db/customers", want: true},
		{name: "suffix wildcard empty remainder", pattern: "db/*", value: "db/", want: true},
		{name: "suffix wildcard no match", pattern: "db/*", value: "s3/bucket", want: false},
		{name: "prefix wildcard", pattern: "*/secrets", value: "vault/secrets", want: true},
		{name: "action suffix wildcard", pattern: "read*", value: "readObject", want: true},
		{name: "action suffix wildcard exact", pattern: "read*", value: "read", want: true},
		{name: "action suffix wildcard no match", pattern: "read*", value: "write"},
		{name: "question mark matches one char", pattern: "db-?", value: "db-1", want: true},
		{name: "question mark needs a char", pattern: "db-?", value: "db-", want: false},
		{name: "wildcard spans separators", pattern: "db/*", value: "db/eu/customers", want: true},
		{name: "empty pattern is malformed", pattern: "", value: "db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.pattern, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Match(%q, %q) error = %v, wantErr %v", tt.pattern, tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Evaluate TESTS
// =============================================================================

func allowStmt(actions []string, pattern string) *domain.PolicyStatement {
	return &domain.PolicyStatement{Effect: domain.EffectAllow, Actions: actions, ResourcePattern: pattern}
}

func denyStmt(actions []string, pattern string) *domain.PolicyStatement {
	return &domain.PolicyStatement{Effect: domain.EffectDeny, Actions: actions, ResourcePattern: pattern}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		stmts    []*domain.PolicyStatement
		action   string
		resource string
		reqCtx   map[string]string
		want     domain.Decision
	}{
		{
			name:     "single allow",
			stmts:    []*domain.PolicyStatement{allowStmt([]string{"read"}, "db/*")},
			action:   "read",
			resource: "db/customers",
			want:     domain.DecisionAllow,
		},
		{
			name:     "no matching statement is not applicable",
			stmts:    []*domain.PolicyStatement{allowStmt([]string{"read"}, "db/*")},
			action:   "write",
			resource: "db/customers",
			want:     domain.DecisionNotApplicable,
		},
		{
			name: "deny overrides allow",
			stmts: []*domain.PolicyStatement{
				allowStmt([]string{"write"}, "db/*"),
				denyStmt([]string{"write"}, "db/customers"),
			},
			action:   "write",
			resource: "db/customers",
			want:     domain.DecisionDeny,
		},
		{
			name: "deny overrides allow regardless of order",
			stmts: []*domain.PolicyStatement{
				denyStmt([]string{"write"}, "db/customers"),
				allowStmt([]string{"write"}, "db/*"),
			},
			action:   "write",
			resource: "db/customers",
			want:     domain.DecisionDeny,
		},
		{
			name:     "deny alone is deny, not not-applicable",
			stmts:    []*domain.PolicyStatement{denyStmt([]string{"*"}, "db/*")},
			action:   "read",
			resource: "db/customers",
			want:     domain.DecisionDeny,
		},
		{
			name:     "non-matching deny leaves allow standing",
			stmts:    []*domain.PolicyStatement{allowStmt([]string{"read"}, "db/*"), denyStmt([]string{"write"}, "db/*")},
			action:   "read",
			resource: "db/customers",
			want:     domain.DecisionAllow,
		},
		{
			name: "condition mismatch excludes statement",
			stmts: []*domain.PolicyStatement{
				{
					Effect:          domain.EffectAllow,
					Actions:         []string{"read"},
					ResourcePattern: "db/*",
					Conditions:      map[string]string{"source_boundary": "corp"},
				},
			},
			action:   "read",
			resource: "db/customers",
			reqCtx:   map[string]string{"source_boundary": "external"},
			want:     domain.DecisionNotApplicable,
		},
		{
			name: "condition match includes statement",
			stmts: []*domain.PolicyStatement{
				{
					Effect:          domain.EffectAllow,
					Actions:         []string{"read"},
					ResourcePattern: "db/*",
					Conditions:      map[string]string{"source_boundary": "corp"},
				},
			},
			action:   "read",
			resource: "db/customers",
			reqCtx:   map[string]string{"source_boundary": "corp"},
			want:     domain.DecisionAllow,
		},
		{
			name:     "wildcard action pattern",
			stmts:    []*domain.PolicyStatement{allowStmt([]string{"read*"}, "db/*")},
			action:   "readObject",
			resource: "db/customers",
			want:     domain.DecisionAllow,
		},
		{
			name:     "malformed statement is skipped",
			stmts:    []*domain.PolicyStatement{{Effect: domain.EffectAllow, Actions: []string{"read"}}},
			action:   "read",
			resource: "db/customers",
			want:     domain.DecisionNotApplicable,
		},
		{
			name:     "no statements",
			stmts:    nil,
			action:   "read",
			resource: "db/customers",
			want:     domain.DecisionNotApplicable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.stmts, tt.action, tt.resource, tt.reqCtx)
			if got != tt.want {
				t.Errorf("Evaluate() = %s, want %s", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Validate TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		stmt    *domain.PolicyStatement
		wantErr bool
	}{
		{
			name: "valid allow",
			stmt: allowStmt([]string{"read"}, "db/*"),
		},
		{
			name:    "nil statement",
			stmt:    nil,
			wantErr: true,
		},
		{
			name:    "unknown effect",
			stmt:    &domain.PolicyStatement{Effect: "MAYBE", Actions: []string{"read"}, ResourcePattern: "*"},
			wantErr: true,
		},
		{
			name:    "no actions",
			stmt:    &domain.PolicyStatement{Effect: domain.EffectAllow, ResourcePattern: "*"},
			wantErr: true,
		},
		{
			name:    "empty resource pattern",
			stmt:    &domain.PolicyStatement{Effect: domain.EffectAllow, Actions: []string{"read"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.stmt)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

package domain

// NodeKind represents the kind of a graph node
type NodeKind string

const (
	NodeKindIdentity NodeKind = "IDENTITY"
	NodeKindGroup    NodeKind = "GROUP"
	NodeKindRole     NodeKind = "ROLE"
	NodeKindResource NodeKind = "RESOURCE"
	NodeKindBoundary NodeKind = "BOUNDARY"
)

// EdgeType represents the type of a directed edge
type EdgeType string

const (
	EdgeTypeMemberOf EdgeType = "MEMBER_OF"
	EdgeTypeGrants   EdgeType = "GRANTS"
	EdgeTypeContains EdgeType = "CONTAINS"
	EdgeTypeTrusts   EdgeType = "TRUSTS"
)

// Effect represents a policy statement effect
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Decision is the outcome of evaluating policy statements against a request
type Decision string

const (
	DecisionAllow         Decision = "ALLOW"
	DecisionDeny          Decision = "DENY"
	DecisionNotApplicable Decision = "NOT_APPLICABLE"
)

// LogLevel represents log levels
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// Well-known attribute keys on nodes.
const (
	AttrBoundary       = "boundary"
	AttrClassification = "classification"
	AttrSensitivity    = "sensitivity"
	AttrBusinessImpact = "business_impact"
)

// Node is a vertex in the permission graph. Kind is immutable after creation.
type Node struct {
	ID         string            `json:"id"`
	Kind       NodeKind          `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attr returns the value of an attribute, or "" if absent.
func (n *Node) Attr(key string) string {
	if n.Attributes == nil {
		return ""
	}
	return n.Attributes[key]
}

// Edge is a typed directed edge between two nodes. Statement is set on
// GRANTS edges; Conditions is set on TRUSTS edges.
type Edge struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	Type       EdgeType          `json:"type"`
	Statement  *PolicyStatement  `json:"statement,omitempty"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// PolicyStatement is the policy payload attached to a GRANTS edge.
// Actions and ResourcePattern support * and ? wildcards.
type PolicyStatement struct {
	SID             string            `json:"sid,omitempty"`
	Effect          Effect            `json:"effect"`
	Actions         []string          `json:"actions"`
	ResourcePattern string            `json:"resource_pattern"`
	Conditions      map[string]string `json:"conditions,omitempty"`
}

// EffectiveGrant is a derived permission for one identity after membership
// closure and policy evaluation. It is recomputed per run, never persisted.
type EffectiveGrant struct {
	IdentityID      string   `json:"identity_id"`
	Action          string   `json:"action"`
	ResourcePattern string   `json:"resource_pattern"`
	Effect          Effect   `json:"effect"`
	Path            []string `json:"path"`
}

package domain

// RankedFinding is one entry in an identity's ranked blast radius: a
// reachable resource with the actions attainable on it and its scores.
type RankedFinding struct {
	IdentityID     string   `json:"identity_id"`
	ResourceID     string   `json:"resource_id"`
	Actions        []string `json:"actions"`
	Criticality    float64  `json:"criticality"`
	CompositeScore float64  `json:"composite_score"`
	TrustHops      int      `json:"trust_hops"`
	Path           []string `json:"path"`
	Incomplete     bool     `json:"incomplete,omitempty"`
}

// SkipReason classifies why an identity produced no (or partial) findings
type SkipReason string

const (
	SkipReasonNotFound SkipReason = "NOT_FOUND"
	SkipReasonTimeout  SkipReason = "TIMEOUT"
	SkipReasonError    SkipReason = "ERROR"
	SkipReasonCanceled SkipReason = "CANCELED"
)

// SkippedIdentity records an identity that was skipped or only partially
// resolved, and why. Always surfaced in the final report.
type SkippedIdentity struct {
	IdentityID string     `json:"identity_id"`
	Reason     SkipReason `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
	Partial    bool       `json:"partial,omitempty"`
}

// IdentityResult is the blast radius of a single identity
type IdentityResult struct {
	IdentityID string          `json:"identity_id"`
	Findings   []RankedFinding `json:"findings"`
	Warnings   []string        `json:"warnings,omitempty"`
	Incomplete bool            `json:"incomplete,omitempty"`
}

// Report is the output of one engine run
type Report struct {
	RunID      string            `json:"run_id"`
	Results    []IdentityResult  `json:"results"`
	Skipped    []SkippedIdentity `json:"skipped,omitempty"`
	Identities int               `json:"identities"`
}

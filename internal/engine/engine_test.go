package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"blastradius/internal/domain"
	"blastradius/internal/graph"
)

// scenarioStore builds the canonical test graph: alice is MEMBER_OF admins,
// admins GRANTS read+write on db/*, and db/customers is a high-value
// resource.
func scenarioStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()

	nodes := []*domain.Node{
		{ID: "alice", Kind: domain.NodeKindIdentity},
		{ID: "admins", Kind: domain.NodeKindGroup},
		{ID: "db/customers", Kind: domain.NodeKindResource,
			Attributes: map[string]string{domain.AttrClassification: "restricted"}},
	}
	for _, n := range nodes {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}

	edges := []*domain.Edge{
		{From: "alice", To: "admins", Type: domain.EdgeTypeMemberOf},
		{From: "admins", Type: domain.EdgeTypeGrants, Statement: &domain.PolicyStatement{
			Effect:          domain.EffectAllow,
			Actions:         []string{"read", "write"},
			ResourcePattern: "db/*",
		}},
	}
	for _, e := range edges {
		if err := store.AddEdge(e); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}
	return store
}

// =============================================================================
// End-to-end scenario TESTS
// =============================================================================

func TestRunGroupGrantReachesResource(t *testing.T) {
	store := scenarioStore(t)

	report, err := Run(context.Background(), store, Options{TargetIdentity: "alice"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Results) != 1 {
		t.Fatalf("expected 1 identity result, got %d", len(report.Results))
	}
	result := report.Results[0]
	if len(result.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(result.Findings))
	}

	finding := result.Findings[0]
	if finding.ResourceID != "db/customers" {
		t.Errorf("expected db/customers, got %s", finding.ResourceID)
	}
	if !reflect.DeepEqual(finding.Actions, []string{"read", "write"}) {
		t.Errorf("expected actions [read write], got %v", finding.Actions)
	}
	if finding.TrustHops != 0 {
		t.Errorf("expected no trust hops, got %d", finding.TrustHops)
	}
	if finding.Criticality <= 0 {
		t.Error("restricted resource should have positive criticality")
	}
	// No trust-hop decay: composite = criticality x strength exactly
	if finding.CompositeScore != finding.Criticality*0.75 {
		t.Errorf("expected composite %v (write strength, no decay), got %v",
			finding.Criticality*0.75, finding.CompositeScore)
	}
}

func TestRunDirectDenyRemovesOneAction(t *testing.T) {
	store := scenarioStore(t)
	if err := store.AddEdge(&domain.Edge{
		From: "alice", Type: domain.EdgeTypeGrants,
		Statement: &domain.PolicyStatement{
			Effect:          domain.EffectDeny,
			Actions:         []string{"write"},
			ResourcePattern: "db/customers",
		},
	}); err != nil {
		t.Fatalf("AddEdge failed: %v", err)
	}

	report, err := Run(context.Background(), store, Options{TargetIdentity: "alice"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(report.Results) != 1 || len(report.Results[0].Findings) != 1 {
		t.Fatalf("expected 1 finding, got %+v", report.Results)
	}
	finding := report.Results[0].Findings[0]
	if !reflect.DeepEqual(finding.Actions, []string{"read"}) {
		t.Errorf("deny on write should leave only read, got %v", finding.Actions)
	}
}

func TestRunAllIdentities(t *testing.T) {
	store := scenarioStore(t)
	if err := store.AddNode(&domain.Node{ID: "bob", Kind: domain.NodeKindIdentity}); err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	report, err := Run(context.Background(), store, Options{TargetIdentity: TargetAll})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Identities != 2 {
		t.Fatalf("expected 2 identities assessed, got %d", report.Identities)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	// Results are sorted by identity id
	if report.Results[0].IdentityID != "alice" || report.Results[1].IdentityID != "bob" {
		t.Errorf("unexpected result order: %s, %s", report.Results[0].IdentityID, report.Results[1].IdentityID)
	}
	if len(report.Results[1].Findings) != 0 {
		t.Errorf("bob has no grants, expected empty blast radius, got %d findings", len(report.Results[1].Findings))
	}
}

func TestRunUnknownIdentitySkippedNotFatal(t *testing.T) {
	store := scenarioStore(t)

	report, err := Run(context.Background(), store, Options{TargetIdentity: "mallory"})
	if err != nil {
		t.Fatalf("an absent identity must not fail the run: %v", err)
	}

	if len(report.Results) != 0 {
		t.Errorf("expected no results for unknown identity, got %d", len(report.Results))
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("expected 1 skipped identity, got %d", len(report.Skipped))
	}
	skipped := report.Skipped[0]
	if skipped.IdentityID != "mallory" || skipped.Reason != domain.SkipReasonNotFound {
		t.Errorf("unexpected skip entry: %+v", skipped)
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	store := scenarioStore(t)
	for _, extra := range []string{"bob", "carol", "dave", "erin"} {
		if err := store.AddNode(&domain.Node{ID: extra, Kind: domain.NodeKindIdentity}); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
		if err := store.AddEdge(&domain.Edge{From: extra, To: "admins", Type: domain.EdgeTypeMemberOf}); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}

	serial, err := Run(context.Background(), store, Options{Workers: 1})
	if err != nil {
		t.Fatalf("serial Run failed: %v", err)
	}
	parallel, err := Run(context.Background(), store, Options{Workers: 8})
	if err != nil {
		t.Fatalf("parallel Run failed: %v", err)
	}

	if len(serial.Results) != len(parallel.Results) {
		t.Fatalf("result counts differ: %d vs %d", len(serial.Results), len(parallel.Results))
	}
	for i := range serial.Results {
		if !reflect.DeepEqual(serial.Results[i], parallel.Results[i]) {
			t.Errorf("identity %s: serial and parallel results differ", serial.Results[i].IdentityID)
		}
	}
}

func TestRunCanceledBeforeStart(t *testing.T) {
	store := scenarioStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, store, Options{TargetIdentity: TargetAll})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("expected no results from canceled run, got %d", len(report.Results))
	}
	for _, s := range report.Skipped {
		if s.Reason != domain.SkipReasonCanceled {
			t.Errorf("expected canceled skip reason, got %s", s.Reason)
		}
	}
}

func TestRunTopNLimitsFindings(t *testing.T) {
	store := scenarioStore(t)
	extra := []*domain.Node{
		{ID: "db/orders", Kind: domain.NodeKindResource,
			Attributes: map[string]string{domain.AttrClassification: "confidential"}},
		{ID: "db/logs", Kind: domain.NodeKindResource,
			Attributes: map[string]string{domain.AttrClassification: "internal"}},
	}
	for _, n := range extra {
		if err := store.AddNode(n); err != nil {
			t.Fatalf("AddNode failed: %v", err)
		}
	}

	report, err := Run(context.Background(), store, Options{TargetIdentity: "alice", TopN: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	findings := report.Results[0].Findings
	if len(findings) != 1 {
		t.Fatalf("expected top-1 cut, got %d findings", len(findings))
	}
	if findings[0].ResourceID != "db/customers" {
		t.Errorf("expected highest-criticality resource first, got %s", findings[0].ResourceID)
	}
}

func TestRunActionsOfInterestFilter(t *testing.T) {
	store := scenarioStore(t)

	report, err := Run(context.Background(), store, Options{
		TargetIdentity: "alice",
		Actions:        []string{"read"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	finding := report.Results[0].Findings[0]
	if !reflect.DeepEqual(finding.Actions, []string{"read"}) {
		t.Errorf("expected only read with action filter, got %v", finding.Actions)
	}
}

func TestRunIdentityTimeoutYieldsPartial(t *testing.T) {
	store := scenarioStore(t)

	report, err := Run(context.Background(), store, Options{
		TargetIdentity:  "alice",
		IdentityTimeout: time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The nanosecond budget expires somewhere inside the pipeline; whichever
	// stage it hits, the identity must be reported as timed out rather than
	// silently dropped, and any retained findings must be flagged.
	foundTimeout := false
	for _, s := range report.Skipped {
		if s.IdentityID == "alice" && s.Reason == domain.SkipReasonTimeout {
			foundTimeout = true
		}
	}
	if !foundTimeout {
		t.Fatalf("expected alice to be reported as timed out, skipped=%+v results=%+v",
			report.Skipped, report.Results)
	}
	for _, result := range report.Results {
		if !result.Incomplete {
			t.Error("retained partial result must be flagged incomplete")
		}
		for _, f := range result.Findings {
			if !f.Incomplete {
				t.Error("partial findings must be flagged incomplete")
			}
		}
	}
}

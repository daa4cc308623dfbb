package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"blastradius/internal/criticality"
	"blastradius/internal/domain"
	"blastradius/internal/graph"
	"blastradius/internal/logging"
	"blastradius/internal/ranker"
	"blastradius/internal/reach"
	"blastradius/internal/resolver"
)

const (
	// DefaultWorkers is the per-run identity fan-out
	DefaultWorkers = 8

	// DefaultIdentityTimeout bounds pathological trust-hop chains and
	// pattern explosions per identity
	DefaultIdentityTimeout = 30 * time.Second

	// TargetAll selects every identity node in the graph
	TargetAll = "all"
)

// Options are the query parameters honored by the engine
type Options struct {
	TargetIdentity  string
	Actions         []string
	Context         map[string]string
	MaxTrustHops    int
	TopN            int
	DecayFactor     float64
	Workers         int
	IdentityTimeout time.Duration
	ScoringConfig   *criticality.WeightConfig
}

// Run resolves the blast radius of the target identity (or all identities)
// over an immutable graph snapshot. Identities are processed concurrently;
// the graph is never mutated, so workers share it without locking. Failures
// are isolated per identity: the report always lists which identities were
// skipped or partial and why, alongside the successful results.
func Run(ctx context.Context, store *graph.Store, opts Options) (*domain.Report, error) {
	start := time.Now()

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	identityTimeout := opts.IdentityTimeout
	if identityTimeout <= 0 {
		identityTimeout = DefaultIdentityTimeout
	}

	identityIDs := targetIdentities(store, opts.TargetIdentity)
	logging.LogOperationStart("blast_radius_run", map[string]interface{}{
		"identities": len(identityIDs),
		"workers":    workers,
	})

	// Run-scoped shared state: the memo cache lives exactly as long as this
	// run, keeping runs independent.
	memo := resolver.NewMemo()
	res := resolver.New(store, memo)
	prop := reach.New(store, opts.MaxTrustHops, opts.Context)
	rank := ranker.New(store, criticality.NewScorer(opts.ScoringConfig), opts.DecayFactor, opts.TopN)

	type outcome struct {
		result  *domain.IdentityResult
		skipped *domain.SkippedIdentity
	}

	outcomes := make(chan outcome, len(identityIDs))
	semaphore := make(chan struct{}, workers)

	for _, identityID := range identityIDs {
		// Cancellation boundary: identities not yet started are skipped,
		// completed ones keep their results.
		if ctx.Err() != nil {
			outcomes <- outcome{skipped: &domain.SkippedIdentity{
				IdentityID: identityID,
				Reason:     domain.SkipReasonCanceled,
				Detail:     "run canceled before resolution started",
			}}
			continue
		}

		go func(identityID string) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, skipped := resolveIdentity(ctx, identityID, identityTimeout, res, prop, rank, opts)
			outcomes <- outcome{result: result, skipped: skipped}
		}(identityID)
	}

	report := &domain.Report{
		RunID:      uuid.NewString(),
		Identities: len(identityIDs),
	}
	for range identityIDs {
		o := <-outcomes
		if o.result != nil {
			report.Results = append(report.Results, *o.result)
		}
		if o.skipped != nil {
			report.Skipped = append(report.Skipped, *o.skipped)
		}
	}

	// Channel arrival order is scheduling-dependent; sort for stable output
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].IdentityID < report.Results[j].IdentityID
	})
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].IdentityID < report.Skipped[j].IdentityID
	})

	findings := 0
	for _, r := range report.Results {
		findings += len(r.Findings)
	}
	logging.LogOperationEnd("blast_radius_run", time.Since(start), true, len(identityIDs), findings, nil)
	logging.GetMetrics().RecordOperation("blast_radius_run", time.Since(start), true, len(identityIDs), findings, nil)

	return report, nil
}

// resolveIdentity runs the per-identity pipeline: resolve grants, expand
// reachability, score and rank. A deadline hit partway through yields the
// findings computed so far, flagged incomplete.
func resolveIdentity(ctx context.Context, identityID string, timeout time.Duration, res *resolver.Resolver, prop *reach.Propagator, rank *ranker.Ranker, opts Options) (*domain.IdentityResult, *domain.SkippedIdentity) {
	start := time.Now()

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	grants, err := res.Resolve(ictx, identityID, opts.Actions, opts.Context)
	if err != nil {
		return nil, classifyFailure(identityID, err, start)
	}

	reachable, walkErr := prop.Expand(ictx, grants)
	findings := rank.Rank(identityID, reachable)

	result := &domain.IdentityResult{
		IdentityID: identityID,
		Findings:   findings,
		Warnings:   grants.Warnings,
	}

	if walkErr != nil {
		if errors.Is(walkErr, context.DeadlineExceeded) {
			// Partial blast radius: keep what was computed, flag it
			result.Incomplete = true
			for i := range result.Findings {
				result.Findings[i].Incomplete = true
			}
			logging.GetMetrics().RecordIdentity(identityID, time.Since(start), true, true, len(findings), walkErr)
			logging.LogIdentityResolution(identityID, false, len(findings), time.Since(start), walkErr)
			return result, &domain.SkippedIdentity{
				IdentityID: identityID,
				Reason:     domain.SkipReasonTimeout,
				Detail:     (&domain.TimeoutError{IdentityID: identityID}).Error(),
				Partial:    true,
			}
		}
		// Run canceled mid-flight: discard partial output
		return nil, &domain.SkippedIdentity{
			IdentityID: identityID,
			Reason:     domain.SkipReasonCanceled,
			Detail:     walkErr.Error(),
		}
	}

	logging.GetMetrics().RecordIdentity(identityID, time.Since(start), true, false, len(findings), nil)
	logging.LogIdentityResolution(identityID, true, len(findings), time.Since(start), nil)
	return result, nil
}

// classifyFailure maps a resolution error onto the report's skip taxonomy
func classifyFailure(identityID string, err error, start time.Time) *domain.SkippedIdentity {
	logging.GetMetrics().RecordIdentity(identityID, time.Since(start), false, false, 0, err)
	logging.LogIdentityResolution(identityID, false, 0, time.Since(start), err)

	var notFound *domain.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return &domain.SkippedIdentity{
			IdentityID: identityID,
			Reason:     domain.SkipReasonNotFound,
			Detail:     err.Error(),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.SkippedIdentity{
			IdentityID: identityID,
			Reason:     domain.SkipReasonTimeout,
			Detail:     (&domain.TimeoutError{IdentityID: identityID}).Error(),
		}
	case errors.Is(err, context.Canceled):
		return &domain.SkippedIdentity{
			IdentityID: identityID,
			Reason:     domain.SkipReasonCanceled,
			Detail:     err.Error(),
		}
	default:
		resErr := &domain.ResolutionError{IdentityID: identityID, Err: err}
		return &domain.SkippedIdentity{
			IdentityID: identityID,
			Reason:     domain.SkipReasonError,
			Detail:     resErr.Error(),
		}
	}
}

// targetIdentities expands the target selector into concrete identity ids.
// An unknown single target is still returned so the resolver can surface
// NotFoundError through the report.
func targetIdentities(store *graph.Store, target string) []string {
	if target != "" && target != TargetAll {
		return []string{target}
	}
	nodes := store.NodesOfKind(domain.NodeKindIdentity)
	ids := make([]string, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	sort.Strings(ids)
	return ids
}

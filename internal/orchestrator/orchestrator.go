// Package orchestrator implements C6: running the main-branch and
// PR-branch analyses concurrently and reconciling partial failure (spec
// §4.6).
package orchestrator

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/renovate-ai/pr-analyzer/internal/analyzer"
	"github.com/renovate-ai/pr-analyzer/internal/config"
	"github.com/renovate-ai/pr-analyzer/internal/pipelineerr"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// Orchestrator launches the two per-branch analyzer tasks and reconciles
// their outcomes.
type Orchestrator struct {
	analyzer *analyzer.Analyzer
	log      *logrus.Logger
}

// New builds an Orchestrator around a shared Analyzer. Sharing is safe:
// each branch's cache key already incorporates its branchRef (§4.4), so
// the two tasks never contend over the same entry, satisfying §4.6's "no
// cross-task shared mutable state" beyond the cache's own internal
// synchronization.
func New(az *analyzer.Analyzer, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Orchestrator{analyzer: az, log: log}
}

type outcome struct {
	analysis types.BranchAnalysis
	err      error
}

// AnalyzePair implements the public contract of spec §4.6.
func (o *Orchestrator) AnalyzePair(ctx context.Context, repoURL, mainRef, prRef, modelID, repoCheckoutPath string, cfg config.Config) (mainAnalysis, prAnalysis types.BranchAnalysis, warnings []types.Warning, err error) {
	pairCtx, cancel := context.WithTimeout(ctx, cfg.PairTimeout())
	defer cancel()

	var mainOutcome, prOutcome outcome

	p := pool.New().WithMaxGoroutines(2)
	p.Go(func() {
		a, taskErr := o.analyzer.AnalyzeBranch(pairCtx, repoURL, mainRef, modelID, repoCheckoutPath, cfg)
		mainOutcome = outcome{analysis: a, err: taskErr}
	})
	p.Go(func() {
		a, taskErr := o.analyzer.AnalyzeBranch(pairCtx, repoURL, prRef, modelID, repoCheckoutPath, cfg)
		prOutcome = outcome{analysis: a, err: taskErr}
	})
	p.Wait()

	// The pair deadline elapsing (as opposed to the caller cancelling ctx)
	// is an orchestration failure even when both tasks returned partial
	// results (§4.6, §7).
	if pairCtx.Err() != nil && ctx.Err() == nil && mainOutcome.err == nil && prOutcome.err == nil {
		o.log.WithField("main_ref", mainRef).WithField("pr_ref", prRef).Warn("pair timeout elapsed before both branches finished")
		return types.BranchAnalysis{}, types.BranchAnalysis{}, nil, pipelineerr.PipelineFailed(pairCtx.Err())
	}

	switch {
	case mainOutcome.err == nil && prOutcome.err == nil:
		return mainOutcome.analysis, prOutcome.analysis, nil, nil

	case mainOutcome.err != nil && prOutcome.err != nil:
		return types.BranchAnalysis{}, types.BranchAnalysis{}, nil, pipelineerr.PipelineFailed(mainOutcome.err)

	case mainOutcome.err != nil:
		if cfg.RequireBothBranches {
			return types.BranchAnalysis{}, types.BranchAnalysis{}, nil, pipelineerr.PipelineFailed(mainOutcome.err)
		}
		warnings = append(warnings, types.Warning{
			Kind:      types.WarningBranchFailed,
			Message:   mainOutcome.err.Error(),
			BranchRef: mainRef,
		})
		return types.BranchAnalysis{}, prOutcome.analysis, warnings, nil

	default: // prOutcome.err != nil
		if cfg.RequireBothBranches {
			return types.BranchAnalysis{}, types.BranchAnalysis{}, nil, pipelineerr.PipelineFailed(prOutcome.err)
		}
		warnings = append(warnings, types.Warning{
			Kind:      types.WarningBranchFailed,
			Message:   prOutcome.err.Error(),
			BranchRef: prRef,
		})
		return mainOutcome.analysis, types.BranchAnalysis{}, warnings, nil
	}
}

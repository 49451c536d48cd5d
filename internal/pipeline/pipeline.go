// Package pipeline implements C9, the coordinator: resolving a model
// selection, invoking the orchestrator, categorizing, classifying, and
// assembling the final ComparisonResult (spec §4.9).
package pipeline

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/renovate-ai/pr-analyzer/internal/cache"
	"github.com/renovate-ai/pr-analyzer/internal/categorizer"
	"github.com/renovate-ai/pr-analyzer/internal/classifier"
	"github.com/renovate-ai/pr-analyzer/internal/config"
	"github.com/renovate-ai/pr-analyzer/internal/orchestrator"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// SchemaVersion is embedded in every ComparisonResult this coordinator
// produces (spec §6).
const SchemaVersion = "v1"

// Request mirrors spec §4.9's public contract for run(request).
type Request struct {
	RepoURL          string
	PRNumber         int
	MainRef          string
	PRRef            string
	ModelSelection   types.ModelSelection
	RepoCheckoutPath string
}

// Coordinator wires C6 (orchestrator), C7 (categorizer) and C8
// (classifier) into the single entry point a caller uses.
type Coordinator struct {
	orchestrator *orchestrator.Orchestrator
	cache        *cache.Cache
	log          *logrus.Logger
}

// New builds a Coordinator around an already-constructed Orchestrator
// (itself wired with an Analyzer, Cache and LLM Caller by the caller —
// typically cmd/analyzer's main). c is the same *cache.Cache instance the
// Analyzer was built with, so the Coordinator can surface remote-tier
// degradation (§4.4, §8 Scenario 6) in the assembled ComparisonResult; it
// may be nil when caching is disabled entirely.
func New(o *orchestrator.Orchestrator, c *cache.Cache, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Coordinator{orchestrator: o, cache: c, log: log}
}

// Run implements spec §4.9's sequence: orchestrate, categorize, classify,
// assemble. The coordinator owns cancellation via ctx, which propagates
// into C6 and transitively into each C5.
func (c *Coordinator) Run(ctx context.Context, req Request, cfg config.Config) (types.ComparisonResult, error) {
	modelID := req.ModelSelection.PrimaryModelID
	if modelID == "" {
		modelID = req.ModelSelection.FallbackModelID
	}

	mainAnalysis, prAnalysis, warnings, err := c.orchestrator.AnalyzePair(ctx, req.RepoURL, req.MainRef, req.PRRef, modelID, req.RepoCheckoutPath, cfg)
	if err != nil {
		return types.ComparisonResult{}, err
	}

	catResult := categorizer.Categorize(mainAnalysis.Issues, prAnalysis.Issues)

	result := types.ComparisonResult{
		SchemaVersion:   SchemaVersion,
		NewIssues:       classifier.Classify(catResult.New),
		FixedIssues:     classifier.Classify(catResult.Fixed),
		UnchangedIssues: classifier.Classify(catResult.Unchanged),
		Summary:         catResult.Summary,
		Warnings:        warnings,
	}

	if w := highFilterRateWarning(mainAnalysis, prAnalysis); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}

	if w := partialConvergenceWarning(mainAnalysis, prAnalysis); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}

	if c.cache != nil && c.cache.RemoteDegraded() {
		result.Warnings = append(result.Warnings, types.Warning{
			Kind:    types.WarningCacheDegraded,
			Message: "remote cache tier unreachable; analysis served from local tier only",
		})
	}

	c.log.WithFields(logrus.Fields{
		"repo_url":  req.RepoURL,
		"pr_number": req.PRNumber,
		"decision":  result.Summary.Decision,
	}).Info("comparison complete")

	return result, nil
}

// highFilterRateWarning implements the "validation filtered >= 50% of raw
// issues" warning named in spec §7's user-visible-failure clause, over
// the combined raw/filtered counts C3 accumulated across both branches.
func highFilterRateWarning(main, pr types.BranchAnalysis) *types.Warning {
	raw := main.RawIssueCount + pr.RawIssueCount
	filtered := main.FilteredIssueCount + pr.FilteredIssueCount
	if raw == 0 || float64(filtered)/float64(raw) < 0.5 {
		return nil
	}
	return &types.Warning{
		Kind:    types.WarningHighFilterRate,
		Message: "validation filtered at least half of the raw issues the model reported",
	}
}

// partialConvergenceWarning fires whenever either branch's analysis has
// Converged=false: it hit MaxIterations, stopped on an LLM error after
// earlier iterations, was cancelled, or is the empty stand-in for a failed
// branch. The result is still returned, but it may be incomplete.
func partialConvergenceWarning(main, pr types.BranchAnalysis) *types.Warning {
	if main.Converged && pr.Converged {
		return nil
	}
	return &types.Warning{
		Kind:    types.WarningPartialConvergence,
		Message: "one or both branches stopped without converging",
	}
}

// Package analyzer implements C5: the adaptive per-branch analysis loop
// that iterates LLM calls (C1), parsing (C2), and validation (C3) against
// an accumulating issue set until it converges or exhausts its iteration
// budget (spec §4.5).
package analyzer

import (
	"context"
	"io"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/renovate-ai/pr-analyzer/internal/cache"
	"github.com/renovate-ai/pr-analyzer/internal/categorizer"
	"github.com/renovate-ai/pr-analyzer/internal/config"
	"github.com/renovate-ai/pr-analyzer/internal/llmclient"
	"github.com/renovate-ai/pr-analyzer/internal/parser"
	"github.com/renovate-ai/pr-analyzer/internal/pipelineerr"
	"github.com/renovate-ai/pr-analyzer/internal/types"
	"github.com/renovate-ai/pr-analyzer/internal/validator"
)

// Analyzer runs spec §4.5's algorithm for a single branch. It holds no
// per-call state; every dependency is either passed at construction
// (llm, cache, logger) or at call time (repoURL, branchRef, modelID).
type Analyzer struct {
	llm       llmclient.Caller
	cache     *cache.Cache
	validator *validator.Validator
	log       *logrus.Logger
}

// New builds an Analyzer. llm must be non-nil; c may be nil (no caching),
// a nil fs falls back to afero.NewOsFs() (via validator.New), and a nil
// logger discards output.
func New(llm llmclient.Caller, c *cache.Cache, fs afero.Fs, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Analyzer{llm: llm, cache: c, validator: validator.New(fs), log: log}
}

// accumulator mirrors an in-flight accumulation before it is frozen into a
// types.BranchAnalysis.
type accumulator struct {
	issues []types.Issue
	// missingSnippets holds the ID of every accumulated issue still
	// without a CodeSnippet, not the file it lives in: two issues can
	// share a file, and filling one's snippet must not mark the other's
	// file as done (spec §4.5's snippet-fill-on-duplicate step).
	missingSnippets map[string]bool
	rawCount        int
	filteredCount   int
}

// AnalyzeBranch implements the algorithm of spec §4.5.
func (a *Analyzer) AnalyzeBranch(ctx context.Context, repoURL, branchRef, modelID, repoCheckoutPath string, cfg config.Config) (types.BranchAnalysis, error) {
	log := a.log.WithFields(logrus.Fields{"branch_ref": branchRef, "model_id": modelID})

	key := cache.Key(repoURL, branchRef, modelID, promptVersion)
	if cfg.UseCache && a.cache != nil {
		if hit, ok, _ := a.cache.Get(key); ok {
			log.Debug("cache hit, skipping analysis")
			return hit, nil
		}
	}

	acc := accumulator{missingSnippets: make(map[string]bool)}
	iter := 0
	zeroDeltaStreak := 0
	converged := false
	var lastErr error

	for iter < cfg.MaxIterations && !converged {
		select {
		case <-ctx.Done():
			return finalize(acc, iter, false, branchRef, modelID), nil
		default:
		}

		prompt, perr := a.buildPrompt(iter, repoURL, branchRef, acc)
		if perr != nil {
			return types.BranchAnalysis{}, pipelineerr.Programming(perr)
		}

		correlationID := uuid.NewString()
		opts := llmclient.Options{Temperature: 0.2, MaxTokens: 3000, Timeout: cfg.PerIterationTimeout()}
		raw, callErr := a.llm.Analyze(ctx, repoURL, branchRef, prompt, modelID, opts)
		if callErr != nil {
			log.WithError(callErr).WithField("iteration", iter).WithField("correlation_id", correlationID).Warn("llm call failed")
			lastErr = callErr
			if iter == 0 && len(acc.issues) == 0 {
				return types.BranchAnalysis{}, pipelineerr.BranchAnalysisFailed(branchRef, callErr)
			}
			break
		}

		parsed := parser.Parse(raw, parser.BranchContext{BranchRef: branchRef})
		validated := a.validator.Validate(parsed.Issues, repoCheckoutPath)
		acc.rawCount += validated.Stats.Total
		acc.filteredCount += validated.Stats.Filtered

		delta := mergeInto(&acc, validated.Valid)
		iter++

		// Two consecutive zero-delta iterations converge (spec §4.5e).
		if delta == 0 {
			zeroDeltaStreak++
			if zeroDeltaStreak >= 2 {
				converged = true
			}
		} else {
			zeroDeltaStreak = 0
		}
	}

	analysis := finalize(acc, iter, converged, branchRef, modelID)
	if lastErr != nil && len(acc.issues) == 0 {
		return types.BranchAnalysis{}, pipelineerr.BranchAnalysisFailed(branchRef, lastErr)
	}

	// I1-I7: a BranchAnalysis this loop just assembled must satisfy its own
	// invariants before it is cached or handed to C6; a violation here is a
	// programming error, not a degraded run (spec §7).
	if verr := analysis.Validate(cfg.MaxIterations); verr != nil {
		return types.BranchAnalysis{}, pipelineerr.Programming(verr)
	}

	if cfg.UseCache && a.cache != nil {
		a.cache.Put(key, analysis, cfg.CacheTTL())
	}
	return analysis, nil
}

// buildPrompt implements §4.5(a): base template on iter==0, else append
// known titles, missing-snippet file paths, and a structured-JSON nudge.
func (a *Analyzer) buildPrompt(iter int, repoURL, branchRef string, acc accumulator) (string, error) {
	if iter == 0 {
		return initialPrompt.Format(map[string]any{
			"repo_url":   repoURL,
			"branch_ref": branchRef,
		})
	}

	titles := make([]string, 0, len(acc.issues))
	for _, iss := range acc.issues {
		titles = append(titles, iss.Title)
	}

	seen := make(map[string]bool)
	var missing []string
	for _, iss := range acc.issues {
		if acc.missingSnippets[iss.ID] && !seen[iss.Location.File] {
			seen[iss.Location.File] = true
			missing = append(missing, iss.Location.File)
		}
	}

	if len(missing) > 0 {
		return snippetRequestPrompt.Format(map[string]any{
			"repo_url":         repoURL,
			"branch_ref":       branchRef,
			"known_titles":     joinTitles(titles),
			"missing_snippets": joinMissingSnippets(missing),
		})
	}
	return followUpPrompt.Format(map[string]any{
		"repo_url":     repoURL,
		"branch_ref":   branchRef,
		"known_titles": joinTitles(titles),
	})
}

// mergeInto implements §4.5(d): fingerprint lookup against the
// accumulator, snippet-fill-on-duplicate, append-if-absent. It returns the
// count of genuinely new (non-duplicate) issues added.
func mergeInto(acc *accumulator, issues []types.Issue) int {
	added := 0
	for _, iss := range issues {
		fp := categorizer.Compute(iss)
		matched := false
		for i := range acc.issues {
			existingFP := categorizer.Compute(acc.issues[i])
			if ok, _ := categorizer.Match(fp, existingFP); ok {
				matched = true
				if acc.issues[i].CodeSnippet == "" && iss.CodeSnippet != "" {
					acc.issues[i].CodeSnippet = iss.CodeSnippet
					delete(acc.missingSnippets, acc.issues[i].ID)
				}
				break
			}
		}
		if !matched {
			if iss.ID == "" {
				iss.ID = categorizer.ID(iss)
			}
			if iss.CodeSnippet == "" {
				acc.missingSnippets[iss.ID] = true
			}
			acc.issues = append(acc.issues, iss)
			added++
		}
	}
	return added
}

// finalize implements §4.5 step 4: sort, compute completeness, freeze.
func finalize(acc accumulator, iter int, converged bool, branchRef, modelID string) types.BranchAnalysis {
	types.SortIssues(acc.issues)

	withSnippet := 0
	for _, iss := range acc.issues {
		if iss.CodeSnippet != "" {
			withSnippet++
		}
	}
	completeness := 0
	if len(acc.issues) > 0 {
		completeness = int(math.Round(100 * float64(withSnippet) / float64(len(acc.issues))))
		if completeness > 100 {
			completeness = 100
		}
	}

	return types.BranchAnalysis{
		BranchRef:          branchRef,
		Issues:             acc.issues,
		Iterations:         maxInt(iter, 1),
		Converged:          converged,
		Completeness:       completeness,
		ModelID:            modelID,
		RawIssueCount:      acc.rawCount,
		FilteredIssueCount: acc.filteredCount,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

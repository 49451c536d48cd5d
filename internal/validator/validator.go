// Package validator implements C3: confirming that parsed issues refer to
// real locations in a local checkout, scoring confidence, and filtering
// out anything too speculative to keep (spec §4.3).
package validator

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/renovate-ai/pr-analyzer/internal/parser"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// FilterReason names why an issue did not survive validation.
type FilterReason string

const (
	ReasonPlaceholderPath FilterReason = "placeholder-path"
	ReasonInvalidLocation FilterReason = "invalid-location"
	ReasonFileNotFound    FilterReason = "file-not-found"
	ReasonLineOutOfRange  FilterReason = "line-out-of-range"
	ReasonLowConfidence   FilterReason = "low-confidence"
)

// Rejected is a filtered-out issue paired with why, and (when available) a
// same-basename suggestion (spec §4.3 step 2).
type Rejected struct {
	Issue      parser.ParsedIssue
	Reasons    []FilterReason
	Suggestion string
}

// Stats summarizes a validation run for observability.
type Stats struct {
	Total     int
	Valid     int
	Filtered  int
}

// Result is C3's output.
type Result struct {
	Valid    []types.Issue
	Filtered []Rejected
	Stats    Stats
}

const minConfidence = 40

// Validator checks issues against a repo checkout reached through an
// afero.Fs, so tests can swap in an in-memory filesystem.
type Validator struct {
	fs afero.Fs
}

// New builds a Validator. fs is typically afero.NewOsFs() in production
// and afero.NewMemMapFs() in tests.
func New(fs afero.Fs) *Validator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Validator{fs: fs}
}

// Validate runs spec §4.3's six-step procedure over every parsed issue.
func (v *Validator) Validate(issues []parser.ParsedIssue, repoCheckoutPath string) Result {
	res := Result{Stats: Stats{Total: len(issues)}}

	for _, pi := range issues {
		confidence := 100
		var reasons []FilterReason
		var suggestion string

		if pi.File == "" || parser.IsPlaceholder(pi.File) {
			reasons = append(reasons, ReasonPlaceholderPath)
		} else if err := (types.Location{File: pi.File, Line: pi.Line}).Validate(); err != nil {
			reasons = append(reasons, ReasonInvalidLocation)
		} else {
			full := filepath.Join(repoCheckoutPath, pi.File)
			exists, lineCount, content, statErr := v.readChecked(full)
			if statErr != nil || !exists {
				reasons = append(reasons, ReasonFileNotFound)
				suggestion = v.suggestByBasename(repoCheckoutPath, pi.File)
			} else if pi.Line > lineCount {
				reasons = append(reasons, ReasonLineOutOfRange)
			} else {
				if pi.CodeSnippet == "" {
					confidence -= 15
				} else if !snippetNearLine(content, pi.CodeSnippet, pi.Line) {
					confidence -= 20
				}
			}
		}

		if len(reasons) > 0 {
			res.Filtered = append(res.Filtered, Rejected{Issue: pi, Reasons: reasons, Suggestion: suggestion})
			continue
		}

		if isGenericTitle(pi.Title) {
			confidence -= 10
		}
		if severityWasHeuristic(pi) {
			confidence -= 10
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}

		if confidence < minConfidence {
			res.Filtered = append(res.Filtered, Rejected{Issue: pi, Reasons: []FilterReason{ReasonLowConfidence}})
			continue
		}

		res.Valid = append(res.Valid, toIssue(pi, confidence))
	}

	res.Stats.Valid = len(res.Valid)
	res.Stats.Filtered = len(res.Filtered)
	return res
}

func (v *Validator) readChecked(fullPath string) (exists bool, lineCount int, content string, err error) {
	info, statErr := v.fs.Stat(fullPath)
	if statErr != nil || info.IsDir() {
		return false, 0, "", statErr
	}
	b, readErr := afero.ReadFile(v.fs, fullPath)
	if readErr != nil {
		return true, 0, "", readErr
	}
	content = string(b)
	lineCount = strings.Count(content, "\n") + 1
	return true, lineCount, content, nil
}

func (v *Validator) suggestByBasename(repoCheckoutPath, file string) string {
	base := filepath.Base(file)
	var found string
	a := afero.Afero{Fs: v.fs}
	_ = a.Walk(repoCheckoutPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if info != nil && !info.IsDir() && filepath.Base(path) == base {
			if rel, relErr := filepath.Rel(repoCheckoutPath, path); relErr == nil {
				found = rel
			}
		}
		return nil
	})
	return found
}

var genericTitleRe = regexp.MustCompile(`(?i)^(issue|problem|bug|todo)$`)

func isGenericTitle(title string) bool {
	t := strings.TrimSpace(title)
	return t == "" || genericTitleRe.MatchString(t)
}

// severityWasHeuristic reports whether the parser had to guess a severity
// (spec §4.3's "severity heuristically assigned -10" penalty), per the
// parser's own SeverityInferred flag rather than re-guessing from the text.
func severityWasHeuristic(pi parser.ParsedIssue) bool {
	return pi.SeverityInferred
}

func toIssue(pi parser.ParsedIssue, confidence int) types.Issue {
	return types.Issue{
		Title:        pi.Title,
		Description:  pi.Description,
		Severity:     pi.Severity,
		Category:     pi.Category,
		Location:     types.Location{File: pi.File, Line: pi.Line, Column: pi.Column},
		CodeSnippet:  pi.CodeSnippet,
		SuggestedFix: pi.SuggestedFix,
		Confidence:   confidence,
	}
}

// snippetNearLine checks that a normalized (whitespace-collapsed)
// substring of the snippet appears within +-5 lines of the target line
// (spec §4.3 step 4).
func snippetNearLine(content, snippet string, line int) bool {
	lines := strings.Split(content, "\n")
	norm := normalizeWhitespace(snippet)
	if norm == "" {
		return true
	}
	lo := line - 6
	if lo < 0 {
		lo = 0
	}
	hi := line + 5
	if hi > len(lines) {
		hi = len(lines)
	}
	window := strings.Join(lines[lo:hi], "\n")
	return strings.Contains(normalizeWhitespace(window), norm)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

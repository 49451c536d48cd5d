package types

import (
	"fmt"
	"sort"
)

// BranchAnalysis is the result of analyzing a single branch (spec §3).
type BranchAnalysis struct {
	BranchRef    string  `json:"branchRef"`
	Issues       []Issue `json:"issues"`
	Iterations   int     `json:"iterations"`
	Converged    bool    `json:"converged"`
	Completeness int     `json:"completeness"`
	ModelID      string  `json:"modelId"`

	// RawIssueCount and FilteredIssueCount accumulate C3's per-iteration
	// validation stats, letting the coordinator compute the "validation
	// filtered >= 50%" warning named in spec §7 without re-running C3.
	RawIssueCount      int `json:"rawIssueCount,omitempty"`
	FilteredIssueCount int `json:"filteredIssueCount,omitempty"`
}

// Validate enforces I6 and I7.
func (b BranchAnalysis) Validate(maxIterations int) error {
	if b.Iterations < 1 {
		return fmt.Errorf("branch %q: iterations must be >= 1, got %d", b.BranchRef, b.Iterations)
	}
	if maxIterations > 0 && b.Iterations > maxIterations {
		return fmt.Errorf("branch %q: iterations %d exceeds max %d", b.BranchRef, b.Iterations, maxIterations)
	}
	return ValidateSet(b.Issues)
}

// SortIssues orders issues by severity descending, then file, then line
// (spec §3's BranchAnalysis ordering, reused for bucket ordering in §4.7).
func SortIssues(issues []Issue) {
	rank := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     1,
		SeverityMedium:   2,
		SeverityLow:      3,
	}
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if rank[a.Severity] != rank[b.Severity] {
			return rank[a.Severity] < rank[b.Severity]
		}
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		return a.Location.Line < b.Location.Line
	})
}

// CachedAnalysis wraps a BranchAnalysis with its cache key and expiry.
type CachedAnalysis struct {
	Key           string          `json:"key"`
	Value         BranchAnalysis  `json:"value"`
	ExpiresAt     int64           `json:"expiresAt"` // unix seconds
	SchemaVersion string          `json:"schemaVersion"`
}

// SeverityCounts tallies issues per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add increments the counter matching s.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	case SeverityLow:
		c.Low++
	}
}

// StatusCounts tallies issues per status.
type StatusCounts struct {
	New       int `json:"new"`
	Fixed     int `json:"fixed"`
	Unchanged int `json:"unchanged"`
}

// Decision is the categorizer's merge recommendation (§4.7).
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionDecline Decision = "DECLINE"
)

// Summary aggregates counts, quality score and decision for a ComparisonResult.
type Summary struct {
	BySeverity   SeverityCounts `json:"bySeverity"`
	ByStatus     StatusCounts   `json:"byStatus"`
	QualityScore int            `json:"qualityScore"`
	NetImpact    int            `json:"netImpact"`
	Decision     Decision       `json:"decision"`
}

// WarningKind enumerates the degraded-behavior categories a run can surface
// without failing outright (spec §7 "user-visible failure").
type WarningKind string

const (
	WarningCacheDegraded      WarningKind = "cache-degraded"
	WarningBranchFailed       WarningKind = "branch-failed"
	WarningHighFilterRate     WarningKind = "high-filter-rate"
	WarningPartialConvergence WarningKind = "partial-convergence"
)

// Warning is one entry in ComparisonResult.warnings.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
	BranchRef string      `json:"branchRef,omitempty"`
}

// ComparisonResult is the pipeline's output (spec §3/§4.9).
type ComparisonResult struct {
	SchemaVersion   string    `json:"schemaVersion"`
	NewIssues       []Issue   `json:"newIssues"`
	FixedIssues     []Issue   `json:"fixedIssues"`
	UnchangedIssues []Issue   `json:"unchangedIssues"`
	Summary         Summary   `json:"summary"`
	Warnings        []Warning `json:"warnings"`
}

// ModelSelection is the opaque model identifier pair the coordinator
// receives from the (external) model-selection subsystem and forwards to
// C1 unexamined (spec §4.9, §6).
type ModelSelection struct {
	PrimaryModelID  string
	FallbackModelID string
}

// RawResponseKind tags RawResponse per spec §9's "dynamically typed
// response shapes" guidance: a tagged variant, never duck typing.
type RawResponseKind string

const (
	RawResponseText RawResponseKind = "text"
	RawResponseJSON RawResponseKind = "json"
)

// RawResponse is C1's opaque output: a content-typed byte body, not
// pre-parsed (spec §4.1).
type RawResponse struct {
	Kind        RawResponseKind
	Body        []byte
	ContentType string
}

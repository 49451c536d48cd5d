package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBranchAnalysis_Validate_RejectsZeroIterations(t *testing.T) {
	b := BranchAnalysis{BranchRef: "main", Iterations: 0}
	assert.Error(t, b.Validate(5))
}

func TestBranchAnalysis_Validate_RejectsIterationsAboveMax(t *testing.T) {
	b := BranchAnalysis{BranchRef: "main", Iterations: 6}
	assert.Error(t, b.Validate(5))
}

func TestBranchAnalysis_Validate_PropagatesIssueSetErrors(t *testing.T) {
	dup := validIssue()
	b := BranchAnalysis{BranchRef: "main", Iterations: 1, Issues: []Issue{dup, dup}}
	assert.Error(t, b.Validate(5))
}

func TestBranchAnalysis_Validate_AcceptsWellFormed(t *testing.T) {
	a, b := validIssue(), validIssue()
	a.ID, b.ID = "one", "two"
	ba := BranchAnalysis{BranchRef: "main", Iterations: 2, Issues: []Issue{a, b}}
	assert.NoError(t, ba.Validate(5))
}

func TestSortIssues_OrdersBySeverityThenFileThenLine(t *testing.T) {
	low := Issue{ID: "1", Severity: SeverityLow, Location: Location{File: "b.go", Line: 5}}
	critical := Issue{ID: "2", Severity: SeverityCritical, Location: Location{File: "a.go", Line: 9}}
	highA := Issue{ID: "3", Severity: SeverityHigh, Location: Location{File: "z.go", Line: 1}}
	highB := Issue{ID: "4", Severity: SeverityHigh, Location: Location{File: "a.go", Line: 2}}

	issues := []Issue{low, highA, critical, highB}
	SortIssues(issues)

	assert.Equal(t, []string{"2", "4", "3", "1"}, []string{issues[0].ID, issues[1].ID, issues[2].ID, issues[3].ID})
}

func TestSeverityCounts_Add(t *testing.T) {
	var c SeverityCounts
	c.Add(SeverityCritical)
	c.Add(SeverityHigh)
	c.Add(SeverityHigh)
	c.Add(SeverityLow)

	assert.Equal(t, SeverityCounts{Critical: 1, High: 2, Medium: 0, Low: 1}, c)
}

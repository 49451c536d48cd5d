package validator

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renovate-ai/pr-analyzer/internal/parser"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

func memFsWithFile(t *testing.T, path, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return fs
}

func TestValidate_AcceptsIssueWithMatchingSnippetNearLine(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "package a\n\nfunc f() {\n\tquery := buildQuery(input)\n\texec(query)\n}\n")
	v := New(fs)
	issues := []parser.ParsedIssue{
		{Title: "SQL injection risk", File: "src/a.go", Line: 4, Severity: types.SeverityHigh, CodeSnippet: "query := buildQuery(input)"},
	}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Valid, 1)
	assert.Empty(t, result.Filtered)
	assert.Equal(t, 1, result.Stats.Valid)
}

func TestValidate_RejectsPlaceholderPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	v := New(fs)
	issues := []parser.ParsedIssue{{Title: "x", File: "YOUR_FILE_HERE.go", Line: 1}}
	result := v.Validate(issues, "/repo")
	assert.Empty(t, result.Valid)
	require.Len(t, result.Filtered, 1)
	assert.Contains(t, result.Filtered[0].Reasons, ReasonPlaceholderPath)
}

func TestValidate_RejectsInvalidLocation(t *testing.T) {
	fs := afero.NewMemMapFs()
	v := New(fs)
	issues := []parser.ParsedIssue{{Title: "x", File: "src/a.go", Line: 0}}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Filtered, 1)
	assert.Contains(t, result.Filtered[0].Reasons, ReasonInvalidLocation)
}

func TestValidate_RejectsMissingFileAndSuggestsByBasename(t *testing.T) {
	fs := memFsWithFile(t, "/repo/internal/new/a.go", "package a\n")
	v := New(fs)
	issues := []parser.ParsedIssue{{Title: "x", File: "old/a.go", Line: 1}}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Filtered, 1)
	assert.Contains(t, result.Filtered[0].Reasons, ReasonFileNotFound)
	assert.Equal(t, "internal/new/a.go", result.Filtered[0].Suggestion)
}

func TestValidate_RejectsLineOutOfRange(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\n")
	v := New(fs)
	issues := []parser.ParsedIssue{{Title: "x", File: "src/a.go", Line: 99}}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Filtered, 1)
	assert.Contains(t, result.Filtered[0].Reasons, ReasonLineOutOfRange)
}

func TestValidate_GenericTitleWithoutSnippetLowersConfidence(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\nline3\n")
	v := New(fs)
	issues := []parser.ParsedIssue{{Title: "issue", File: "src/a.go", Line: 2, Severity: types.SeverityMedium}}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Valid, 1)
	assert.Less(t, result.Valid[0].Confidence, 100)
}

func TestValidate_SnippetFarFromLineLowersConfidenceButMayStillPass(t *testing.T) {
	content := "package a\n\nfunc f() {\n\tx := 1\n\t_ = x\n}\n"
	fs := memFsWithFile(t, "/repo/src/a.go", content)
	v := New(fs)
	issues := []parser.ParsedIssue{
		{Title: "unused variable assignment", File: "src/a.go", Line: 4, Severity: types.SeverityLow, CodeSnippet: "totally different code not present"},
	}
	result := v.Validate(issues, "/repo")
	require.Len(t, result.Valid, 1)
	assert.Less(t, result.Valid[0].Confidence, 100)
}

func TestValidate_StatsReflectCounts(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\n")
	v := New(fs)
	issues := []parser.ParsedIssue{
		{Title: "SQL injection risk", File: "src/a.go", Line: 1, Severity: types.SeverityHigh, CodeSnippet: "line1"},
		{Title: "issue", File: "missing.go", Line: 1},
	}
	result := v.Validate(issues, "/repo")
	assert.Equal(t, 2, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.Valid)
	assert.Equal(t, 1, result.Stats.Filtered)
}

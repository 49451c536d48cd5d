package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

func raw(body string) types.RawResponse {
	return types.RawResponse{Kind: types.RawResponseText, Body: []byte(body)}
}

// Scenario 5 from spec §8: prose preamble + numbered "File Path" items and
// a "File: ..., Line: ..." item.
func TestParse_NumberedProseFallback(t *testing.T) {
	body := `Here is my analysis of the changes:

1. **File Path: src/foo.ts** Line 12: unused import
2. File: src/bar.ts, Line: 8 - missing return
`
	result := Parse(raw(body), BranchContext{BranchRef: "main"})
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "src/foo.ts", result.Issues[0].File)
	assert.Equal(t, 12, result.Issues[0].Line)
	assert.Equal(t, "src/bar.ts", result.Issues[1].File)
	assert.Equal(t, 8, result.Issues[1].Line)
}

func TestParse_JSONArray(t *testing.T) {
	body := `Sure, here is the analysis:
[{"file": "src/a.go", "line": 10, "title": "SQL injection risk", "severity": "high"}]
Hope that helps!`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "src/a.go", result.Issues[0].File)
	assert.Equal(t, types.SeverityHigh, result.Issues[0].Severity)
}

func TestParse_JSONObjectWithIssuesKey(t *testing.T) {
	body := `{"issues": [{"path": "src/b.go", "lineNumber": 4, "message": "unused variable"}]}`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "src/b.go", result.Issues[0].File)
	assert.Equal(t, types.SeverityLow, result.Issues[0].Severity) // "unused" keyword heuristic
}

func TestParse_TemplateBlocks(t *testing.T) {
	body := `ISSUE:
file: src/c.go
line: 21
title: potential race condition
severity: high
---
ISSUE:
file: src/d.go
line: 5
title: missing docstring
---
`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "src/c.go", result.Issues[0].File)
	assert.Equal(t, types.SeverityHigh, result.Issues[0].Severity)
}

func TestParse_CSVFallback(t *testing.T) {
	body := "type,severity,file,line,title,snippet,fix\n" +
		"security,critical,src/e.go,30,hardcoded secret,\"const k = 'x'\",\"use env var\"\n"
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 1)
	assert.Equal(t, types.SeverityCritical, result.Issues[0].Severity)
	assert.Equal(t, types.CategorySecurity, result.Issues[0].Category)
}

func TestParse_XMLFallback(t *testing.T) {
	body := `<issue><type>performance</type><severity>medium</severity><file>src/f.go</file><line>7</line><title>N+1 query</title></issue>`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 1)
	assert.Equal(t, "src/f.go", result.Issues[0].File)
}

func TestParse_StatusTaggedSections(t *testing.T) {
	body := `NEW ISSUES
- File: src/g.go, Line: 1 - added unchecked error
FIXED ISSUES
- File: src/h.go, Line: 2 - removed dead code
`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 2)
	assert.Equal(t, types.StatusNew, result.Issues[0].Status)
	assert.Equal(t, types.StatusFixed, result.Issues[1].Status)
}

func TestParse_PlaceholderFilesRejected(t *testing.T) {
	body := `[{"file": "unknown", "line": 1, "title": "x"}, {"file": "YOUR_FILE_HERE.go", "line": 2, "title": "y"}]`
	result := Parse(raw(body), BranchContext{})
	assert.Empty(t, result.Issues)
}

func TestParse_EmptyOnGarbage(t *testing.T) {
	result := Parse(raw("absolutely nothing structured here"), BranchContext{})
	assert.Empty(t, result.Issues)
	assert.NotEmpty(t, result.ParseDiagnostics)
}

func TestParse_NeverPanicsOnMalformedJSON(t *testing.T) {
	assert.NotPanics(t, func() {
		Parse(raw(`{"file": "a.go", "line": `), BranchContext{})
	})
}

func TestParse_SnippetTrimmedTo4KiB(t *testing.T) {
	big := make([]byte, 5*1024)
	for i := range big {
		big[i] = 'x'
	}
	body := `[{"file": "src/i.go", "line": 1, "title": "t", "snippet": "` + string(big) + `"}]`
	result := Parse(raw(body), BranchContext{})
	require.Len(t, result.Issues, 1)
	assert.LessOrEqual(t, len(result.Issues[0].CodeSnippet), maxSnippetBytes)
}

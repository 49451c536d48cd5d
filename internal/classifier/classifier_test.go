package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

func fixIssue(snippet, fix string) types.Issue {
	return types.Issue{
		Title:        "fix candidate",
		Severity:     types.SeverityMedium,
		Category:     types.CategoryCodeQuality,
		Location:     types.Location{File: "src/a.go", Line: 1},
		CodeSnippet:  snippet,
		SuggestedFix: fix,
	}
}

// Scenario 2 (spec §8): an added parameter is a Type B change.
func TestClassify_AddedParameterIsTypeB(t *testing.T) {
	iss := fixIssue(
		"function buildQuery(table, id) { return 'SELECT ... ' + id; }",
		"function buildQuery(table, id, connection) { return connection.query('SELECT ... ?', [id]); }",
	)
	got := Classify([]types.Issue{iss})[0]
	assert.Equal(t, types.FixTypeB, got.FixType)
	assert.Contains(t, got.AdjustmentNotes, "connection")
}

// Scenario 3 (spec §8): sync-to-async conversion is a Type B change.
func TestClassify_AsyncConversionIsTypeB(t *testing.T) {
	iss := fixIssue(
		"function loadCache(p){ return JSON.parse(fs.readFileSync(p,'utf8')); }",
		"async function loadCache(p){ return JSON.parse(await fs.promises.readFile(p,'utf8')); }",
	)
	got := Classify([]types.Issue{iss})[0]
	assert.Equal(t, types.FixTypeB, got.FixType)
	assert.Contains(t, got.AdjustmentNotes, "async")
}

// Scenario 4 (spec §8): a null check that doesn't touch the signature is
// a Type A change.
func TestClassify_NullCheckIsTypeA(t *testing.T) {
	iss := fixIssue(
		"function getValue(o,k){ return o[k]; }",
		"function getValue(o,k){ if(!o) return undefined; return o[k]; }",
	)
	got := Classify([]types.Issue{iss})[0]
	assert.Equal(t, types.FixTypeA, got.FixType)
	assert.Empty(t, got.AdjustmentNotes)
}

// Round-trip law: a byte-identical suggestedFix yields Type A with no notes.
func TestClassify_ByteIdenticalFixIsTypeAWithNoNotes(t *testing.T) {
	code := "function f(a,b){ return a+b; }"
	iss := fixIssue(code, code)
	got := Classify([]types.Issue{iss})[0]
	assert.Equal(t, types.FixTypeA, got.FixType)
	assert.Empty(t, got.AdjustmentNotes)
}

// P6: every Type B issue carries non-empty adjustmentNotes.
func TestClassify_TypeBAlwaysHasAdjustmentNotes(t *testing.T) {
	issues := []types.Issue{
		fixIssue("function f(a){ return a; }", "function f(a,b){ return a+b; }"),
		fixIssue("function g(x){ return x; }", "async function g(x){ return x; }"),
	}
	for _, got := range Classify(issues) {
		if got.FixType == types.FixTypeB {
			assert.NotEmpty(t, got.AdjustmentNotes)
		}
	}
}

func TestClassify_RemovedParameterNoted(t *testing.T) {
	iss := fixIssue(
		"function buildQuery(table, id, unused) { return id; }",
		"function buildQuery(table, id) { return id; }",
	)
	got := Classify([]types.Issue{iss})[0]
	require.Equal(t, types.FixTypeB, got.FixType)
	assert.Contains(t, got.AdjustmentNotes, "unused")
}

func TestClassify_RenamedFunctionNoted(t *testing.T) {
	iss := fixIssue(
		"function oldName(a){ return a; }",
		"function newName(a){ return a; }",
	)
	got := Classify([]types.Issue{iss})[0]
	require.Equal(t, types.FixTypeB, got.FixType)
	assert.Contains(t, got.AdjustmentNotes, "oldName")
	assert.Contains(t, got.AdjustmentNotes, "newName")
}

func TestClassify_MissingSnippetOrFixPassesThrough(t *testing.T) {
	iss := types.Issue{Title: "no fix data", Severity: types.SeverityLow, Category: types.CategoryOther, Location: types.Location{File: "a.go", Line: 1}}
	got := Classify([]types.Issue{iss})[0]
	assert.Empty(t, got.FixType)
}

func TestClassify_UnparseableSignatureFallsBackToTypeA(t *testing.T) {
	iss := fixIssue("¯\\_(ツ)_/¯ not code at all", "still not code")
	got := Classify([]types.Issue{iss})[0]
	assert.Equal(t, types.FixTypeA, got.FixType)
}

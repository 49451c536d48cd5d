package analyzer

import (
	"context"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachepkg "github.com/renovate-ai/pr-analyzer/internal/cache"
	"github.com/renovate-ai/pr-analyzer/internal/config"
	"github.com/renovate-ai/pr-analyzer/internal/llmclient"
	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// scriptedCaller returns one canned RawResponse per call, in order; the
// last response repeats once the script is exhausted.
type scriptedCaller struct {
	responses []types.RawResponse
	errs      []error
	calls     int
}

func (s *scriptedCaller) Analyze(_ context.Context, _, _, _, _ string, _ llmclient.Options) (types.RawResponse, error) {
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.responses[i], err
}

func resp(body string) types.RawResponse {
	return types.RawResponse{Kind: types.RawResponseJSON, Body: []byte(body)}
}

func testConfig() config.Config {
	return config.Config{
		MaxIterations:         10,
		PerIterationTimeoutMS: 5000,
		MaxInFlight:           4,
		CacheTTLSeconds:       3600,
		UseCache:              true,
	}
}

func memFsWithFile(t *testing.T, path, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	return fs
}

// Two consecutive zero-delta responses converge the loop well before
// hitting maxIterations (spec §4.5e, P7 bounded iterations).
func TestAnalyzeBranch_ConvergesOnTwoConsecutiveZeroDeltaIterations(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\nline3\n")
	caller := &scriptedCaller{responses: []types.RawResponse{
		resp(`[{"file": "src/a.go", "line": 2, "title": "unused import", "severity": "low", "snippet": "line2"}]`),
		resp(`[]`),
		resp(`[]`),
	}}
	c, err := cachepkg.New(nil, 16, nil)
	require.NoError(t, err)
	az := New(caller, c, fs, nil)

	result, err := az.AnalyzeBranch(context.Background(), "https://github.com/o/r", "main", "gpt-4", "/repo", testConfig())
	require.NoError(t, err)
	assert.True(t, result.Converged)
	assert.Len(t, result.Issues, 1)
	assert.Less(t, result.Iterations, testConfig().MaxIterations)
}

// P7: the loop never exceeds maxIterations even if the model keeps
// returning fresh issues every time.
func TestAnalyzeBranch_NeverExceedsMaxIterations(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\nline3\nline4\nline5\nline6\nline7\nline8\nline9\nline10\nline11\nline12\n")
	// Titles share too few trigrams to fingerprint-match one another, so
	// every response really adds a new issue.
	titles := []string{"sql injection", "race condition", "memory leak", "unchecked error", "dead code", "missing test",
		"nil dereference", "integer overflow", "path traversal", "hardcoded secret", "weak hash", "slow loop"}
	responses := make([]types.RawResponse, 0, 12)
	for i := 1; i <= 12; i++ {
		responses = append(responses, resp(`[{"file": "src/a.go", "line": `+strconv.Itoa(i)+`, "title": "`+titles[i-1]+`", "severity": "low", "snippet": "line`+strconv.Itoa(i)+`"}]`))
	}
	caller := &scriptedCaller{responses: responses}
	c, err := cachepkg.New(nil, 16, nil)
	require.NoError(t, err)
	az := New(caller, c, fs, nil)

	cfg := testConfig()
	cfg.MaxIterations = 5
	result, err := az.AnalyzeBranch(context.Background(), "https://github.com/o/r", "main", "gpt-4", "/repo", cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Iterations, cfg.MaxIterations)
}

func TestAnalyzeBranch_FirstIterationTotalFailureReturnsBranchAnalysisFailed(t *testing.T) {
	fs := afero.NewMemMapFs()
	caller := &scriptedCaller{
		responses: []types.RawResponse{{}},
		errs:       []error{&llmclient.HTTPStatusError{Status: 500, Body: "boom"}},
	}
	c, err := cachepkg.New(nil, 16, nil)
	require.NoError(t, err)
	az := New(caller, c, fs, nil)

	cfg := testConfig()
	_, err = az.AnalyzeBranch(context.Background(), "https://github.com/o/r", "main", "gpt-4", "/repo", cfg)
	require.Error(t, err)
}

// mergeInto tracks missing snippets per issue, not per file: filling one
// issue's snippet must not stop a follow-up prompt from still requesting
// the file for a different issue that shares it but remains unfilled.
func TestBuildPrompt_StillRequestsFileWhenAnotherIssueThereLacksSnippet(t *testing.T) {
	acc := accumulator{missingSnippets: make(map[string]bool)}

	mergeInto(&acc, []types.Issue{
		{Title: "missing nil check", Location: types.Location{File: "src/a.go", Line: 10}},
		{Title: "unused variable", Location: types.Location{File: "src/a.go", Line: 40}},
	})
	require.Len(t, acc.issues, 2)

	// A later iteration supplies a snippet for only the first issue.
	mergeInto(&acc, []types.Issue{
		{Title: "missing nil check", Location: types.Location{File: "src/a.go", Line: 10}, CodeSnippet: "if p != nil {"},
	})
	require.NotEmpty(t, acc.issues[0].CodeSnippet)
	require.Empty(t, acc.issues[1].CodeSnippet)

	az := &Analyzer{}
	prompt, err := az.buildPrompt(1, "https://github.com/o/r", "main", acc)
	require.NoError(t, err)
	assert.Contains(t, prompt, "src/a.go")
}

// P8: a cache hit on the second call with identical inputs returns an
// equivalent BranchAnalysis without invoking the LLM caller again.
func TestAnalyzeBranch_CacheRoundTrip(t *testing.T) {
	fs := memFsWithFile(t, "/repo/src/a.go", "line1\nline2\n")
	caller := &scriptedCaller{responses: []types.RawResponse{
		resp(`[{"file": "src/a.go", "line": 1, "title": "x", "severity": "low", "snippet": "line1"}]`),
		resp(`[]`),
		resp(`[]`),
	}}
	c, err := cachepkg.New(nil, 16, nil)
	require.NoError(t, err)
	az := New(caller, c, fs, nil)
	cfg := testConfig()

	first, err := az.AnalyzeBranch(context.Background(), "https://github.com/o/r", "main", "gpt-4", "/repo", cfg)
	require.NoError(t, err)

	callsAfterFirst := caller.calls
	second, err := az.AnalyzeBranch(context.Background(), "https://github.com/o/r", "main", "gpt-4", "/repo", cfg)
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, caller.calls)
	assert.Equal(t, first, second)
}

package analyzer

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// promptVersion is folded into the cache key (§4.4) so that a template
// rewrite invalidates stale entries without touching schema versioning.
const promptVersion = "v1"

var initialPrompt = prompts.NewPromptTemplate(
	`You are an expert software engineer reviewing a single branch of a repository for defects worth flagging in a pull request review.

**Repository:** {{.repo_url}}
**Branch:** {{.branch_ref}}

Analyze the code on this branch and report concrete issues: security risks, performance problems, correctness bugs, missing tests, architecture concerns, and documentation gaps.

For each issue, report:
- file: the repo-relative file path
- line: the line number
- title: a short, specific title (not "issue" or "bug")
- description: what is wrong and why it matters
- severity: critical, high, medium, or low
- category: security, performance, code-quality, dependencies, architecture, testing, documentation, breaking-change, or other
- snippet: the exact offending code, verbatim
- fix: a suggested fix, if you have one

Respond with a JSON array of issue objects. Do not wrap the array in prose.`,
	[]string{"repo_url", "branch_ref"},
)

var followUpPrompt = prompts.NewPromptTemplate(
	`Continue analyzing the same branch. Do not repeat any issue already reported below.

**Repository:** {{.repo_url}}
**Branch:** {{.branch_ref}}

Already-known issue titles (do not repeat these):
{{.known_titles}}

Look for anything not yet covered. Respond with a JSON array of new issue objects in the same shape as before (file, line, title, description, severity, category, snippet, fix). If you find nothing new, respond with an empty JSON array.`,
	[]string{"repo_url", "branch_ref", "known_titles"},
)

var snippetRequestPrompt = prompts.NewPromptTemplate(
	`Continue analyzing the same branch.

**Repository:** {{.repo_url}}
**Branch:** {{.branch_ref}}

Already-known issue titles (do not repeat these):
{{.known_titles}}

The following previously-reported issues are missing their exact code snippet. For each, supply the precise verbatim code at the given location:
{{.missing_snippets}}

Favor structured JSON in your response: an array of objects with at least file, line, and snippet for each of the paths above, plus any genuinely new issues you notice in the same shape as before.`,
	[]string{"repo_url", "branch_ref", "known_titles", "missing_snippets"},
)

func joinTitles(titles []string) string {
	if len(titles) == 0 {
		return "(none yet)"
	}
	return "- " + strings.Join(titles, "\n- ")
}

func joinMissingSnippets(paths []string) string {
	if len(paths) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(paths, "\n- ")
}

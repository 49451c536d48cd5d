package classifier

import (
	"fmt"
	"strings"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// Classify annotates every issue that carries both a codeSnippet and a
// suggestedFix with fixType and, for Type B, adjustmentNotes (spec §4.8).
// Issues missing either field pass through unchanged.
func Classify(issues []types.Issue) []types.Issue {
	out := make([]types.Issue, len(issues))
	for i, iss := range issues {
		out[i] = classifyOne(iss)
	}
	return out
}

func classifyOne(iss types.Issue) types.Issue {
	if iss.CodeSnippet == "" || iss.SuggestedFix == "" {
		return iss
	}

	if strings.TrimSpace(iss.CodeSnippet) == strings.TrimSpace(iss.SuggestedFix) {
		iss.FixType = types.FixTypeA
		iss.AdjustmentNotes = ""
		return iss
	}

	before := extractSignature(iss.CodeSnippet)
	after := extractSignature(iss.SuggestedFix)

	if !before.matched || !after.matched {
		iss.FixType = types.FixTypeA
		return iss
	}

	notes := diffSignatures(before, after)
	if len(notes) == 0 {
		iss.FixType = types.FixTypeA
		iss.AdjustmentNotes = ""
		return iss
	}

	iss.FixType = types.FixTypeB
	iss.AdjustmentNotes = strings.Join(notes, "; ") + fmt.Sprintf("; all callers of `%s` must be updated", callableName(before, after))
	return iss
}

// diffSignatures implements §4.8 step 2/3: name, parameter count and
// names, return type, and async-ness must all be unchanged for Type A;
// any difference is reported as a note.
func diffSignatures(before, after signature) []string {
	var notes []string

	if before.Name != "" && after.Name != "" && before.Name != after.Name {
		notes = append(notes, fmt.Sprintf("function renamed from `%s` to `%s`", before.Name, after.Name))
	}

	if paramNote := diffParams(before.Params, after.Params); paramNote != "" {
		notes = append(notes, paramNote)
	}

	if before.Return != after.Return && (before.Return != "" || after.Return != "") {
		notes = append(notes, fmt.Sprintf("return type changed from %q to %q", emptyAsImplicit(before.Return), emptyAsImplicit(after.Return)))
	}

	if before.Async != after.Async {
		if after.Async {
			notes = append(notes, "function converted to async")
		} else {
			notes = append(notes, "function converted from async to sync")
		}
	}

	return notes
}

func emptyAsImplicit(t string) string {
	if t == "" {
		return "(implicit)"
	}
	return t
}

func diffParams(before, after []string) string {
	if len(before) == len(after) {
		for i := range before {
			if before[i] != after[i] {
				return fmt.Sprintf("parameter renamed from `%s` to `%s`", before[i], after[i])
			}
		}
		return ""
	}

	beforeSet := toSet(before)
	afterSet := toSet(after)

	var added, removed []string
	for _, p := range after {
		if !beforeSet[p] {
			added = append(added, p)
		}
	}
	for _, p := range before {
		if !afterSet[p] {
			removed = append(removed, p)
		}
	}

	switch {
	case len(added) > 0 && len(removed) == 0:
		return fmt.Sprintf("added parameter(s) %s", strings.Join(quoteAll(added), ", "))
	case len(removed) > 0 && len(added) == 0:
		return fmt.Sprintf("removed parameter(s) %s", strings.Join(quoteAll(removed), ", "))
	default:
		return fmt.Sprintf("parameter count changed from %d to %d", len(before), len(after))
	}
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = "`" + s + "`"
	}
	return out
}

func callableName(before, after signature) string {
	if before.Name != "" {
		return before.Name
	}
	return after.Name
}

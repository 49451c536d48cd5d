// Package parser implements C2: extracting a list of issue records from
// whatever shape the LLM backend actually returned (spec §4.2). It never
// panics or returns an error for malformed input — a strategy that finds
// nothing just yields an empty slice plus a diagnostic string.
package parser

import (
	"encoding/csv"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// ParsedIssue is a partially-filled Issue as extracted from raw LLM text,
// before C3 validation assigns a final confidence score. Status is only
// populated by strategy 5 (status-tagged sections); everything else
// leaves it empty for the categorizer to set later.
type ParsedIssue struct {
	Title        string
	Description  string
	Severity     types.Severity
	Category     types.Category
	File         string
	Line         int
	Column       int
	CodeSnippet  string
	SuggestedFix string
	Status       types.Status

	// SeverityInferred is true when the extraction strategy found no valid
	// severity and postProcess filled it from severityHeuristic
	// (spec §4.2); C3 uses this to apply its own "severity heuristically
	// assigned" confidence penalty (spec §4.3) instead of re-guessing.
	SeverityInferred bool
}

const maxSnippetBytes = 4 * 1024

// BranchContext carries the (external) information the parser may use to
// disambiguate relative paths; spec §4.2 does not require using it beyond
// bookkeeping, so it carries just the branch ref, which Parse does not read.
type BranchContext struct {
	BranchRef string
}

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^unknown$`),
	regexp.MustCompile(`(?i)^example\.`),
	regexp.MustCompile(`(?i)^src/main\.[a-z0-9]+$`),
	regexp.MustCompile(`(?i)^your_`),
}

// IsPlaceholder reports whether a file path is one of the synthetic
// placeholders C3/C2 must reject (spec §4.2, §4.3, glossary).
func IsPlaceholder(file string) bool {
	for _, p := range placeholderPatterns {
		if p.MatchString(file) {
			return true
		}
	}
	return false
}

// Result is C2's output: the extracted issues plus an optional diagnostic
// describing why nothing (or something degraded) was found.
type Result struct {
	Issues           []ParsedIssue
	ParseDiagnostics string
}

// strategy is one extraction attempt; an empty result means it found
// nothing and Parse moves on to the next strategy.
type strategy func(raw string) []ParsedIssue

// Parse runs the five strategies in order, stopping at the first that
// yields at least one issue (spec §4.2).
func Parse(raw types.RawResponse, _ BranchContext) Result {
	text := string(raw.Body)

	strategies := []struct {
		name string
		fn   strategy
	}{
		{"json", parseJSON},
		{"template-blocks", parseTemplateBlocks},
		{"numbered-prose", parseNumberedProse},
		{"csv-xml", parseCSVXML},
		{"status-tagged", parseStatusTagged},
	}

	for _, s := range strategies {
		issues := s.fn(text)
		if len(issues) > 0 {
			return Result{Issues: postProcess(issues)}
		}
	}
	return Result{ParseDiagnostics: "no strategy extracted any issue from the response"}
}

// postProcess applies the common finishing steps to every strategy's
// output: severity heuristics, snippet trimming, placeholder rejection.
func postProcess(issues []ParsedIssue) []ParsedIssue {
	out := make([]ParsedIssue, 0, len(issues))
	for _, iss := range issues {
		if iss.File == "" || IsPlaceholder(iss.File) {
			continue
		}
		if !iss.Severity.Valid() {
			iss.Severity = severityHeuristic(iss.Title + " " + iss.Description)
			iss.SeverityInferred = true
		}
		if len(iss.CodeSnippet) > maxSnippetBytes {
			iss.CodeSnippet = iss.CodeSnippet[:maxSnippetBytes]
		}
		if iss.Category == "" {
			iss.Category = types.CategoryOther
		}
		out = append(out, iss)
	}
	return out
}

var (
	highKeywords = regexp.MustCompile(`(?i)injection|vulnerab|leak|race`)
	lowKeywords  = regexp.MustCompile(`(?i)unused|style|docstring`)
)

// severityHeuristic fills a missing severity from keyword hints in the
// text it is given; postProcess passes title and description (spec §4.2).
func severityHeuristic(title string) types.Severity {
	switch {
	case highKeywords.MatchString(title):
		return types.SeverityHigh
	case lowKeywords.MatchString(title):
		return types.SeverityLow
	default:
		return types.SeverityMedium
	}
}

// --- Strategy 1: JSON object/array after trimming prose prefix/suffix ---

var jsonFieldAliases = map[string][]string{
	"file":         {"file", "path", "filepath"},
	"line":         {"line", "lineNumber"},
	"title":        {"title", "message", "issue"},
	"severity":     {"severity"},
	"category":     {"category"},
	"codeSnippet":  {"codeSnippet", "code", "snippet"},
	"suggestedFix": {"suggestedFix", "fix", "remediation"},
}

func lookupAlias(m map[string]any, canonical string) (any, bool) {
	for _, alias := range jsonFieldAliases[canonical] {
		if v, ok := m[alias]; ok {
			return v, true
		}
	}
	return nil, false
}

func parseJSON(raw string) []ParsedIssue {
	candidate := extractJSONCandidate(raw)
	if candidate == "" {
		return nil
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
		return issuesFromMaps(arr)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
		if rawIssues, ok := obj["issues"]; ok {
			if asSlice, ok := rawIssues.([]any); ok {
				maps := make([]map[string]any, 0, len(asSlice))
				for _, item := range asSlice {
					if m, ok := item.(map[string]any); ok {
						maps = append(maps, m)
					}
				}
				return issuesFromMaps(maps)
			}
		}
		return issuesFromMaps([]map[string]any{obj})
	}
	return nil
}

// extractJSONCandidate trims any prose prefix/suffix surrounding the first
// top-level JSON array or object in raw.
func extractJSONCandidate(raw string) string {
	startArr := strings.IndexByte(raw, '[')
	startObj := strings.IndexByte(raw, '{')
	start := -1
	var open, close byte
	switch {
	case startArr == -1 && startObj == -1:
		return ""
	case startArr == -1:
		start, open, close = startObj, '{', '}'
	case startObj == -1:
		start, open, close = startArr, '[', ']'
	case startArr < startObj:
		start, open, close = startArr, '[', ']'
	default:
		start, open, close = startObj, '{', '}'
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			if escape {
				escape = false
			} else if c == '\\' {
				escape = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func issuesFromMaps(maps []map[string]any) []ParsedIssue {
	issues := make([]ParsedIssue, 0, len(maps))
	for _, m := range maps {
		var iss ParsedIssue
		if v, ok := lookupAlias(m, "file"); ok {
			iss.File = asString(v)
		}
		if v, ok := lookupAlias(m, "line"); ok {
			iss.Line = asInt(v)
		}
		if v, ok := lookupAlias(m, "title"); ok {
			iss.Title = asString(v)
		}
		if v, ok := lookupAlias(m, "severity"); ok {
			iss.Severity = types.Severity(strings.ToLower(asString(v)))
		}
		if v, ok := lookupAlias(m, "category"); ok {
			iss.Category = types.Category(strings.ToLower(asString(v)))
		}
		if v, ok := lookupAlias(m, "codeSnippet"); ok {
			iss.CodeSnippet = asString(v)
		}
		if v, ok := lookupAlias(m, "suggestedFix"); ok {
			iss.SuggestedFix = asString(v)
		}
		if desc, ok := m["description"]; ok {
			iss.Description = asString(desc)
		}
		if iss.Title == "" && iss.File == "" {
			continue
		}
		issues = append(issues, iss)
	}
	return issues
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// --- Strategy 2: template blocks delimited by ISSUE:/--- separators ---

var (
	templateFieldRe = regexp.MustCompile(`(?im)^\s*(file|line|title|severity|category|snippet|fix)\s*:\s*(.*)$`)
)

func parseTemplateBlocks(raw string) []ParsedIssue {
	if !strings.Contains(raw, "ISSUE:") {
		return nil
	}
	blocks := regexp.MustCompile(`(?i)ISSUE:`).Split(raw, -1)
	var issues []ParsedIssue
	for _, block := range blocks[1:] {
		// A block runs until the next "---" separator.
		if idx := strings.Index(block, "---"); idx >= 0 {
			block = block[:idx]
		}
		var iss ParsedIssue
		matches := templateFieldRe.FindAllStringSubmatch(block, -1)
		for _, m := range matches {
			key, val := strings.ToLower(m[1]), strings.TrimSpace(m[2])
			switch key {
			case "file":
				iss.File = val
			case "line":
				iss.Line, _ = strconv.Atoi(val)
			case "title":
				iss.Title = val
			case "severity":
				iss.Severity = types.Severity(strings.ToLower(val))
			case "category":
				iss.Category = types.Category(strings.ToLower(val))
			case "snippet":
				iss.CodeSnippet = val
			case "fix":
				iss.SuggestedFix = val
			}
		}
		if iss.File != "" || iss.Title != "" {
			issues = append(issues, iss)
		}
	}
	return issues
}

// --- Strategy 3: numbered prose ---

var (
	numberedFilePathRe = regexp.MustCompile(`(?im)^\s*\d+\.\s*\*\*File Path:\s*([^\*]+)\*\*\s*Line\s*(\d+)\s*:?\s*(.*)$`)
	fileLineRe         = regexp.MustCompile(`(?im)File:\s*([^,]+),\s*Line:\s*(\d+)\s*-?\s*(.*)$`)
)

func parseNumberedProse(raw string) []ParsedIssue {
	// Text laid out in NEW/FIXED/UNCHANGED ISSUES sections is left to
	// strategy 5: its bullet items use the same "File: p, Line: k" shape and
	// would otherwise be taken here without their section's status.
	if statusSectionRe.MatchString(raw) {
		return nil
	}
	var issues []ParsedIssue
	for _, m := range numberedFilePathRe.FindAllStringSubmatch(raw, -1) {
		line, _ := strconv.Atoi(m[2])
		issues = append(issues, ParsedIssue{
			File:  strings.TrimSpace(m[1]),
			Line:  line,
			Title: strings.TrimSpace(m[3]),
		})
	}
	for _, m := range fileLineRe.FindAllStringSubmatch(raw, -1) {
		line, _ := strconv.Atoi(m[2])
		issues = append(issues, ParsedIssue{
			File:  strings.TrimSpace(m[1]),
			Line:  line,
			Title: strings.TrimSpace(m[3]),
		})
	}
	return issues
}

// --- Strategy 4: CSV/XML fallback, fixed schema ---
// type,severity,file,line,title,snippet,fix

func parseCSVXML(raw string) []ParsedIssue {
	if issues := parseXMLIssues(raw); len(issues) > 0 {
		return issues
	}
	return parseCSVIssues(raw)
}

func parseCSVIssues(raw string) []ParsedIssue {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	r := csv.NewReader(strings.NewReader(trimmed))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) == 0 {
		return nil
	}

	start := 0
	header := records[0]
	if len(header) > 0 && strings.EqualFold(strings.TrimSpace(header[0]), "type") {
		start = 1
	}

	var issues []ParsedIssue
	for _, rec := range records[start:] {
		if len(rec) < 7 {
			continue
		}
		line, _ := strconv.Atoi(strings.TrimSpace(rec[3]))
		issues = append(issues, ParsedIssue{
			Category:     types.Category(strings.ToLower(strings.TrimSpace(rec[0]))),
			Severity:     types.Severity(strings.ToLower(strings.TrimSpace(rec[1]))),
			File:         strings.TrimSpace(rec[2]),
			Line:         line,
			Title:        strings.TrimSpace(rec[4]),
			CodeSnippet:  strings.TrimSpace(rec[5]),
			SuggestedFix: strings.TrimSpace(rec[6]),
		})
	}
	return issues
}

var xmlIssueRe = regexp.MustCompile(`(?is)<issue>(.*?)</issue>`)

var xmlFieldOrder = []string{"type", "severity", "file", "line", "title", "snippet", "fix"}

var xmlFieldRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(xmlFieldOrder))
	for _, field := range xmlFieldOrder {
		m[field] = regexp.MustCompile(`(?is)<` + field + `>(.*?)</` + field + `>`)
	}
	return m
}()

func parseXMLIssues(raw string) []ParsedIssue {
	blocks := xmlIssueRe.FindAllStringSubmatch(raw, -1)
	if blocks == nil {
		return nil
	}
	var issues []ParsedIssue
	for _, b := range blocks {
		body := b[1]
		var iss ParsedIssue
		for _, field := range xmlFieldOrder {
			m := xmlFieldRes[field].FindStringSubmatch(body)
			if m == nil {
				continue
			}
			val := strings.TrimSpace(m[1])
			switch field {
			case "type":
				iss.Category = types.Category(strings.ToLower(val))
			case "severity":
				iss.Severity = types.Severity(strings.ToLower(val))
			case "file":
				iss.File = val
			case "line":
				iss.Line, _ = strconv.Atoi(val)
			case "title":
				iss.Title = val
			case "snippet":
				iss.CodeSnippet = val
			case "fix":
				iss.SuggestedFix = val
			}
		}
		issues = append(issues, iss)
	}
	return issues
}

// --- Strategy 5: status-tagged PR prose ---

var statusSectionRe = regexp.MustCompile(`(?im)^\s*(NEW ISSUES|FIXED ISSUES|UNCHANGED ISSUES)\s*$`)

func parseStatusTagged(raw string) []ParsedIssue {
	locs := statusSectionRe.FindAllStringSubmatchIndex(raw, -1)
	if len(locs) == 0 {
		return nil
	}

	var issues []ParsedIssue
	for i, loc := range locs {
		sectionName := raw[loc[2]:loc[3]]
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := raw[loc[1]:end]

		status := types.StatusNew
		switch strings.ToUpper(sectionName) {
		case "FIXED ISSUES":
			status = types.StatusFixed
		case "UNCHANGED ISSUES":
			status = types.StatusUnchanged
		}

		for _, item := range splitBulletItems(body) {
			iss := parseBulletItem(item)
			if iss == nil {
				continue
			}
			iss.Status = status
			issues = append(issues, *iss)
		}
	}
	return issues
}

var bulletSplitRe = regexp.MustCompile(`(?m)^\s*[-*]\s+`)

func splitBulletItems(body string) []string {
	parts := bulletSplitRe.Split(body, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBulletItem(item string) *ParsedIssue {
	m := fileLineRe.FindStringSubmatch(item)
	if m == nil {
		return nil
	}
	line, _ := strconv.Atoi(m[2])
	return &ParsedIssue{
		File:  strings.TrimSpace(m[1]),
		Line:  line,
		Title: strings.TrimSpace(m[3]),
	}
}

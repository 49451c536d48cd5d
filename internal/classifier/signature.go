// Package classifier implements C8: deciding whether a suggested fix
// preserves a function's public signature (fixType=A) or changes it
// (fixType=B), and explaining the difference (spec §4.8). It never calls
// the LLM and runs in bounded time: pure regex-based extraction and
// comparison.
package classifier

import (
	"regexp"
	"strings"
)

// signature is the extracted shape of a callable, language-agnostic
// enough to cover the function/method families named in spec §4.8.
type signature struct {
	Name    string
	Params  []string
	Return  string
	Async   bool
	matched bool
}

// signaturePatterns recognizes function/method declarations across the
// major families the teacher's own dependency analysis already names
// (JS/TS, Go, Python, Java/C#-style), in priority order.
var signaturePatterns = []*regexp.Regexp{
	// JS/TS: [async] function name(params) [: returnType]
	regexp.MustCompile(`(?m)^\s*(?P<async>async\s+)?function\s+(?P<name>[A-Za-z_$][\w$]*)\s*\((?P<params>[^)]*)\)\s*(?::\s*(?P<return>[\w<>\[\]., ]+))?`),
	// Go: func [recv] name(params) [returnType]
	regexp.MustCompile(`(?m)^\s*func\s*(?:\([^)]*\)\s*)?(?P<name>[A-Za-z_]\w*)\s*\((?P<params>[^)]*)\)\s*(?P<return>[\w\[\]*., ]*)`),
	// Python: [async ]def name(params) [-> returnType]
	regexp.MustCompile(`(?m)^\s*(?P<async>async\s+)?def\s+(?P<name>[A-Za-z_]\w*)\s*\((?P<params>[^)]*)\)\s*(?:->\s*(?P<return>[\w\[\]., ]+))?`),
	// Java/C#/TS method: [modifiers] returnType name(params)
	regexp.MustCompile(`(?m)^\s*(?:public|private|protected|static|\s)*\s*(?P<return>[\w<>\[\]]+)\s+(?P<name>[A-Za-z_]\w*)\s*\((?P<params>[^)]*)\)`),
}

// extractSignature implements spec §4.8 step 1. A failed extraction
// returns signature{matched: false}; classifyOne then emits fixType=A
// rather than erroring. No low-confidence marker is recorded on the issue
// for that fallback.
func extractSignature(code string) signature {
	for _, re := range signaturePatterns {
		m := re.FindStringSubmatch(code)
		if m == nil {
			continue
		}
		names := re.SubexpNames()
		sig := signature{matched: true}
		for i, n := range names {
			if i == 0 || i >= len(m) {
				continue
			}
			switch n {
			case "name":
				sig.Name = strings.TrimSpace(m[i])
			case "params":
				sig.Params = splitParams(m[i])
			case "return":
				sig.Return = normalizeType(m[i])
			case "async":
				sig.Async = strings.TrimSpace(m[i]) != ""
			}
		}
		if sig.Name != "" {
			return sig
		}
	}
	return signature{}
}

func splitParams(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		name := paramName(p)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// paramName extracts the bare identifier from a parameter declaration,
// stripping type annotations, default values, and Go-style "name type"
// or "name Type" pairs down to the name itself.
func paramName(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if i := strings.Index(p, "="); i >= 0 {
		p = strings.TrimSpace(p[:i])
	}
	if i := strings.Index(p, ":"); i >= 0 {
		p = strings.TrimSpace(p[:i])
	}
	fields := strings.Fields(p)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimLeft(fields[0], "*&")
}

func normalizeType(t string) string {
	return strings.Join(strings.Fields(t), " ")
}

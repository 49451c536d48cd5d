// Package categorizer implements C7: fingerprinting issues so they can be
// matched across branches without relying on line numbers (spec §4.7),
// and the NEW/FIXED/UNCHANGED bucketing, deduplication, summary and
// decision that build on top of that match function.
package categorizer

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// Fingerprint is the deterministic tuple used to identify an issue, both
// within a single analysis (as the basis for Issue.ID, assigned by C5) and
// across branches (as the basis for cross-branch matching, here).
type Fingerprint struct {
	NormalizedTitle       string
	NormalizedDescription string
	FileBasename          string
	FullFile              string
	Category              types.Category
}

var (
	punctuationRe = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	severityWordRe = regexp.MustCompile(`\b(critical|high|medium|low)\b`)
)

// normalize lowercases, strips punctuation, collapses whitespace, and
// removes severity words (spec §4.7's normalizedTitle recipe).
func normalize(s string) string {
	s = strings.ToLower(s)
	s = severityWordRe.ReplaceAllString(s, "")
	s = punctuationRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Compute derives an issue's fingerprint per spec §4.7.
func Compute(issue types.Issue) Fingerprint {
	desc := normalize(issue.Description)
	if len(desc) > 120 {
		desc = desc[:120]
	}
	return Fingerprint{
		NormalizedTitle:       normalize(issue.Title),
		NormalizedDescription: desc,
		FileBasename:          filepath.Base(issue.Location.File),
		FullFile:              issue.Location.File,
		Category:              issue.Category,
	}
}

// ID derives a stable, deterministic id from an issue's fingerprint
// (spec §3's "id: stable fingerprint"). Two issues that fingerprint
// identically within one analysis would collide here; C5's merge step is
// responsible for deduplicating before ids are assigned, which keeps I3
// (no two issues in one analysis share an id) satisfied.
func ID(issue types.Issue) string {
	fp := Compute(issue)
	h := sha256.Sum256([]byte(fp.NormalizedTitle + "|" + fp.NormalizedDescription + "|" + fp.FullFile + "|" + string(fp.Category)))
	return hex.EncodeToString(h[:])[:16]
}

// trigrams returns the set of 3-character-gram tokens of s, used for the
// Jaccard similarity fallback when normalized titles differ verbatim.
func trigrams(s string) map[string]struct{} {
	tokens := strings.Fields(s)
	joined := strings.Join(tokens, " ")
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(joined); i++ {
		set[joined[i:i+3]] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

const jaccardThreshold = 0.75

// Match reports whether two fingerprints refer to the same underlying
// issue (spec §4.7's match function). Line numbers are never part of the
// key, by construction: Fingerprint has no line field.
func Match(a, b Fingerprint) (bool, matchWeights) {
	if a.Category != b.Category {
		return false, matchWeights{}
	}

	titleEqual := a.NormalizedTitle == b.NormalizedTitle
	similar := false
	if !titleEqual {
		ta := trigrams(a.NormalizedTitle + " " + a.NormalizedDescription)
		tb := trigrams(b.NormalizedTitle + " " + b.NormalizedDescription)
		similar = jaccard(ta, tb) >= jaccardThreshold
	}
	if !titleEqual && !similar {
		return false, matchWeights{}
	}

	fullPathEqual := a.FullFile == b.FullFile
	basenameEqual := a.FileBasename == b.FileBasename
	if !basenameEqual && !fullPathEqual {
		return false, matchWeights{}
	}

	return true, matchWeights{titleEqual: titleEqual, fullPathEqual: fullPathEqual, basenameEqual: basenameEqual}
}

type matchWeights struct {
	titleEqual    bool
	fullPathEqual bool
	basenameEqual bool
}

// Confidence reports the match confidence per spec §4.7's
// "100 * (title_weight + description_weight + file_weight) / total"
// formula, where a full-file-path match contributes more than a
// basename-only match.
func (w matchWeights) Confidence() int {
	const (
		titleWeight    = 40
		descWeight     = 20
		fileWeightFull = 40
		fileWeightBase = 25
		max            = 100
	)
	score := descWeight // credited on every match: Match never scores descriptions on their own
	if w.titleEqual {
		score += titleWeight
	} else {
		score += titleWeight / 2 // matched via Jaccard, not exact title equality
	}
	if w.fullPathEqual {
		score += fileWeightFull
	} else if w.basenameEqual {
		score += fileWeightBase
	}
	if score > max {
		score = max
	}
	return score
}

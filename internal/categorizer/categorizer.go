package categorizer

import (
	"sort"

	"github.com/renovate-ai/pr-analyzer/internal/types"
)

// Result is C7's output, handed to C8 and then returned to the caller as
// the bulk of ComparisonResult (spec §4.9).
type Result struct {
	New       []types.Issue
	Fixed     []types.Issue
	Unchanged []types.Issue
	Summary   types.Summary
}

type candidate struct {
	issue       types.Issue
	fingerprint Fingerprint
	consumed    bool
}

type pairing struct {
	mainIdx    int
	prIdx      int
	confidence int
}

// Categorize implements spec §4.7: greedy highest-confidence matching
// (ties broken by severity) between main and PR issues, producing
// disjoint NEW/FIXED/UNCHANGED buckets, then per-bucket deduplication and
// the summary/decision.
//
// Categorize is a pure function of its inputs (P4: determinism) and is
// insensitive to permutations of location.line (P5), since Fingerprint
// never incorporates a line number.
func Categorize(mainIssues, prIssues []types.Issue) Result {
	mainCandidates := toCandidates(mainIssues)
	prCandidates := toCandidates(prIssues)

	pairings := findPairings(mainCandidates, prCandidates)

	var unchangedMain, unchangedPR []types.Issue
	for _, p := range pairings {
		mainCandidates[p.mainIdx].consumed = true
		prCandidates[p.prIdx].consumed = true
		unchangedMain = append(unchangedMain, mainCandidates[p.mainIdx].issue)
		unchangedPR = append(unchangedPR, prCandidates[p.prIdx].issue)
	}

	var fixed, newIssues, unchanged []types.Issue
	for _, c := range mainCandidates {
		if !c.consumed {
			fixed = append(fixed, c.issue)
		}
	}
	for _, c := range prCandidates {
		if !c.consumed {
			newIssues = append(newIssues, c.issue)
		}
	}
	// "unchanged" reports the PR-side record (current code state) for each
	// matched pair, carrying the higher of the two confidences forward.
	for i := range unchangedPR {
		m := unchangedMain[i]
		p := unchangedPR[i]
		if m.Confidence > p.Confidence {
			p.Confidence = m.Confidence
		}
		unchanged = append(unchanged, p)
	}

	newIssues = dedupe(newIssues)
	fixed = dedupe(fixed)
	unchanged = dedupe(unchanged)

	stampStatus(newIssues, types.StatusNew)
	stampStatus(fixed, types.StatusFixed)
	stampStatus(unchanged, types.StatusUnchanged)

	types.SortIssues(newIssues)
	types.SortIssues(fixed)
	types.SortIssues(unchanged)

	return Result{
		New:       newIssues,
		Fixed:     fixed,
		Unchanged: unchanged,
		Summary:   summarize(newIssues, fixed, unchanged),
	}
}

// stampStatus sets status on every issue in bucket in place (spec §3's I4:
// C7 is the sole setter of Issue.Status).
func stampStatus(bucket []types.Issue, status types.Status) {
	for i := range bucket {
		bucket[i].Status = status
	}
}

func toCandidates(issues []types.Issue) []candidate {
	out := make([]candidate, len(issues))
	for i, iss := range issues {
		out[i] = candidate{issue: iss, fingerprint: Compute(iss)}
	}
	return out
}

// findPairings greedily matches the highest-confidence pair first, then
// the next highest among remaining candidates, breaking ties by severity
// (critical first) per spec §4.7.
func findPairings(mainCandidates, prCandidates []candidate) []pairing {
	var all []pairing
	for mi, m := range mainCandidates {
		for pi, p := range prCandidates {
			if ok, weights := Match(m.fingerprint, p.fingerprint); ok {
				all = append(all, pairing{mainIdx: mi, prIdx: pi, confidence: weights.Confidence()})
			}
		}
	}

	severityRank := map[types.Severity]int{
		types.SeverityCritical: 0,
		types.SeverityHigh:     1,
		types.SeverityMedium:   2,
		types.SeverityLow:      3,
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].confidence != all[j].confidence {
			return all[i].confidence > all[j].confidence
		}
		si := severityRank[mainCandidates[all[i].mainIdx].issue.Severity]
		sj := severityRank[mainCandidates[all[j].mainIdx].issue.Severity]
		return si < sj
	})

	usedMain := make(map[int]bool)
	usedPR := make(map[int]bool)
	var chosen []pairing
	for _, p := range all {
		if usedMain[p.mainIdx] || usedPR[p.prIdx] {
			continue
		}
		usedMain[p.mainIdx] = true
		usedPR[p.prIdx] = true
		chosen = append(chosen, p)
	}
	return chosen
}

// dedupe collapses issues within a bucket whose fingerprints match,
// keeping the highest-confidence record and recording Occurrences
// (spec §4.7 "post-categorization deduplication").
func dedupe(issues []types.Issue) []types.Issue {
	type group struct {
		best  types.Issue
		count int
	}
	var groups []group

	for _, iss := range issues {
		fp := Compute(iss)
		merged := false
		for gi := range groups {
			existingFP := Compute(groups[gi].best)
			if ok, _ := Match(fp, existingFP); ok {
				groups[gi].count++
				if iss.Confidence > groups[gi].best.Confidence {
					groups[gi].best = iss
				}
				merged = true
				break
			}
		}
		if !merged {
			groups = append(groups, group{best: iss, count: 1})
		}
	}

	out := make([]types.Issue, 0, len(groups))
	for _, g := range groups {
		iss := g.best
		if g.count > 1 {
			iss.Occurrences = g.count
		}
		out = append(out, iss)
	}
	return out
}

func summarize(newIssues, fixed, unchanged []types.Issue) types.Summary {
	var s types.Summary
	s.ByStatus = types.StatusCounts{
		New:       len(newIssues),
		Fixed:     len(fixed),
		Unchanged: len(unchanged),
	}
	for _, bucket := range [][]types.Issue{newIssues, fixed, unchanged} {
		for _, i := range bucket {
			s.BySeverity.Add(i.Severity)
		}
	}

	counts := countBySeverityAndStatus(newIssues, fixed)

	score := 100
	score -= 25 * counts.newCritical
	score -= 10 * counts.newHigh
	score -= 5 * counts.newMedium
	score -= 2 * counts.newLow
	score += 5 * counts.fixedCritical
	score += 3 * counts.fixedHigh
	score += 1 * counts.fixedMedium
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	decision := types.DecisionApprove
	switch {
	case counts.newCritical > 0:
		decision = types.DecisionDecline
	case counts.newHigh > 2:
		decision = types.DecisionReview
	}

	s.QualityScore = score
	s.NetImpact = len(newIssues) - len(fixed)
	s.Decision = decision
	return s
}

type severityStatusCounts struct {
	newCritical, newHigh, newMedium, newLow       int
	fixedCritical, fixedHigh, fixedMedium, fixedLow int
}

func countBySeverityAndStatus(newIssues, fixed []types.Issue) severityStatusCounts {
	var c severityStatusCounts
	for _, i := range newIssues {
		switch i.Severity {
		case types.SeverityCritical:
			c.newCritical++
		case types.SeverityHigh:
			c.newHigh++
		case types.SeverityMedium:
			c.newMedium++
		case types.SeverityLow:
			c.newLow++
		}
	}
	for _, i := range fixed {
		switch i.Severity {
		case types.SeverityCritical:
			c.fixedCritical++
		case types.SeverityHigh:
			c.fixedHigh++
		case types.SeverityMedium:
			c.fixedMedium++
		case types.SeverityLow:
			c.fixedLow++
		}
	}
	return c
}

// Package pipelineerr defines the error taxonomy from spec §7: transport,
// protocol, parse, validation, analysis, orchestration and programming
// kinds. Only Analysis/Orchestration/Programming errors are meant to reach
// the coordinator's caller; the rest are local to C1/C5 (see each
// component's propagation rules).
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind names one of the seven error buckets from spec §7.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindProtocol      Kind = "protocol"
	KindParse         Kind = "parse"
	KindValidation    Kind = "validation"
	KindAnalysis      Kind = "analysis"
	KindOrchestration Kind = "orchestration"
	KindProgramming   Kind = "programming"
)

// Error wraps a cause with the bucket it belongs to, so callers can branch
// on Kind via errors.As without string matching.
type Error struct {
	Kind      Kind
	BranchRef string
	Cause     error
}

func (e *Error) Error() string {
	if e.BranchRef != "" {
		return fmt.Sprintf("%s error on branch %q: %v", e.Kind, e.BranchRef, e.Cause)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, branchRef string, cause error) *Error {
	return &Error{Kind: kind, BranchRef: branchRef, Cause: cause}
}

// Transport classifies a C1 connection-level failure (§7).
func Transport(cause error) *Error { return new_(KindTransport, "", cause) }

// Protocol classifies a non-retryable HTTP status surfaced by C1 (§7).
func Protocol(cause error) *Error { return new_(KindProtocol, "", cause) }

// Parse classifies "no strategy extracted any issue" — never fatal (§7).
func Parse(cause error) *Error { return new_(KindParse, "", cause) }

// Validation classifies "all issues filtered" — never fatal (§7).
func Validation(cause error) *Error { return new_(KindValidation, "", cause) }

// BranchAnalysisFailed is C5's terminal failure: iteration 1 produced no
// issues and the LLM call failed terminally (§4.5, §7).
func BranchAnalysisFailed(branchRef string, cause error) *Error {
	return new_(KindAnalysis, branchRef, cause)
}

// PipelineFailed is C6's terminal failure: both branches failed, or the
// pair timeout elapsed (§4.6, §7).
func PipelineFailed(cause error) *Error { return new_(KindOrchestration, "", cause) }

// Programming classifies an invariant violation (I1-I7). It must never be
// silently swallowed; callers should abort the run.
func Programming(cause error) *Error { return new_(KindProgramming, "", cause) }

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

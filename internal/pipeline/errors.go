package pipeline

import "fmt"

// RetrievalError wraps embedding or index failures. Hard failure: the
// request stops without an escalation, since an escalation implies evidence
// was gathered and judged, which did not happen.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// SynthesisError wraps completer failures. Hard failure; no automatic
// retry, the call is idempotent to re-issue from the caller.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

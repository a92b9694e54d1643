// Package apperrors implements the error taxonomy of spec.md §7,
// adapted from go-coffee's pkg/errors: a wrapped error with a Kind tag
// instead of the teacher's full HTTP-status/request-ID context (this
// is a control loop, not an API server, so most of that context has
// no home here).
package apperrors

import "fmt"

// Kind classifies an error per the taxonomy table in spec.md §7.
type Kind string

const (
	KindConfigInvalid      Kind = "config_invalid"
	KindMetricsFetch       Kind = "metrics_fetch"
	KindDegenerateInputs   Kind = "degenerate_inputs"
	KindCapacityUnknown    Kind = "capacity_unknown"
	KindPolicyFailure      Kind = "policy_failure"
	KindSpawnFailure       Kind = "spawn_failure"
	KindTerminationFailure Kind = "termination_failure"
)

// Error wraps an underlying cause with a Kind tag so callers can
// branch on error category without string matching.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// IsFatal reports whether this error kind should abort startup rather
// than degrade gracefully (spec.md §7: "only configuration-validation
// failures at startup are fatal").
func (e *Error) IsFatal() bool {
	return e.Kind == KindConfigInvalid
}

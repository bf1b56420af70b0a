package engine

import "fmt"

// NotBoundError means no flow governs the subject yet.
type NotBoundError struct {
	SubjectId string
}

func (e NotBoundError) Error() string {
	return fmt.Sprintf("subject %s is not bound to a flow", e.SubjectId)
}

// TransitionNotResolvableError is a structural caller error: nothing in the
// subject's flow matches the requested slug or from/to pair.
type TransitionNotResolvableError struct {
	FlowId int64
	Slug   string
	From   string
	Target *int64
}

func (e TransitionNotResolvableError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("flow %d has no runnable transition %q from state %q", e.FlowId, e.Slug, e.From)
	}
	if e.Target != nil {
		return fmt.Sprintf("flow %d has no transition from state %q to state %d", e.FlowId, e.From, *e.Target)
	}
	return fmt.Sprintf("flow %d: no transition requested", e.FlowId)
}

// ConcurrentStateConflictError reports that the optimistic check at commit
// found the subject's state changed underneath the transition. Callers may
// re-read the subject and retry resolution.
type ConcurrentStateConflictError struct {
	SubjectId string
	Expected  string
}

func (e ConcurrentStateConflictError) Error() string {
	return fmt.Sprintf("subject %s moved away from state %q during the transition", e.SubjectId, e.Expected)
}

// ActionFailureError wraps an inline action task failure. The state change
// had not been committed yet, so retrying the whole transition is safe.
type ActionFailureError struct {
	Driver string
	Err    error
}

func (e ActionFailureError) Error() string {
	return fmt.Sprintf("action task %q failed: %v", e.Driver, e.Err)
}

func (e ActionFailureError) Unwrap() error {
	return e.Err
}

// FlowUnavailableError is raised when a fixed-id bind targets a disabled or
// soft-deleted flow.
type FlowUnavailableError struct {
	FlowId int64
	Reason string
}

func (e FlowUnavailableError) Error() string {
	return fmt.Sprintf("flow %d is unavailable: %s", e.FlowId, e.Reason)
}

package model

import "time"

// SubjectRef is the engine's view of the entity a flow governs. Status is an
// opaque comparable value; the engine never enumerates its members.
type SubjectRef struct {
	Id      string         `json:"id"`
	Type    string         `json:"type"`
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload"`
}

// SelectionContext carries everything FlowPicker needs to choose a flow for
// a subject. Environments and Channels are preference lists ordered most
// preferred first.
type SelectionContext struct {
	SubjectType      string    `json:"subjectType"`
	Scope            *string   `json:"scope"`
	Collection       *string   `json:"collection"`
	Environments     []string  `json:"environments"`
	Channels         []string  `json:"channels"`
	At               time.Time `json:"at"`
	RolloutNamespace string    `json:"rolloutNamespace"`
	RolloutKey       string    `json:"rolloutKey"`
	OnlyActive       bool      `json:"onlyActive"`
	EvaluateRollout  bool      `json:"evaluateRollout"`
}

const DEFAULT_ROLLOUT_NAMESPACE = "flowkit"

func NewSelectionContext(subjectType string, rolloutKey string) SelectionContext {
	return SelectionContext{
		SubjectType:      subjectType,
		RolloutNamespace: DEFAULT_ROLLOUT_NAMESPACE,
		RolloutKey:       rolloutKey,
		At:               time.Now(),
		OnlyActive:       true,
		EvaluateRollout:  true,
	}
}

// TransitionRequest asks the runner to move a subject. Either Slug or Target
// identifies the transition; Payload is handed to the transition's tasks.
type TransitionRequest struct {
	Subject SubjectRef     `json:"subject"`
	Slug    string         `json:"slug"`
	Target  *int64         `json:"target"`
	Payload map[string]any `json:"payload"`
}

type RunPhase string

const PHASE_RESOLVED RunPhase = "RESOLVED"
const PHASE_VALIDATING RunPhase = "VALIDATING"
const PHASE_RESTRICTING RunPhase = "RESTRICTING"
const PHASE_ACTING RunPhase = "ACTING"
const PHASE_COMMITTED RunPhase = "COMMITTED"
const PHASE_REJECTED RunPhase = "REJECTED"

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TransitionResult is the structured outcome of a single run. Validation
// failures and restriction denials land here rather than in an error return;
// they are expected business outcomes.
type TransitionResult struct {
	Phase            RunPhase     `json:"phase"`
	RejectedIn       RunPhase     `json:"rejectedIn,omitempty"`
	TransitionId     int64        `json:"transitionId"`
	Slug             string       `json:"slug"`
	PreviousStatus   string       `json:"previousStatus"`
	NewStatus        string       `json:"newStatus"`
	ValidationErrors []FieldError `json:"validationErrors,omitempty"`
	DenialReason     string       `json:"denialReason,omitempty"`
	Enqueued         []string     `json:"enqueued,omitempty"`
}

func (r *TransitionResult) Committed() bool {
	return r.Phase == PHASE_COMMITTED
}

func (r *TransitionResult) Rejected() bool {
	return r.Phase == PHASE_REJECTED
}

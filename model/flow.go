package model

import "time"

type StateKind string

const STATE_KIND_START StateKind = "START"
const STATE_KIND_STATE StateKind = "STATE"
const STATE_KIND_END StateKind = "END"

type FlowStatus string

const FLOW_STATUS_ENABLED FlowStatus = "ENABLED"
const FLOW_STATUS_DISABLED FlowStatus = "DISABLED"

// Flow is a workflow definition selectable for a subject type. States and
// Transitions are embedded so a single catalog read yields the whole graph
// snapshot.
type Flow struct {
	Id                int64            `json:"id"`
	Name              string           `json:"name"`
	SubjectType       string           `json:"subjectType"`
	SubjectScope      *string          `json:"subjectScope"`
	SubjectCollection *string          `json:"subjectCollection"`
	IsDefault         bool             `json:"isDefault"`
	Status            FlowStatus       `json:"status"`
	ActiveFrom        *time.Time       `json:"activeFrom"`
	ActiveTo          *time.Time       `json:"activeTo"`
	Channel           string           `json:"channel"`
	Environment       string           `json:"environment"`
	RolloutPct        *int             `json:"rolloutPct"`
	Ordering          int              `json:"ordering"`
	DeletedAt         *time.Time       `json:"deletedAt"`
	States            []FlowState      `json:"states"`
	Transitions       []FlowTransition `json:"transitions"`
}

func (f *Flow) IsDeleted() bool {
	return f.DeletedAt != nil
}

// IsActiveAt reports whether the flow is enabled, not soft deleted and
// inside its activity window at the given instant. Either window bound may
// be nil.
func (f *Flow) IsActiveAt(at time.Time) bool {
	if f.Status != FLOW_STATUS_ENABLED || f.IsDeleted() {
		return false
	}
	if f.ActiveFrom != nil && at.Before(*f.ActiveFrom) {
		return false
	}
	if f.ActiveTo != nil && at.After(*f.ActiveTo) {
		return false
	}
	return true
}

type FlowState struct {
	Id         int64          `json:"id"`
	FlowId     int64          `json:"flowId"`
	Kind       StateKind      `json:"kind"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	IsTerminal bool           `json:"isTerminal"`
	Meta       map[string]any `json:"meta"`
}

type TransitionType string

const TRANSITION_TYPE_SPECIFIC TransitionType = "SPECIFIC"
const TRANSITION_TYPE_SELF_LOOP TransitionType = "SELF_LOOP"
const TRANSITION_TYPE_GENERIC_INPUT TransitionType = "GENERIC_INPUT"
const TRANSITION_TYPE_GENERIC_OUTPUT TransitionType = "GENERIC_OUTPUT"
const TRANSITION_TYPE_INVALID TransitionType = "INVALID"

// FlowTransition is a directed edge of a flow's graph. From and To hold
// FlowState ids; a nil endpoint is a wildcard.
type FlowTransition struct {
	Id     int64      `json:"id"`
	FlowId int64      `json:"flowId"`
	Slug   string     `json:"slug"`
	From   *int64     `json:"from"`
	To     *int64     `json:"to"`
	Tasks  []FlowTask `json:"tasks"`
}

// Type derives the transition kind from its endpoints.
func (t *FlowTransition) Type() TransitionType {
	switch {
	case t.From == nil && t.To == nil:
		return TRANSITION_TYPE_INVALID
	case t.From == nil:
		return TRANSITION_TYPE_GENERIC_INPUT
	case t.To == nil:
		return TRANSITION_TYPE_GENERIC_OUTPUT
	case *t.From == *t.To:
		return TRANSITION_TYPE_SELF_LOOP
	default:
		return TRANSITION_TYPE_SPECIFIC
	}
}

type TaskType string

const TASK_TYPE_VALIDATION TaskType = "VALIDATION"
const TASK_TYPE_RESTRICTION TaskType = "RESTRICTION"
const TASK_TYPE_ACTION TaskType = "ACTION"

type TaskStatus string

const TASK_STATUS_ENABLED TaskStatus = "ENABLED"
const TASK_STATUS_DISABLED TaskStatus = "DISABLED"

// FlowTask attaches a unit of work to a transition. Config is opaque to the
// engine; it is validated against the driver's declared form and resolved
// against the subject payload before execution.
type FlowTask struct {
	Id           int64          `json:"id"`
	TransitionId int64          `json:"transitionId"`
	Driver       string         `json:"driver"`
	Type         TaskType       `json:"type"`
	Ordering     int            `json:"ordering"`
	Status       TaskStatus     `json:"status"`
	Config       map[string]any `json:"config"`
}

// SubjectBinding records which flow governs a subject. The subject's own
// status attribute stays the source of truth for its current state.
type SubjectBinding struct {
	Id          string    `json:"id"`
	SubjectId   string    `json:"subjectId"`
	SubjectType string    `json:"subjectType"`
	FlowId      int64     `json:"flowId"`
	BoundAt     time.Time `json:"boundAt"`
}

package graph

import (
	"fmt"

	"github.com/flowkit/flowkit/model"
)

// View is a point-in-time snapshot of one flow's state graph with lookup
// indexes. Validation always runs against a freshly built view so concurrent
// administrative edits cannot slip past the structural checks.
type View struct {
	FlowId      int64
	states      map[int64]model.FlowState
	start       *model.FlowState
	transitions []model.FlowTransition
}

type Rule string

const RuleSingleStart Rule = "single-start"
const RuleEndpointsRequired Rule = "endpoints-required"
const RuleUnknownState Rule = "unknown-state"
const RuleStartAsTarget Rule = "start-as-target"
const RuleStartSelfLoop Rule = "start-self-loop"
const RuleStartExitExists Rule = "start-exit-exists"
const RuleFirstFromStart Rule = "first-from-start"
const RuleTerminalGenericOutput Rule = "terminal-generic-output"
const RuleDuplicateEdge Rule = "duplicate-edge"
const RuleDuplicateSlug Rule = "duplicate-slug"
const RuleStartUndeletable Rule = "start-undeletable"
const RuleStateReferenced Rule = "state-referenced"

// StructuralViolationError reports a broken graph invariant. Each rule has a
// distinct identifier so callers can map violations to user-facing messages.
type StructuralViolationError struct {
	Rule    Rule
	Message string
}

func (e StructuralViolationError) Error() string {
	return fmt.Sprintf("structural violation (%s): %s", e.Rule, e.Message)
}

func violation(rule Rule, format string, args ...any) StructuralViolationError {
	return StructuralViolationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// NewView indexes the flow's states and transitions. It rejects a flow that
// does not hold the exactly-one-START invariant.
func NewView(flow *model.Flow) (*View, error) {
	v := &View{
		FlowId:      flow.Id,
		states:      make(map[int64]model.FlowState, len(flow.States)),
		transitions: flow.Transitions,
	}
	for _, s := range flow.States {
		s := s
		v.states[s.Id] = s
		if s.Kind == model.STATE_KIND_START {
			if v.start != nil {
				return nil, violation(RuleSingleStart, "flow %d has more than one START state", flow.Id)
			}
			v.start = &s
		}
	}
	if v.start == nil {
		return nil, violation(RuleSingleStart, "flow %d has no START state", flow.Id)
	}
	return v, nil
}

func (v *View) StartState() model.FlowState {
	return *v.start
}

func (v *View) StateById(id int64) (model.FlowState, bool) {
	s, ok := v.states[id]
	return s, ok
}

// StateByStatus finds the state carrying the given domain status value.
func (v *View) StateByStatus(status string) (model.FlowState, bool) {
	for _, s := range v.states {
		if s.Status == status {
			return s, true
		}
	}
	return model.FlowState{}, false
}

func (v *View) Transitions() []model.FlowTransition {
	return v.transitions
}

func (v *View) TransitionBySlug(slug string) (model.FlowTransition, bool) {
	for _, t := range v.transitions {
		if t.Slug == slug {
			return t, true
		}
	}
	return model.FlowTransition{}, false
}

func (v *View) TransitionById(id int64) (model.FlowTransition, bool) {
	for _, t := range v.transitions {
		if t.Id == id {
			return t, true
		}
	}
	return model.FlowTransition{}, false
}

func sameEndpoint(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ValidateTransition checks a proposed edge (with effective from/to values)
// against the graph. excludeId skips one stored transition during updates.
func ValidateTransition(v *View, slug string, from *int64, to *int64, excludeId *int64) error {
	if from == nil && to == nil {
		return violation(RuleEndpointsRequired, "at least one of from/to must be set")
	}
	for _, endpoint := range []*int64{from, to} {
		if endpoint == nil {
			continue
		}
		if _, ok := v.states[*endpoint]; !ok {
			return violation(RuleUnknownState, "state %d does not belong to flow %d", *endpoint, v.FlowId)
		}
	}
	start := v.start.Id
	if to != nil && *to == start {
		return violation(RuleStartAsTarget, "the START state can not be a transition target")
	}
	if from != nil && to != nil && *from == *to && *from == start {
		return violation(RuleStartSelfLoop, "the START state can not loop on itself")
	}
	if from != nil && *from == start {
		for _, t := range v.transitions {
			if excludeId != nil && t.Id == *excludeId {
				continue
			}
			if t.From != nil && *t.From == start {
				return violation(RuleStartExitExists, "flow %d already has a transition out of START", v.FlowId)
			}
		}
	}
	if len(remaining(v.transitions, excludeId)) == 0 {
		if from == nil || *from != start {
			return violation(RuleFirstFromStart, "the first transition of a flow must originate at START")
		}
	}
	if from != nil && to == nil {
		if s := v.states[*from]; s.IsTerminal {
			return violation(RuleTerminalGenericOutput, "terminal state %d can not have a generic-output transition", *from)
		}
	}
	for _, t := range v.transitions {
		if excludeId != nil && t.Id == *excludeId {
			continue
		}
		if sameEndpoint(t.From, from) && sameEndpoint(t.To, to) {
			return violation(RuleDuplicateEdge, "flow %d already has a transition between these states", v.FlowId)
		}
		if slug != "" && t.Slug == slug {
			return violation(RuleDuplicateSlug, "flow %d already has a transition with slug %q", v.FlowId, slug)
		}
	}
	return nil
}

func remaining(transitions []model.FlowTransition, excludeId *int64) []model.FlowTransition {
	if excludeId == nil {
		return transitions
	}
	result := make([]model.FlowTransition, 0, len(transitions))
	for _, t := range transitions {
		if t.Id != *excludeId {
			result = append(result, t)
		}
	}
	return result
}

// ValidateStateDelete rejects deleting START while anything else anchors on
// the graph, and deleting any state still referenced by a transition.
func ValidateStateDelete(v *View, stateId int64) error {
	s, ok := v.states[stateId]
	if !ok {
		return violation(RuleUnknownState, "state %d does not belong to flow %d", stateId, v.FlowId)
	}
	if s.Kind == model.STATE_KIND_START && (len(v.states) > 1 || len(v.transitions) > 0) {
		return violation(RuleStartUndeletable, "the START state anchors the graph and can not be deleted")
	}
	for _, t := range v.transitions {
		if (t.From != nil && *t.From == stateId) || (t.To != nil && *t.To == stateId) {
			return violation(RuleStateReferenced, "state %d is referenced by transition %q", stateId, t.Slug)
		}
	}
	return nil
}

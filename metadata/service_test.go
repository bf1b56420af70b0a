package metadata

import (
	"testing"

	"github.com/flowkit/flowkit/graph"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence/inmem"
	"github.com/flowkit/flowkit/registry"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *registry.TaskRegistry) {
	t.Helper()
	reg := registry.NewTaskRegistry()
	return NewService(inmem.NewFlowCatalog(), reg), reg
}

func createFlow(t *testing.T, s *Service) *model.Flow {
	t.Helper()
	flow, err := s.CreateFlow(model.Flow{Name: "order-flow", SubjectType: "order"})
	require.NoError(t, err)
	return flow
}

func requireViolation(t *testing.T, err error, rule graph.Rule) {
	t.Helper()
	require.Error(t, err)
	violation, ok := err.(graph.StructuralViolationError)
	require.True(t, ok, "expected StructuralViolationError, got %T", err)
	require.Equal(t, rule, violation.Rule)
}

func TestCreateFlowSeedsStart(t *testing.T) {
	s, _ := newService(t)
	flow := createFlow(t, s)

	require.Len(t, flow.States, 1)
	require.Equal(t, model.STATE_KIND_START, flow.States[0].Kind)
	require.Equal(t, model.FLOW_STATUS_ENABLED, flow.Status)

	// START can not be added by hand.
	_, err := s.CreateState(flow.Id, model.FlowState{Kind: model.STATE_KIND_START})
	requireViolation(t, err, graph.RuleSingleStart)

	// A flow without a subject type is rejected.
	_, err = s.CreateFlow(model.Flow{Name: "nameless"})
	require.Error(t, err)
}

func buildGraph(t *testing.T, s *Service) (*model.Flow, model.FlowState, model.FlowState, model.FlowState) {
	t.Helper()
	flow := createFlow(t, s)
	start := flow.States[0]
	processing, err := s.CreateState(flow.Id, model.FlowState{Name: "Processing", Status: "processing"})
	require.NoError(t, err)
	done, err := s.CreateState(flow.Id, model.FlowState{Kind: model.STATE_KIND_END, Name: "Done", Status: "done"})
	require.NoError(t, err)
	require.True(t, done.IsTerminal)
	return flow, start, *processing, *done
}

func TestTransitionLifecycle(t *testing.T) {
	s, _ := newService(t)
	flow, start, processing, done := buildGraph(t, s)

	t1, err := s.CreateTransition(flow.Id, model.FlowTransition{Slug: "t1", From: &start.Id, To: &processing.Id})
	require.NoError(t, err)
	t2, err := s.CreateTransition(flow.Id, model.FlowTransition{Slug: "t2", From: &processing.Id, To: &done.Id})
	require.NoError(t, err)

	// START self loop and a second START exit are both structural errors.
	_, err = s.CreateTransition(flow.Id, model.FlowTransition{Slug: "loop", From: &start.Id, To: &start.Id})
	require.Error(t, err)
	_, err = s.CreateTransition(flow.Id, model.FlowTransition{Slug: "again", From: &start.Id, To: &done.Id})
	requireViolation(t, err, graph.RuleStartExitExists)

	// Update with omitted endpoints keeps the stored values; moving t2's
	// source to START would create a second START exit next to t1.
	fromStart := start.Id
	_, err = s.UpdateTransition(flow.Id, t2.Id, TransitionPatch{From: &fromStart, FromSet: true})
	requireViolation(t, err, graph.RuleStartExitExists)

	// A legal slug-only rename leaves the endpoints alone.
	slug := "finish"
	updated, err := s.UpdateTransition(flow.Id, t2.Id, TransitionPatch{Slug: &slug})
	require.NoError(t, err)
	require.Equal(t, "finish", updated.Slug)
	require.Equal(t, processing.Id, *updated.From)
	require.Equal(t, done.Id, *updated.To)

	require.NoError(t, s.DeleteTransition(flow.Id, t2.Id))
	require.NoError(t, s.DeleteTransition(flow.Id, t1.Id))
	require.Error(t, s.DeleteTransition(flow.Id, t1.Id))
}

func TestCreateTransitionStripsTasks(t *testing.T) {
	s, _ := newService(t)
	flow, start, processing, _ := buildGraph(t, s)

	created, err := s.CreateTransition(flow.Id, model.FlowTransition{
		Slug: "t1",
		From: &start.Id,
		To:   &processing.Id,
		Tasks: []model.FlowTask{
			{Driver: "ghost", Type: model.TASK_TYPE_ACTION},
		},
	})
	require.NoError(t, err)
	require.Empty(t, created.Tasks)

	stored, err := s.GetFlow(flow.Id)
	require.NoError(t, err)
	require.Empty(t, stored.Transitions[0].Tasks)
}

func TestFirstTransitionMustLeaveStart(t *testing.T) {
	s, _ := newService(t)
	flow, _, processing, done := buildGraph(t, s)

	_, err := s.CreateTransition(flow.Id, model.FlowTransition{Slug: "t2", From: &processing.Id, To: &done.Id})
	requireViolation(t, err, graph.RuleFirstFromStart)
}

func TestDeleteStateRules(t *testing.T) {
	s, _ := newService(t)
	flow, start, processing, done := buildGraph(t, s)

	_, err := s.CreateTransition(flow.Id, model.FlowTransition{Slug: "t1", From: &start.Id, To: &processing.Id})
	require.NoError(t, err)

	// START anchors the graph.
	requireViolation(t, s.DeleteState(flow.Id, start.Id), graph.RuleStartUndeletable)
	// A referenced state can not go either.
	requireViolation(t, s.DeleteState(flow.Id, processing.Id), graph.RuleStateReferenced)
	// The unreferenced terminal state can.
	require.NoError(t, s.DeleteState(flow.Id, done.Id))
}

func TestAddTask(t *testing.T) {
	s, reg := newService(t)
	flow, start, processing, _ := buildGraph(t, s)
	t1, err := s.CreateTransition(flow.Id, model.FlowTransition{Slug: "t1", From: &start.Id, To: &processing.Id})
	require.NoError(t, err)

	// Unregistered driver surfaces, never silently ignored.
	_, err = s.AddTask(flow.Id, t1.Id, model.FlowTask{Driver: "ghost", Type: model.TASK_TYPE_ACTION})
	require.Error(t, err)
	_, ok := err.(registry.DriverNotRegisteredError)
	require.True(t, ok)

	require.NoError(t, reg.Register(registry.NewScriptRestriction("gate", "order")))
	require.NoError(t, reg.Register(registry.NewScriptRestriction("invoice-gate", "invoice")))

	// Task type must match the driver's declared type.
	_, err = s.AddTask(flow.Id, t1.Id, model.FlowTask{Driver: "gate", Type: model.TASK_TYPE_ACTION})
	require.Error(t, err)

	// Config is checked against the driver's form.
	_, err = s.AddTask(flow.Id, t1.Id, model.FlowTask{Driver: "gate", Type: model.TASK_TYPE_RESTRICTION})
	require.Error(t, err)

	// The driver's subject type must match the flow's.
	_, err = s.AddTask(flow.Id, t1.Id, model.FlowTask{
		Driver: "invoice-gate",
		Type:   model.TASK_TYPE_RESTRICTION,
		Config: map[string]any{registry.CONFIG_KEY_EXPRESSION: "true"},
	})
	require.Error(t, err)

	task, err := s.AddTask(flow.Id, t1.Id, model.FlowTask{
		Driver: "gate",
		Type:   model.TASK_TYPE_RESTRICTION,
		Config: map[string]any{registry.CONFIG_KEY_EXPRESSION: "true"},
	})
	require.NoError(t, err)
	require.Equal(t, model.TASK_STATUS_ENABLED, task.Status)

	stored, err := s.GetFlow(flow.Id)
	require.NoError(t, err)
	require.Len(t, stored.Transitions[0].Tasks, 1)
}

func TestTuneFlow(t *testing.T) {
	s, _ := newService(t)
	flow := createFlow(t, s)

	pct := 25
	tuned, err := s.TuneFlow(flow.Id, func(f *model.Flow) {
		f.Status = model.FLOW_STATUS_DISABLED
		f.RolloutPct = &pct
	})
	require.NoError(t, err)
	require.Equal(t, model.FLOW_STATUS_DISABLED, tuned.Status)
	require.Equal(t, 25, *tuned.RolloutPct)
}

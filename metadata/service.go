package metadata

import (
	"fmt"
	"sync"

	"github.com/flowkit/flowkit/graph"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/registry"
	"go.uber.org/zap"
)

// Service is the administrative write path over flow definitions. Every
// structural mutation re-reads the current graph snapshot and validates it
// under a per-flow mutex, so two concurrent edits against the same flow can
// not both pass uniqueness or START-exit checks on a stale snapshot.
type Service struct {
	catalog  persistence.FlowCatalog
	registry *registry.TaskRegistry

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(catalog persistence.FlowCatalog, reg *registry.TaskRegistry) *Service {
	return &Service{
		catalog:  catalog,
		registry: reg,
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *Service) flowLock(flowId int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[flowId]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[flowId] = lock
	}
	return lock
}

// CreateFlow persists a new flow definition and creates its START state,
// which exists from birth and is never created by hand.
func (s *Service) CreateFlow(flow model.Flow) (*model.Flow, error) {
	if flow.SubjectType == "" {
		return nil, fmt.Errorf("flow subject type is required")
	}
	if flow.Status == "" {
		flow.Status = model.FLOW_STATUS_ENABLED
	}
	id, err := s.catalog.NextId("flow")
	if err != nil {
		return nil, err
	}
	startId, err := s.catalog.NextId("state")
	if err != nil {
		return nil, err
	}
	flow.Id = id
	flow.States = []model.FlowState{{
		Id:     startId,
		FlowId: id,
		Kind:   model.STATE_KIND_START,
		Name:   "Start",
	}}
	flow.Transitions = nil
	if err := s.catalog.SaveFlow(flow); err != nil {
		return nil, err
	}
	logger.Info("flow created", zap.Int64("flow", flow.Id), zap.String("subjectType", flow.SubjectType))
	return &flow, nil
}

func (s *Service) DeleteFlow(flowId int64) error {
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	return s.catalog.DeleteFlow(flowId)
}

// TuneFlow covers the runtime tuning a flow definition allows after
// creation: enable/disable, activity window and rollout percentage.
func (s *Service) TuneFlow(flowId int64, tune func(*model.Flow)) (*model.Flow, error) {
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	tune(flow)
	if err := s.catalog.SaveFlow(*flow); err != nil {
		return nil, err
	}
	return flow, nil
}

func (s *Service) CreateState(flowId int64, state model.FlowState) (*model.FlowState, error) {
	if state.Kind == model.STATE_KIND_START {
		return nil, graph.StructuralViolationError{
			Rule:    graph.RuleSingleStart,
			Message: "a START state is created with the flow and can not be added",
		}
	}
	if state.Kind == "" {
		state.Kind = model.STATE_KIND_STATE
	}
	if state.Kind == model.STATE_KIND_END {
		state.IsTerminal = true
	}
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	id, err := s.catalog.NextId("state")
	if err != nil {
		return nil, err
	}
	state.Id = id
	state.FlowId = flowId
	flow.States = append(flow.States, state)
	if err := s.catalog.SaveFlow(*flow); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Service) DeleteState(flowId int64, stateId int64) error {
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return err
	}
	view, err := graph.NewView(flow)
	if err != nil {
		return err
	}
	if err := graph.ValidateStateDelete(view, stateId); err != nil {
		return err
	}
	states := make([]model.FlowState, 0, len(flow.States))
	for _, st := range flow.States {
		if st.Id != stateId {
			states = append(states, st)
		}
	}
	flow.States = states
	return s.catalog.SaveFlow(*flow)
}

func (s *Service) CreateTransition(flowId int64, transition model.FlowTransition) (*model.FlowTransition, error) {
	if transition.Slug == "" {
		return nil, fmt.Errorf("transition slug is required")
	}
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	view, err := graph.NewView(flow)
	if err != nil {
		return nil, err
	}
	if err := graph.ValidateTransition(view, transition.Slug, transition.From, transition.To, nil); err != nil {
		return nil, err
	}
	id, err := s.catalog.NextId("transition")
	if err != nil {
		return nil, err
	}
	transition.Id = id
	transition.FlowId = flowId
	// Tasks only enter through AddTask, where the driver, type and config
	// are validated.
	transition.Tasks = nil
	flow.Transitions = append(flow.Transitions, transition)
	if err := s.catalog.SaveFlow(*flow); err != nil {
		return nil, err
	}
	logger.Info("transition created", zap.Int64("flow", flowId), zap.String("slug", transition.Slug))
	return &transition, nil
}

// TransitionPatch carries a partial update. Set flags distinguish "set to
// nil" from "omitted"; omitted fields keep their stored value and all rules
// are evaluated against those effective values.
type TransitionPatch struct {
	Slug    *string
	From    *int64
	FromSet bool
	To      *int64
	ToSet   bool
}

func (s *Service) UpdateTransition(flowId int64, transitionId int64, patch TransitionPatch) (*model.FlowTransition, error) {
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	view, err := graph.NewView(flow)
	if err != nil {
		return nil, err
	}
	stored, ok := view.TransitionById(transitionId)
	if !ok {
		return nil, persistence.NotFoundError{Kind: "transition", Key: fmt.Sprintf("%d", transitionId)}
	}
	effective := stored
	if patch.Slug != nil {
		effective.Slug = *patch.Slug
	}
	if patch.FromSet {
		effective.From = patch.From
	}
	if patch.ToSet {
		effective.To = patch.To
	}
	slug := ""
	if effective.Slug != stored.Slug {
		slug = effective.Slug
	}
	if err := graph.ValidateTransition(view, slug, effective.From, effective.To, &transitionId); err != nil {
		return nil, err
	}
	for i := range flow.Transitions {
		if flow.Transitions[i].Id == transitionId {
			effective.Tasks = flow.Transitions[i].Tasks
			flow.Transitions[i] = effective
		}
	}
	if err := s.catalog.SaveFlow(*flow); err != nil {
		return nil, err
	}
	return &effective, nil
}

func (s *Service) DeleteTransition(flowId int64, transitionId int64) error {
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return err
	}
	transitions := make([]model.FlowTransition, 0, len(flow.Transitions))
	found := false
	for _, t := range flow.Transitions {
		if t.Id == transitionId {
			found = true
			continue
		}
		transitions = append(transitions, t)
	}
	if !found {
		return persistence.NotFoundError{Kind: "transition", Key: fmt.Sprintf("%d", transitionId)}
	}
	flow.Transitions = transitions
	return s.catalog.SaveFlow(*flow)
}

// AddTask attaches a task to a transition after resolving its driver and
// checking the config against the driver's declared form.
func (s *Service) AddTask(flowId int64, transitionId int64, task model.FlowTask) (*model.FlowTask, error) {
	driver, err := s.registry.Resolve(task.Driver)
	if err != nil {
		return nil, err
	}
	if driver.Type() != task.Type {
		return nil, fmt.Errorf("task type %s does not match driver %q type %s", task.Type, task.Driver, driver.Type())
	}
	if err := driver.Form().ValidateConfig(task.Config); err != nil {
		return nil, err
	}
	lock := s.flowLock(flowId)
	lock.Lock()
	defer lock.Unlock()
	flow, err := s.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	if driver.SubjectType() != flow.SubjectType {
		return nil, fmt.Errorf("driver %q applies to subject type %q, flow governs %q", task.Driver, driver.SubjectType(), flow.SubjectType)
	}
	if task.Status == "" {
		task.Status = model.TASK_STATUS_ENABLED
	}
	id, err := s.catalog.NextId("task")
	if err != nil {
		return nil, err
	}
	task.Id = id
	task.TransitionId = transitionId
	for i := range flow.Transitions {
		if flow.Transitions[i].Id == transitionId {
			flow.Transitions[i].Tasks = append(flow.Transitions[i].Tasks, task)
			if err := s.catalog.SaveFlow(*flow); err != nil {
				return nil, err
			}
			return &task, nil
		}
	}
	return nil, persistence.NotFoundError{Kind: "transition", Key: fmt.Sprintf("%d", transitionId)}
}

func (s *Service) GetFlow(flowId int64) (*model.Flow, error) {
	return s.catalog.GetFlow(flowId)
}

package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/flowkit/flowkit/graph"
	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/registry"
	"github.com/flowkit/flowkit/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DEFAULT_ACTION_QUEUE = "flow-actions"

// BackgroundJob is the payload handed to the durable queue for a
// background-eligible action. Delivery is at-least-once, so the driver run
// must be idempotent; JobId identifies redeliveries.
type BackgroundJob struct {
	JobId        string           `json:"jobId"`
	Driver       string           `json:"driver"`
	Subject      model.SubjectRef `json:"subject"`
	FlowId       int64            `json:"flowId"`
	TransitionId int64            `json:"transitionId"`
	Config       map[string]any   `json:"config"`
	Payload      map[string]any   `json:"payload"`
}

// Runner executes the task pipeline of a single transition:
// Resolved -> Validating -> Restricting -> Acting -> Committed, with
// Rejected reachable from Validating and Restricting. Validation failures
// and restriction denials are reported in the result, not as errors.
type Runner struct {
	catalog   persistence.FlowCatalog
	bindings  persistence.BindingStore
	subjects  persistence.SubjectStore
	registry  *registry.TaskRegistry
	queue     persistence.Queue
	queueName string
	jobEncDec util.EncoderDecoder[BackgroundJob]
}

func NewRunner(catalog persistence.FlowCatalog, bindings persistence.BindingStore, subjects persistence.SubjectStore, reg *registry.TaskRegistry, queue persistence.Queue, queueName string) *Runner {
	if queueName == "" {
		queueName = DEFAULT_ACTION_QUEUE
	}
	return &Runner{
		catalog:   catalog,
		bindings:  bindings,
		subjects:  subjects,
		registry:  reg,
		queue:     queue,
		queueName: queueName,
		jobEncDec: util.NewJsonEncoderDecoder[BackgroundJob](),
	}
}

func (r *Runner) Run(ctx context.Context, req model.TransitionRequest) (*model.TransitionResult, error) {
	binding, err := r.bindings.Get(req.Subject.Id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return nil, NotBoundError{SubjectId: req.Subject.Id}
		}
		return nil, err
	}
	flow, err := r.catalog.GetFlow(binding.FlowId)
	if err != nil {
		return nil, err
	}
	view, err := graph.NewView(flow)
	if err != nil {
		return nil, err
	}
	current, err := r.currentStatus(req.Subject.Id)
	if err != nil {
		return nil, err
	}

	transition, err := r.resolve(view, req, current)
	if err != nil {
		return nil, err
	}
	logger.Debug("transition resolved",
		zap.Int64("flow", flow.Id),
		zap.String("slug", transition.Slug),
		zap.String("subject", req.Subject.Id),
		zap.String("from", current))

	result := &model.TransitionResult{
		Phase:          model.PHASE_RESOLVED,
		TransitionId:   transition.Id,
		Slug:           transition.Slug,
		PreviousStatus: current,
		NewStatus:      current,
	}

	validations, restrictions, actions, err := r.resolveTasks(transition)
	if err != nil {
		return nil, err
	}

	subject := req.Subject
	subject.Status = current
	runData := map[string]any{
		"subject": map[string]any{
			"id":      subject.Id,
			"type":    subject.Type,
			"status":  subject.Status,
			"payload": subject.Payload,
		},
		"payload": req.Payload,
	}
	taskCtx := func(task model.FlowTask) registry.TaskContext {
		return registry.TaskContext{
			Subject:    subject,
			Transition: transition,
			Config:     util.ResolveConfig(runData, task.Config),
			Payload:    req.Payload,
		}
	}

	// Validating: every validation task runs, errors accumulate, nothing is
	// partially applied.
	result.Phase = model.PHASE_VALIDATING
	for _, rt := range validations {
		fieldErrs, err := rt.driver.(registry.ValidationDriver).Validate(ctx, taskCtx(rt.task))
		if err != nil {
			return nil, err
		}
		result.ValidationErrors = append(result.ValidationErrors, fieldErrs...)
	}
	if len(result.ValidationErrors) > 0 {
		result.Phase = model.PHASE_REJECTED
		result.RejectedIn = model.PHASE_VALIDATING
		logger.Info("transition rejected by validation",
			zap.String("slug", transition.Slug),
			zap.String("subject", subject.Id),
			zap.Int("errors", len(result.ValidationErrors)))
		return result, nil
	}

	// Restricting: first deny short-circuits the phase.
	result.Phase = model.PHASE_RESTRICTING
	for _, rt := range restrictions {
		verdict, err := rt.driver.(registry.RestrictionDriver).Restrict(ctx, taskCtx(rt.task))
		if err != nil {
			return nil, err
		}
		if !verdict.Allow {
			result.Phase = model.PHASE_REJECTED
			result.RejectedIn = model.PHASE_RESTRICTING
			result.DenialReason = verdict.Reason
			logger.Info("transition denied",
				zap.String("slug", transition.Slug),
				zap.String("subject", subject.Id),
				zap.String("reason", verdict.Reason))
			return result, nil
		}
	}

	// Acting: background-eligible actions are deferred past commit; an
	// inline failure aborts the remaining inline actions. The state pointer
	// has not moved yet, so nothing needs rolling back.
	result.Phase = model.PHASE_ACTING
	var deferred []resolvedTask
	for _, rt := range actions {
		actionDriver := rt.driver.(registry.ActionDriver)
		if backgroundEligible(actionDriver, rt.task) {
			deferred = append(deferred, rt)
			continue
		}
		if err := actionDriver.Act(ctx, taskCtx(rt.task)); err != nil {
			result.Phase = model.PHASE_REJECTED
			result.RejectedIn = model.PHASE_ACTING
			logger.Error("inline action failed",
				zap.String("slug", transition.Slug),
				zap.String("driver", rt.task.Driver),
				zap.Error(err))
			return result, ActionFailureError{Driver: rt.task.Driver, Err: err}
		}
	}

	// Committed: move the subject's status under an optimistic check. A
	// generic-output transition with no destination leaves the status alone.
	next := current
	if transition.To != nil {
		toState, _ := view.StateById(*transition.To)
		next = toState.Status
	}
	if next != current {
		if err := r.subjects.CompareAndSetStatus(subject.Id, current, next); err != nil {
			var conflict persistence.StatusConflictError
			if errors.As(err, &conflict) {
				return nil, ConcurrentStateConflictError{SubjectId: subject.Id, Expected: current}
			}
			return nil, err
		}
	}
	result.Phase = model.PHASE_COMMITTED
	result.NewStatus = next

	for _, rt := range deferred {
		job := BackgroundJob{
			JobId:        uuid.New().String(),
			Driver:       rt.task.Driver,
			Subject:      subject,
			FlowId:       flow.Id,
			TransitionId: transition.Id,
			Config:       util.ResolveConfig(runData, rt.task.Config),
			Payload:      req.Payload,
		}
		data, err := r.jobEncDec.Encode(job)
		if err != nil {
			logger.Error("error encoding background job", zap.String("driver", job.Driver), zap.Error(err))
			continue
		}
		if err := r.queue.Enqueue(r.queueName, data); err != nil {
			logger.Error("error enqueueing background action", zap.String("driver", job.Driver), zap.Error(err))
			continue
		}
		result.Enqueued = append(result.Enqueued, job.Driver)
	}

	logger.Info("transition committed",
		zap.Int64("flow", flow.Id),
		zap.String("slug", transition.Slug),
		zap.String("subject", subject.Id),
		zap.String("from", current),
		zap.String("to", next))
	return result, nil
}

func (r *Runner) currentStatus(subjectId string) (string, error) {
	status, err := r.subjects.CurrentStatus(subjectId)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			// A fresh subject has no stored status yet; it sits at START.
			return "", nil
		}
		return "", err
	}
	return status, nil
}

// resolve finds the transition to run: by slug when given, otherwise by
// (from=current state, to=target), falling back to a generic-input edge on
// the target. The chosen transition's from endpoint must match the subject's
// current state unless it is a wildcard.
func (r *Runner) resolve(view *graph.View, req model.TransitionRequest, current string) (model.FlowTransition, error) {
	if req.Slug != "" {
		transition, ok := view.TransitionBySlug(req.Slug)
		if !ok || !r.fromMatches(view, transition, current) {
			return model.FlowTransition{}, TransitionNotResolvableError{FlowId: view.FlowId, Slug: req.Slug, From: current}
		}
		return transition, nil
	}
	if req.Target == nil {
		return model.FlowTransition{}, TransitionNotResolvableError{FlowId: view.FlowId}
	}
	var genericInput *model.FlowTransition
	for _, t := range view.Transitions() {
		t := t
		if t.To == nil || *t.To != *req.Target {
			continue
		}
		if t.From == nil {
			genericInput = &t
			continue
		}
		if r.fromMatches(view, t, current) {
			return t, nil
		}
	}
	if genericInput != nil {
		return *genericInput, nil
	}
	return model.FlowTransition{}, TransitionNotResolvableError{FlowId: view.FlowId, From: current, Target: req.Target}
}

// backgroundEligible defers an action when the driver declares itself
// background or the task config opts in.
func backgroundEligible(driver registry.ActionDriver, task model.FlowTask) bool {
	if driver.Background() {
		return true
	}
	b, ok := task.Config[registry.CONFIG_KEY_BACKGROUND].(bool)
	return ok && b
}

func (r *Runner) fromMatches(view *graph.View, transition model.FlowTransition, current string) bool {
	if transition.From == nil {
		return true
	}
	fromState, ok := view.StateById(*transition.From)
	if !ok {
		return false
	}
	return fromState.Status == current
}

type resolvedTask struct {
	task   model.FlowTask
	driver registry.TaskDriver
}

// resolveTasks gathers the transition's enabled tasks in ascending ordering,
// grouped by phase, resolving every driver up front so an unregistered
// driver surfaces before any task runs.
func (r *Runner) resolveTasks(transition model.FlowTransition) (validations, restrictions, actions []resolvedTask, err error) {
	tasks := make([]model.FlowTask, 0, len(transition.Tasks))
	for _, task := range transition.Tasks {
		if task.Status == model.TASK_STATUS_ENABLED {
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Ordering < tasks[j].Ordering
	})
	for _, task := range tasks {
		driver, err := r.registry.Resolve(task.Driver)
		if err != nil {
			return nil, nil, nil, err
		}
		rt := resolvedTask{task: task, driver: driver}
		switch task.Type {
		case model.TASK_TYPE_VALIDATION:
			validations = append(validations, rt)
		case model.TASK_TYPE_RESTRICTION:
			restrictions = append(restrictions, rt)
		case model.TASK_TYPE_ACTION:
			actions = append(actions, rt)
		}
	}
	return validations, restrictions, actions, nil
}

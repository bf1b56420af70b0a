package engine

import (
	"errors"
	"time"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/picker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Binder associates subjects with flows. Selection goes through the picker
// as an explicit Pick-then-Bind pair invoked by the subject-creation code,
// never through implicit lifecycle hooks.
type Binder struct {
	catalog  persistence.FlowCatalog
	bindings persistence.BindingStore
}

func NewBinder(catalog persistence.FlowCatalog, bindings persistence.BindingStore) *Binder {
	return &Binder{catalog: catalog, bindings: bindings}
}

// Bind records the flow governing the subject. Binding an already-bound
// subject is a no-op; use Rebind to replace an existing binding.
func (b *Binder) Bind(subject model.SubjectRef, flow *model.Flow, at time.Time) error {
	if _, err := b.bindings.Get(subject.Id); err == nil {
		return nil
	} else {
		var notFound persistence.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return b.put(subject, flow, at)
}

func (b *Binder) put(subject model.SubjectRef, flow *model.Flow, at time.Time) error {
	binding := model.SubjectBinding{
		Id:          uuid.New().String(),
		SubjectId:   subject.Id,
		SubjectType: subject.Type,
		FlowId:      flow.Id,
		BoundAt:     at,
	}
	if err := b.bindings.Put(binding); err != nil {
		return err
	}
	logger.Info("subject bound", zap.String("subject", subject.Id), zap.Int64("flow", flow.Id))
	return nil
}

// PickAndBind runs the picker over the catalog's candidates and binds the
// winner. A nil flow with a nil error means no flow was eligible; whether
// that is fatal is the caller's call.
func (b *Binder) PickAndBind(subject model.SubjectRef, sctx model.SelectionContext) (*model.Flow, error) {
	candidates, err := b.catalog.CandidatesFor(sctx.SubjectType, sctx.Scope, sctx.Collection)
	if err != nil {
		return nil, err
	}
	flow := picker.Pick(sctx, candidates)
	if flow == nil {
		logger.Debug("no eligible flow", zap.String("subject", subject.Id), zap.String("subjectType", sctx.SubjectType))
		return nil, nil
	}
	if err := b.Bind(subject, flow, sctx.At); err != nil {
		return nil, err
	}
	return flow, nil
}

// Rebind re-runs selection with a fresh context (optionally tuned) and
// replaces the binding. The subject's current status is never rewritten;
// only future transitions are read against the new flow's graph.
func (b *Binder) Rebind(subject model.SubjectRef, tune func(*model.SelectionContext)) (*model.Flow, error) {
	sctx := model.NewSelectionContext(subject.Type, subject.Id)
	if tune != nil {
		tune(&sctx)
	}
	candidates, err := b.catalog.CandidatesFor(sctx.SubjectType, sctx.Scope, sctx.Collection)
	if err != nil {
		return nil, err
	}
	flow := picker.Pick(sctx, candidates)
	if flow == nil {
		return nil, nil
	}
	if err := b.put(subject, flow, sctx.At); err != nil {
		return nil, err
	}
	return flow, nil
}

func (b *Binder) Unbind(subject model.SubjectRef) error {
	return b.bindings.Delete(subject.Id)
}

// Current resolves the flow bound to the subject.
func (b *Binder) Current(subject model.SubjectRef) (*model.Flow, error) {
	binding, err := b.bindings.Get(subject.Id)
	if err != nil {
		var notFound persistence.NotFoundError
		if errors.As(err, &notFound) {
			return nil, NotBoundError{SubjectId: subject.Id}
		}
		return nil, err
	}
	return b.catalog.GetFlow(binding.FlowId)
}

// FixedResolver supplies a flow id directly, for deployments with exactly
// one flow per subject type where the full picker is unnecessary.
type FixedResolver func(subject model.SubjectRef) (int64, error)

// BindFixed bypasses ranking, window and rollout evaluation and binds to the
// resolved flow through the same binding primitive. A disabled or
// soft-deleted target is a bind-time error.
func (b *Binder) BindFixed(subject model.SubjectRef, resolve FixedResolver) (*model.Flow, error) {
	flowId, err := resolve(subject)
	if err != nil {
		return nil, err
	}
	flow, err := b.catalog.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	if flow.IsDeleted() {
		return nil, FlowUnavailableError{FlowId: flowId, Reason: "flow is deleted"}
	}
	if flow.Status != model.FLOW_STATUS_ENABLED {
		return nil, FlowUnavailableError{FlowId: flowId, Reason: "flow is disabled"}
	}
	if err := b.Bind(subject, flow, time.Now()); err != nil {
		return nil, err
	}
	return flow, nil
}

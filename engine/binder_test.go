package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func newBinderFixture(t *testing.T, flows ...model.Flow) (*Binder, *inmem.FlowCatalog) {
	t.Helper()
	catalog := inmem.NewFlowCatalog()
	for _, f := range flows {
		require.NoError(t, catalog.SaveFlow(f))
	}
	return NewBinder(catalog, inmem.NewBindingStore()), catalog
}

func TestBindIsIdempotent(t *testing.T) {
	first := orderFlow()
	second := orderFlow()
	second.Id = 200
	binder, _ := newBinderFixture(t, first, second)
	subject := model.SubjectRef{Id: "order-1", Type: "order"}

	require.NoError(t, binder.Bind(subject, &first, time.Now()))
	// Binding again, even to another flow, is a no-op.
	require.NoError(t, binder.Bind(subject, &second, time.Now()))

	current, err := binder.Current(subject)
	require.NoError(t, err)
	require.Equal(t, first.Id, current.Id)
}

func TestBindRebindRoundTrip(t *testing.T) {
	first := orderFlow()
	second := orderFlow()
	second.Id = 200
	second.Ordering = -1
	binder, _ := newBinderFixture(t, first, second)
	subject := model.SubjectRef{Id: "order-1", Type: "order"}

	require.NoError(t, binder.Bind(subject, &first, time.Now()))
	current, err := binder.Current(subject)
	require.NoError(t, err)
	require.Equal(t, first.Id, current.Id)

	// Rebind re-runs selection; the lower ordering wins now.
	picked, err := binder.Rebind(subject, nil)
	require.NoError(t, err)
	require.NotNil(t, picked)
	require.Equal(t, second.Id, picked.Id)

	current, err = binder.Current(subject)
	require.NoError(t, err)
	require.Equal(t, second.Id, current.Id)
}

func TestUnbind(t *testing.T) {
	flow := orderFlow()
	binder, _ := newBinderFixture(t, flow)
	subject := model.SubjectRef{Id: "order-1", Type: "order"}

	require.NoError(t, binder.Bind(subject, &flow, time.Now()))
	require.NoError(t, binder.Unbind(subject))

	_, err := binder.Current(subject)
	var notBound NotBoundError
	require.True(t, errors.As(err, &notBound))
}

func TestPickAndBind(t *testing.T) {
	flow := orderFlow()
	binder, _ := newBinderFixture(t, flow)
	subject := model.SubjectRef{Id: "order-1", Type: "order"}

	picked, err := binder.PickAndBind(subject, model.NewSelectionContext("order", subject.Id))
	require.NoError(t, err)
	require.NotNil(t, picked)
	require.Equal(t, flow.Id, picked.Id)

	// No candidates for an unknown type: nil flow, nil error — absence is
	// a valid outcome.
	other := model.SubjectRef{Id: "doc-1", Type: "document"}
	picked, err = binder.PickAndBind(other, model.NewSelectionContext("document", other.Id))
	require.NoError(t, err)
	require.Nil(t, picked)
}

func TestBindFixed(t *testing.T) {
	enabled := orderFlow()
	disabled := orderFlow()
	disabled.Id = 200
	disabled.Status = model.FLOW_STATUS_DISABLED
	deleted := orderFlow()
	deleted.Id = 300
	now := time.Now()
	deleted.DeletedAt = &now

	// Fixed binding skips window and rollout checks entirely.
	pct := 0
	enabled.RolloutPct = &pct
	past := now.Add(-time.Hour)
	enabled.ActiveTo = &past

	binder, _ := newBinderFixture(t, enabled, disabled, deleted)
	subject := model.SubjectRef{Id: "order-1", Type: "order"}

	flow, err := binder.BindFixed(subject, func(model.SubjectRef) (int64, error) {
		return enabled.Id, nil
	})
	require.NoError(t, err)
	require.Equal(t, enabled.Id, flow.Id)

	_, err = binder.BindFixed(model.SubjectRef{Id: "order-2", Type: "order"}, func(model.SubjectRef) (int64, error) {
		return disabled.Id, nil
	})
	var unavailable FlowUnavailableError
	require.True(t, errors.As(err, &unavailable))

	_, err = binder.BindFixed(model.SubjectRef{Id: "order-3", Type: "order"}, func(model.SubjectRef) (int64, error) {
		return deleted.Id, nil
	})
	require.True(t, errors.As(err, &unavailable))
}

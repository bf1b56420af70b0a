package inmem

import (
	"errors"
	"testing"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/stretchr/testify/require"
)

func TestFlowCatalog(t *testing.T) {
	catalog := NewFlowCatalog()

	_, err := catalog.GetFlow(1)
	var notFound persistence.NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "flow", notFound.Kind)

	id, err := catalog.NextId("flow")
	require.NoError(t, err)
	next, err := catalog.NextId("flow")
	require.NoError(t, err)
	require.Equal(t, id+1, next)

	require.NoError(t, catalog.SaveFlow(model.Flow{Id: id, SubjectType: "order"}))
	flow, err := catalog.GetFlow(id)
	require.NoError(t, err)
	require.Equal(t, "order", flow.SubjectType)

	candidates, err := catalog.CandidatesFor("order", nil, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	candidates, err = catalog.CandidatesFor("invoice", nil, nil)
	require.NoError(t, err)
	require.Empty(t, candidates)

	// Delete is soft: the row survives so existing bindings still resolve.
	require.NoError(t, catalog.DeleteFlow(id))
	flow, err = catalog.GetFlow(id)
	require.NoError(t, err)
	require.True(t, flow.IsDeleted())

	require.Error(t, catalog.DeleteFlow(999))
}

func TestSubjectStoreCompareAndSet(t *testing.T) {
	store := NewSubjectStore()

	// A subject never seen before reads as not found and compares against
	// the empty status.
	_, err := store.CurrentStatus("order-1")
	var notFound persistence.NotFoundError
	require.True(t, errors.As(err, &notFound))

	require.NoError(t, store.CompareAndSetStatus("order-1", "", "processing"))

	status, err := store.CurrentStatus("order-1")
	require.NoError(t, err)
	require.Equal(t, "processing", status)

	// A stale expectation loses.
	err = store.CompareAndSetStatus("order-1", "", "done")
	var conflict persistence.StatusConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, "", conflict.Expected)
	require.Equal(t, "processing", conflict.Actual)

	require.NoError(t, store.CompareAndSetStatus("order-1", "processing", "done"))
}

func TestBindingStore(t *testing.T) {
	store := NewBindingStore()

	_, err := store.Get("order-1")
	var notFound persistence.NotFoundError
	require.True(t, errors.As(err, &notFound))

	require.NoError(t, store.Put(model.SubjectBinding{SubjectId: "order-1", FlowId: 7}))
	binding, err := store.Get("order-1")
	require.NoError(t, err)
	require.Equal(t, int64(7), binding.FlowId)

	require.NoError(t, store.Delete("order-1"))
	_, err = store.Get("order-1")
	require.Error(t, err)
}

func TestQueue(t *testing.T) {
	queue := NewQueue()

	_, err := queue.Poll("jobs", 10)
	var empty persistence.EmptyQueueError
	require.True(t, errors.As(err, &empty))
	require.Equal(t, "jobs", empty.QueueName)

	require.NoError(t, queue.Enqueue("jobs", []byte("a")))
	require.NoError(t, queue.Enqueue("jobs", []byte("b")))
	require.NoError(t, queue.Enqueue("jobs", []byte("c")))

	batch, err := queue.Poll("jobs", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, batch)

	// A batch larger than the backlog drains what is there.
	batch, err = queue.Poll("jobs", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, batch)
}

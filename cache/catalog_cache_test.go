package cache

import (
	"testing"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence/inmem"
	"github.com/stretchr/testify/require"
)

func TestCachingCatalog(t *testing.T) {
	backend := inmem.NewFlowCatalog()
	catalog := NewCachingCatalog(backend, time.Minute)

	require.NoError(t, catalog.SaveFlow(model.Flow{Id: 1, SubjectType: "order", Name: "v1"}))

	flow, err := catalog.GetFlow(1)
	require.NoError(t, err)
	require.Equal(t, "v1", flow.Name)

	// A write that bypasses the decorator stays invisible until the TTL
	// expires or a write through the decorator flushes the cache.
	require.NoError(t, backend.SaveFlow(model.Flow{Id: 1, SubjectType: "order", Name: "v2"}))
	flow, err = catalog.GetFlow(1)
	require.NoError(t, err)
	require.Equal(t, "v1", flow.Name)

	require.NoError(t, catalog.SaveFlow(model.Flow{Id: 2, SubjectType: "order", Name: "other"}))
	flow, err = catalog.GetFlow(1)
	require.NoError(t, err)
	require.Equal(t, "v2", flow.Name)

	candidates, err := catalog.CandidatesFor("order", nil, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// The soft delete flushes the cache, so the tombstone is visible at once.
	require.NoError(t, catalog.DeleteFlow(2))
	flow, err = catalog.GetFlow(2)
	require.NoError(t, err)
	require.True(t, flow.IsDeleted())
}

package picker

import (
	"testing"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func baseContext() model.SelectionContext {
	sctx := model.NewSelectionContext("order", "order-42")
	sctx.At = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return sctx
}

func enabledFlow(id int64) model.Flow {
	return model.Flow{
		Id:          id,
		SubjectType: "order",
		Status:      model.FLOW_STATUS_ENABLED,
	}
}

func TestPick(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"subject type must match":            testSubjectTypeFilter,
		"exact scope beats wildcard":         testScopePreference,
		"inactive flows are dropped":         testActiveFilter,
		"rollout bounds":                     testRolloutBounds,
		"rollout decision is deterministic":  testRolloutDeterminism,
		"default wins an otherwise tie":      testDefaultTieBreak,
		"environment preference ranks first": testEnvironmentPreference,
		"ordering then id break ties":        testOrderingTieBreak,
		"no eligible flow yields nil":        testNoEligible,
	} {
		t.Run(scenario, fn)
	}
}

func testSubjectTypeFilter(t *testing.T) {
	other := enabledFlow(1)
	other.SubjectType = "invoice"
	picked := Pick(baseContext(), []model.Flow{other})
	require.Nil(t, picked)

	match := enabledFlow(2)
	picked = Pick(baseContext(), []model.Flow{other, match})
	require.NotNil(t, picked)
	require.Equal(t, int64(2), picked.Id)
}

func testScopePreference(t *testing.T) {
	wildcard := enabledFlow(1)
	scoped := enabledFlow(2)
	scoped.SubjectScope = strPtr("tenant-a")

	sctx := baseContext()
	sctx.Scope = strPtr("tenant-a")
	picked := Pick(sctx, []model.Flow{wildcard, scoped})
	require.NotNil(t, picked)
	require.Equal(t, int64(2), picked.Id)

	// No exact match for the requested scope falls back to the wildcard.
	sctx.Scope = strPtr("tenant-b")
	picked = Pick(sctx, []model.Flow{wildcard, scoped})
	require.NotNil(t, picked)
	require.Equal(t, int64(1), picked.Id)

	// Without a requested scope only wildcard candidates remain.
	sctx.Scope = nil
	picked = Pick(sctx, []model.Flow{scoped})
	require.Nil(t, picked)
}

func testActiveFilter(t *testing.T) {
	sctx := baseContext()

	disabled := enabledFlow(1)
	disabled.Status = model.FLOW_STATUS_DISABLED

	past := enabledFlow(2)
	to := sctx.At.Add(-time.Hour)
	past.ActiveTo = &to

	future := enabledFlow(3)
	from := sctx.At.Add(time.Hour)
	future.ActiveFrom = &from

	deleted := enabledFlow(4)
	deletedAt := sctx.At
	deleted.DeletedAt = &deletedAt

	require.Nil(t, Pick(sctx, []model.Flow{disabled, past, future, deleted}))

	// The same candidates pass when activity checks are off.
	sctx.OnlyActive = false
	picked := Pick(sctx, []model.Flow{disabled, past, future, deleted})
	require.NotNil(t, picked)
}

func testRolloutBounds(t *testing.T) {
	sctx := baseContext()

	never := enabledFlow(1)
	never.RolloutPct = intPtr(0)
	require.Nil(t, Pick(sctx, []model.Flow{never}))

	always := enabledFlow(2)
	always.RolloutPct = intPtr(100)
	picked := Pick(sctx, []model.Flow{always})
	require.NotNil(t, picked)

	unrestricted := enabledFlow(3)
	unrestricted.RolloutPct = nil
	picked = Pick(sctx, []model.Flow{unrestricted})
	require.NotNil(t, picked)
}

func testRolloutDeterminism(t *testing.T) {
	sctx := baseContext()
	flow := enabledFlow(1)
	flow.RolloutPct = intPtr(50)

	first := Pick(sctx, []model.Flow{flow})
	for i := 0; i < 20; i++ {
		again := Pick(sctx, []model.Flow{flow})
		require.Equal(t, first == nil, again == nil)
	}
	bucket := RolloutBucket(sctx.RolloutNamespace, sctx.RolloutKey)
	require.Equal(t, bucket, RolloutBucket(sctx.RolloutNamespace, sctx.RolloutKey))
	require.Less(t, bucket, uint32(100))
}

func testDefaultTieBreak(t *testing.T) {
	plain := enabledFlow(1)
	preferred := enabledFlow(2)
	preferred.IsDefault = true

	picked := Pick(baseContext(), []model.Flow{plain, preferred})
	require.NotNil(t, picked)
	require.Equal(t, int64(2), picked.Id)
}

func testEnvironmentPreference(t *testing.T) {
	prod := enabledFlow(1)
	prod.Environment = "production"
	staging := enabledFlow(2)
	staging.Environment = "staging"
	staging.IsDefault = true

	sctx := baseContext()
	sctx.Environments = []string{"production", "staging"}
	// Environment rank outranks the default flag.
	picked := Pick(sctx, []model.Flow{staging, prod})
	require.NotNil(t, picked)
	require.Equal(t, int64(1), picked.Id)
}

func testOrderingTieBreak(t *testing.T) {
	second := enabledFlow(9)
	second.Ordering = 10
	first := enabledFlow(7)
	first.Ordering = 5

	picked := Pick(baseContext(), []model.Flow{second, first})
	require.NotNil(t, picked)
	require.Equal(t, int64(7), picked.Id)

	twinA := enabledFlow(3)
	twinB := enabledFlow(4)
	picked = Pick(baseContext(), []model.Flow{twinB, twinA})
	require.NotNil(t, picked)
	require.Equal(t, int64(3), picked.Id)
}

func testNoEligible(t *testing.T) {
	require.Nil(t, Pick(baseContext(), nil))
}

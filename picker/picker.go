package picker

import (
	"fmt"
	"sort"

	"github.com/flowkit/flowkit/model"
	"github.com/spaolacci/murmur3"
)

// Pick selects at most one flow for the subject described by sctx. It is a
// pure function over its inputs so callers can preview a selection without
// side effects. A nil result means no candidate was eligible, which is a
// valid outcome, not an error.
func Pick(sctx model.SelectionContext, candidates []model.Flow) *model.Flow {
	eligible := filterSubjectType(sctx.SubjectType, candidates)
	eligible = filterPartition(sctx.Scope, eligible, scopeOf)
	eligible = filterPartition(sctx.Collection, eligible, collectionOf)
	if sctx.OnlyActive {
		eligible = filterActive(sctx, eligible)
	}
	if sctx.EvaluateRollout {
		eligible = filterRollout(sctx, eligible)
	}
	if len(eligible) == 0 {
		return nil
	}
	rank(sctx, eligible)
	return &eligible[0]
}

func filterSubjectType(subjectType string, candidates []model.Flow) []model.Flow {
	result := make([]model.Flow, 0, len(candidates))
	for _, f := range candidates {
		if f.SubjectType == subjectType {
			result = append(result, f)
		}
	}
	return result
}

func scopeOf(f model.Flow) *string      { return f.SubjectScope }
func collectionOf(f model.Flow) *string { return f.SubjectCollection }

// filterPartition implements the two-pass exact-first match on a
// partitioning key: candidates matching the requested value exactly win over
// wildcard (nil) candidates; wildcards are only used when no exact match
// exists. Candidates with a different non-nil value are dropped. With no
// requested value only wildcard candidates remain eligible.
func filterPartition(requested *string, candidates []model.Flow, key func(model.Flow) *string) []model.Flow {
	if requested == nil {
		result := make([]model.Flow, 0, len(candidates))
		for _, f := range candidates {
			if key(f) == nil {
				result = append(result, f)
			}
		}
		return result
	}
	exact := make([]model.Flow, 0)
	wildcard := make([]model.Flow, 0)
	for _, f := range candidates {
		switch v := key(f); {
		case v == nil:
			wildcard = append(wildcard, f)
		case *v == *requested:
			exact = append(exact, f)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return wildcard
}

func filterActive(sctx model.SelectionContext, candidates []model.Flow) []model.Flow {
	result := make([]model.Flow, 0, len(candidates))
	for _, f := range candidates {
		if f.IsActiveAt(sctx.At) {
			result = append(result, f)
		}
	}
	return result
}

// filterRollout keeps a candidate with a rollout percentage only when the
// subject's deterministic bucket falls under it. Nil rollout means no
// restriction. The same subject key always lands in the same bucket, so a
// retry reaches the same decision.
func filterRollout(sctx model.SelectionContext, candidates []model.Flow) []model.Flow {
	result := make([]model.Flow, 0, len(candidates))
	bucket := int(RolloutBucket(sctx.RolloutNamespace, sctx.RolloutKey))
	for _, f := range candidates {
		if f.RolloutPct != nil && bucket >= *f.RolloutPct {
			continue
		}
		result = append(result, f)
	}
	return result
}

// RolloutBucket hashes (namespace, key) into [0,100).
func RolloutBucket(namespace string, key string) uint32 {
	return uint32(murmur3.Sum64([]byte(fmt.Sprintf("%s:%s", namespace, key))) % 100)
}

// preferenceRank returns the index of the first preference the value
// matches, or len(prefs) when it matches none, so unmatched candidates stay
// eligible but rank last. An empty preference list ranks everything equal.
func preferenceRank(prefs []string, value string) int {
	for i, p := range prefs {
		if p == value {
			return i
		}
	}
	return len(prefs)
}

func rank(sctx model.SelectionContext, candidates []model.Flow) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := preferenceRank(sctx.Environments, a.Environment), preferenceRank(sctx.Environments, b.Environment); ra != rb {
			return ra < rb
		}
		if ra, rb := preferenceRank(sctx.Channels, a.Channel), preferenceRank(sctx.Channels, b.Channel); ra != rb {
			return ra < rb
		}
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if a.Ordering != b.Ordering {
			return a.Ordering < b.Ordering
		}
		return a.Id < b.Id
	})
}

package cache

import (
	"fmt"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	c "github.com/patrickmn/go-cache"
)

// CachingCatalog is a read-through decorator over a FlowCatalog. Candidate
// lists and flow snapshots are cached with a short TTL; any write through
// this catalog flushes the cache so administrative edits are visible on the
// next read.
type CachingCatalog struct {
	backend persistence.FlowCatalog
	cache   *c.Cache
}

var _ persistence.FlowCatalog = new(CachingCatalog)

func NewCachingCatalog(backend persistence.FlowCatalog, ttl time.Duration) *CachingCatalog {
	return &CachingCatalog{
		backend: backend,
		cache:   c.New(ttl, 10*time.Minute),
	}
}

func candidatesKey(subjectType string, scope *string, collection *string) string {
	s, col := "*", "*"
	if scope != nil {
		s = *scope
	}
	if collection != nil {
		col = *collection
	}
	return fmt.Sprintf("candidates:%s:%s:%s", subjectType, s, col)
}

func flowKey(id int64) string {
	return fmt.Sprintf("flow:%d", id)
}

func (cc *CachingCatalog) CandidatesFor(subjectType string, scope *string, collection *string) ([]model.Flow, error) {
	key := candidatesKey(subjectType, scope, collection)
	if cached, found := cc.cache.Get(key); found {
		return cached.([]model.Flow), nil
	}
	flows, err := cc.backend.CandidatesFor(subjectType, scope, collection)
	if err != nil {
		return nil, err
	}
	cc.cache.Set(key, flows, c.DefaultExpiration)
	return flows, nil
}

func (cc *CachingCatalog) GetFlow(id int64) (*model.Flow, error) {
	key := flowKey(id)
	if cached, found := cc.cache.Get(key); found {
		flow := cached.(model.Flow)
		return &flow, nil
	}
	flow, err := cc.backend.GetFlow(id)
	if err != nil {
		return nil, err
	}
	cc.cache.Set(key, *flow, c.DefaultExpiration)
	return flow, nil
}

func (cc *CachingCatalog) SaveFlow(flow model.Flow) error {
	if err := cc.backend.SaveFlow(flow); err != nil {
		return err
	}
	cc.cache.Flush()
	return nil
}

func (cc *CachingCatalog) DeleteFlow(id int64) error {
	if err := cc.backend.DeleteFlow(id); err != nil {
		return err
	}
	cc.cache.Flush()
	return nil
}

func (cc *CachingCatalog) NextId(kind string) (int64, error) {
	return cc.backend.NextId(kind)
}

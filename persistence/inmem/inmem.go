package inmem

import (
	"strconv"
	"sync"
	"time"

	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
)

// In-memory implementations of the storage contracts, used by tests and the
// single node dev mode.

type FlowCatalog struct {
	mu    sync.RWMutex
	flows map[int64]model.Flow
	seq   map[string]int64
}

var _ persistence.FlowCatalog = new(FlowCatalog)

func NewFlowCatalog() *FlowCatalog {
	return &FlowCatalog{
		flows: make(map[int64]model.Flow),
		seq:   make(map[string]int64),
	}
}

func (c *FlowCatalog) CandidatesFor(subjectType string, scope *string, collection *string) ([]model.Flow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]model.Flow, 0)
	for _, f := range c.flows {
		if f.SubjectType != subjectType {
			continue
		}
		if scope != nil && f.SubjectScope != nil && *f.SubjectScope != *scope {
			continue
		}
		if collection != nil && f.SubjectCollection != nil && *f.SubjectCollection != *collection {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

func (c *FlowCatalog) GetFlow(id int64) (*model.Flow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.flows[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "flow", Key: strconv.FormatInt(id, 10)}
	}
	return &f, nil
}

func (c *FlowCatalog) SaveFlow(flow model.Flow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flows[flow.Id] = flow
	return nil
}

// DeleteFlow is a soft delete, matching the redis catalog: the row stays so
// existing bindings can still resolve their flow.
func (c *FlowCatalog) DeleteFlow(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flows[id]
	if !ok {
		return persistence.NotFoundError{Kind: "flow", Key: strconv.FormatInt(id, 10)}
	}
	now := time.Now()
	f.DeletedAt = &now
	c.flows[id] = f
	return nil
}

func (c *FlowCatalog) NextId(kind string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[kind]++
	return c.seq[kind], nil
}

type SubjectStore struct {
	mu       sync.Mutex
	statuses map[string]string
}

var _ persistence.SubjectStore = new(SubjectStore)

func NewSubjectStore() *SubjectStore {
	return &SubjectStore{statuses: make(map[string]string)}
}

func (s *SubjectStore) CurrentStatus(subjectId string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[subjectId]
	if !ok {
		return "", persistence.NotFoundError{Kind: "subject", Key: subjectId}
	}
	return status, nil
}

func (s *SubjectStore) SetStatus(subjectId string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[subjectId] = status
	return nil
}

func (s *SubjectStore) CompareAndSetStatus(subjectId string, expected string, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actual := s.statuses[subjectId]
	if actual != expected {
		return persistence.StatusConflictError{SubjectId: subjectId, Expected: expected, Actual: actual}
	}
	s.statuses[subjectId] = next
	return nil
}

type BindingStore struct {
	mu       sync.RWMutex
	bindings map[string]model.SubjectBinding
}

var _ persistence.BindingStore = new(BindingStore)

func NewBindingStore() *BindingStore {
	return &BindingStore{bindings: make(map[string]model.SubjectBinding)}
}

func (s *BindingStore) Get(subjectId string) (*model.SubjectBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[subjectId]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "binding", Key: subjectId}
	}
	return &b, nil
}

func (s *BindingStore) Put(binding model.SubjectBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[binding.SubjectId] = binding
	return nil
}

func (s *BindingStore) Delete(subjectId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bindings, subjectId)
	return nil
}

type Queue struct {
	mu     sync.Mutex
	queues map[string][]string
}

var _ persistence.Queue = new(Queue)

func NewQueue() *Queue {
	return &Queue{queues: make(map[string][]string)}
}

func (q *Queue) Enqueue(queueName string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[queueName] = append(q.queues[queueName], string(message))
	return nil
}

func (q *Queue) Poll(queueName string, batchSize int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.queues[queueName]
	if len(items) == 0 {
		return nil, persistence.EmptyQueueError{QueueName: queueName}
	}
	if batchSize > len(items) {
		batchSize = len(items)
	}
	result := items[:batchSize]
	q.queues[queueName] = items[batchSize:]
	return result, nil
}

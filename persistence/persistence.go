package persistence

import (
	"fmt"

	"github.com/flowkit/flowkit/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Key  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

// StatusConflictError is returned by CompareAndSetStatus when the subject's
// stored status no longer matches the expected value.
type StatusConflictError struct {
	SubjectId string
	Expected  string
	Actual    string
}

func (e StatusConflictError) Error() string {
	return fmt.Sprintf("subject %s status is %q, expected %q", e.SubjectId, e.Actual, e.Expected)
}

type EmptyQueueError struct {
	QueueName string
}

func (e EmptyQueueError) Error() string {
	return fmt.Sprintf("queue %s is empty", e.QueueName)
}

// FlowCatalog stores flow definitions whole, graph included. CandidatesFor
// returns every flow matching the subject type (and, when given, scope or
// collection including wildcard rows) regardless of status, window or
// rollout; that filtering belongs to the picker.
type FlowCatalog interface {
	CandidatesFor(subjectType string, scope *string, collection *string) ([]model.Flow, error)
	GetFlow(id int64) (*model.Flow, error)
	SaveFlow(flow model.Flow) error
	DeleteFlow(id int64) error
	NextId(kind string) (int64, error)
}

// SubjectStore gives atomic access to a subject's status field.
// CompareAndSetStatus is the commit primitive for transitions: it must fail
// with StatusConflictError when the stored value differs from expected.
type SubjectStore interface {
	CurrentStatus(subjectId string) (string, error)
	SetStatus(subjectId string, status string) error
	CompareAndSetStatus(subjectId string, expected string, next string) error
}

type BindingStore interface {
	Get(subjectId string) (*model.SubjectBinding, error)
	Put(binding model.SubjectBinding) error
	Delete(subjectId string) error
}

// Queue is the durable background-action collaborator. Delivery is
// at-least-once; consumers must be idempotent.
type Queue interface {
	Enqueue(queueName string, message []byte) error
	Poll(queueName string, batchSize int) ([]string, error)
}

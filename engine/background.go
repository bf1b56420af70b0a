package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/registry"
	"github.com/flowkit/flowkit/util"
	"go.uber.org/zap"
)

// BackgroundWorker drains the background action queue and runs the enqueued
// drivers. Failures are logged and the job is re-enqueued, giving the
// at-least-once behavior background drivers are required to tolerate. A
// failed job never re-runs its whole transition; the committed state change
// stays committed.
type BackgroundWorker struct {
	queue        persistence.Queue
	registry     *registry.TaskRegistry
	queueName    string
	batchSize    int
	tickInterval time.Duration
	stop         chan struct{}
	wg           *sync.WaitGroup
	jobEncDec    util.EncoderDecoder[BackgroundJob]
}

func NewBackgroundWorker(queue persistence.Queue, reg *registry.TaskRegistry, queueName string, batchSize int, tickInterval time.Duration, wg *sync.WaitGroup) *BackgroundWorker {
	if queueName == "" {
		queueName = DEFAULT_ACTION_QUEUE
	}
	return &BackgroundWorker{
		queue:        queue,
		registry:     reg,
		queueName:    queueName,
		batchSize:    batchSize,
		tickInterval: tickInterval,
		stop:         make(chan struct{}),
		wg:           wg,
		jobEncDec:    util.NewJsonEncoderDecoder[BackgroundJob](),
	}
}

func (w *BackgroundWorker) Start() {
	ticker := time.NewTicker(w.tickInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ticker.C:
				w.Drain()
			case <-w.stop:
				logger.Info("stopping background action worker")
				ticker.Stop()
				return
			}
		}
	}()
	logger.Info("background action worker started", zap.String("queue", w.queueName))
}

func (w *BackgroundWorker) Stop() {
	w.stop <- struct{}{}
}

// Drain processes at most one batch. Exposed so tests and single-shot
// callers can pump the queue without the ticker.
func (w *BackgroundWorker) Drain() {
	items, err := w.queue.Poll(w.queueName, w.batchSize)
	if err != nil {
		var empty persistence.EmptyQueueError
		if !errors.As(err, &empty) {
			logger.Error("error polling background action queue", zap.Error(err))
		}
		return
	}
	for _, item := range items {
		job, err := w.jobEncDec.Decode([]byte(item))
		if err != nil {
			logger.Error("error decoding background job", zap.Error(err))
			continue
		}
		w.execute(*job)
	}
}

func (w *BackgroundWorker) execute(job BackgroundJob) {
	driver, err := w.registry.Resolve(job.Driver)
	if err != nil {
		logger.Error("background job driver missing", zap.String("driver", job.Driver), zap.Error(err))
		return
	}
	actionDriver, ok := driver.(registry.ActionDriver)
	if !ok {
		logger.Error("background job driver is not an action", zap.String("driver", job.Driver))
		return
	}
	tctx := registry.TaskContext{
		Subject: job.Subject,
		Transition: model.FlowTransition{
			Id:     job.TransitionId,
			FlowId: job.FlowId,
		},
		Config:  job.Config,
		Payload: job.Payload,
	}
	if err := actionDriver.Act(context.Background(), tctx); err != nil {
		logger.Error("background action failed, re-enqueueing",
			zap.String("driver", job.Driver),
			zap.String("job", job.JobId),
			zap.Error(err))
		data, encErr := w.jobEncDec.Encode(job)
		if encErr != nil {
			return
		}
		if qErr := w.queue.Enqueue(w.queueName, data); qErr != nil {
			logger.Error("error re-enqueueing background job", zap.String("job", job.JobId), zap.Error(qErr))
		}
		return
	}
	logger.Debug("background action done", zap.String("driver", job.Driver), zap.String("job", job.JobId))
}

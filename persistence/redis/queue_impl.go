package redis

import (
	"context"
	"errors"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/persistence"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const QUEUE string = "QUEUE"

type redisQueue struct {
	*baseDao
}

var _ persistence.Queue = new(redisQueue)

func NewRedisQueue(conf Config) *redisQueue {
	return &redisQueue{baseDao: newBaseDao(conf)}
}

func (rq *redisQueue) Enqueue(queueName string, message []byte) error {
	key := rq.getNamespaceKey(QUEUE, queueName)
	ctx := context.Background()
	if err := rq.redisClient.LPush(ctx, key, message).Err(); err != nil {
		logger.Error("error while push to redis list", zap.String("queue", queueName), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rq *redisQueue) Poll(queueName string, batchSize int) ([]string, error) {
	key := rq.getNamespaceKey(QUEUE, queueName)
	ctx := context.Background()
	res, err := rq.redisClient.RPopCount(ctx, key, batchSize).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.EmptyQueueError{QueueName: queueName}
		}
		logger.Error("error while pop from redis list", zap.String("queue", queueName), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(res) == 0 {
		return nil, persistence.EmptyQueueError{QueueName: queueName}
	}
	return res, nil
}

package redis

import (
	"context"
	"errors"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/persistence"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const SUBJECT_STATUS string = "SUBJECT"

type redisSubjectStore struct {
	*baseDao
}

var _ persistence.SubjectStore = new(redisSubjectStore)

func NewRedisSubjectStore(conf Config) *redisSubjectStore {
	return &redisSubjectStore{baseDao: newBaseDao(conf)}
}

func (rs *redisSubjectStore) CurrentStatus(subjectId string) (string, error) {
	key := rs.getNamespaceKey(SUBJECT_STATUS, subjectId)
	ctx := context.Background()
	status, err := rs.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return "", persistence.NotFoundError{Kind: "subject", Key: subjectId}
		}
		logger.Error("error reading subject status", zap.String("subject", subjectId), zap.Error(err))
		return "", persistence.StorageLayerError{Message: err.Error()}
	}
	return status, nil
}

func (rs *redisSubjectStore) SetStatus(subjectId string, status string) error {
	key := rs.getNamespaceKey(SUBJECT_STATUS, subjectId)
	ctx := context.Background()
	if err := rs.redisClient.Set(ctx, key, status, 0).Err(); err != nil {
		logger.Error("error saving subject status", zap.String("subject", subjectId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// CompareAndSetStatus runs a WATCH transaction on the subject key so that
// two concurrent transitions from the same state cannot both commit.
func (rs *redisSubjectStore) CompareAndSetStatus(subjectId string, expected string, next string) error {
	key := rs.getNamespaceKey(SUBJECT_STATUS, subjectId)
	ctx := context.Background()
	err := rs.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		actual, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if actual != expected {
			return persistence.StatusConflictError{SubjectId: subjectId, Expected: expected, Actual: actual}
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		var conflict persistence.StatusConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		if errors.Is(err, rd.TxFailedErr) {
			// The key changed between read and commit.
			return persistence.StatusConflictError{SubjectId: subjectId, Expected: expected}
		}
		logger.Error("error in subject status CAS", zap.String("subject", subjectId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

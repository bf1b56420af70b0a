package redis

import (
	"context"
	"errors"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const BINDING string = "BINDING"

type redisBindingStore struct {
	*baseDao
	bindingEncDec util.EncoderDecoder[model.SubjectBinding]
}

var _ persistence.BindingStore = new(redisBindingStore)

func NewRedisBindingStore(conf Config) *redisBindingStore {
	return &redisBindingStore{
		baseDao:       newBaseDao(conf),
		bindingEncDec: util.NewJsonEncoderDecoder[model.SubjectBinding](),
	}
}

func (rb *redisBindingStore) Get(subjectId string) (*model.SubjectBinding, error) {
	key := rb.getNamespaceKey(BINDING)
	ctx := context.Background()
	raw, err := rb.redisClient.HGet(ctx, key, subjectId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "binding", Key: subjectId}
		}
		logger.Error("error reading binding", zap.String("subject", subjectId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rb.bindingEncDec.Decode([]byte(raw))
}

func (rb *redisBindingStore) Put(binding model.SubjectBinding) error {
	data, err := rb.bindingEncDec.Encode(binding)
	if err != nil {
		return err
	}
	key := rb.getNamespaceKey(BINDING)
	ctx := context.Background()
	if err := rb.redisClient.HSet(ctx, key, binding.SubjectId, string(data)).Err(); err != nil {
		logger.Error("error saving binding", zap.String("subject", binding.SubjectId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rb *redisBindingStore) Delete(subjectId string) error {
	key := rb.getNamespaceKey(BINDING)
	ctx := context.Background()
	if err := rb.redisClient.HDel(ctx, key, subjectId).Err(); err != nil {
		logger.Error("error deleting binding", zap.String("subject", subjectId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

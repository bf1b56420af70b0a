package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/util"
	rd "github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

const FLOW_DEF string = "FLOW"
const SEQUENCE string = "SEQ"

type redisFlowCatalog struct {
	*baseDao
	flowEncDec util.EncoderDecoder[model.Flow]
}

var _ persistence.FlowCatalog = new(redisFlowCatalog)

func NewRedisFlowCatalog(conf Config) *redisFlowCatalog {
	return &redisFlowCatalog{
		baseDao:    newBaseDao(conf),
		flowEncDec: util.NewJsonEncoderDecoder[model.Flow](),
	}
}

// Flows live in one hash keyed by id. The candidate set per subject type is
// small, so CandidatesFor decodes the hash and filters in memory; wildcard
// (nil) scope and collection rows are always returned so the picker can
// apply its exact-first preference.
func (rc *redisFlowCatalog) CandidatesFor(subjectType string, scope *string, collection *string) ([]model.Flow, error) {
	key := rc.getNamespaceKey(FLOW_DEF)
	ctx := context.Background()
	rows, err := rc.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error("error reading flow catalog", zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	result := make([]model.Flow, 0)
	for _, raw := range rows {
		flow, err := rc.flowEncDec.Decode([]byte(raw))
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		if flow.SubjectType != subjectType {
			continue
		}
		if scope != nil && flow.SubjectScope != nil && *flow.SubjectScope != *scope {
			continue
		}
		if collection != nil && flow.SubjectCollection != nil && *flow.SubjectCollection != *collection {
			continue
		}
		result = append(result, *flow)
	}
	return result, nil
}

func (rc *redisFlowCatalog) GetFlow(id int64) (*model.Flow, error) {
	key := rc.getNamespaceKey(FLOW_DEF)
	ctx := context.Background()
	raw, err := rc.redisClient.HGet(ctx, key, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Kind: "flow", Key: strconv.FormatInt(id, 10)}
		}
		logger.Error("error reading flow", zap.Int64("flow", id), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rc.flowEncDec.Decode([]byte(raw))
}

func (rc *redisFlowCatalog) SaveFlow(flow model.Flow) error {
	data, err := rc.flowEncDec.Encode(flow)
	if err != nil {
		return err
	}
	key := rc.getNamespaceKey(FLOW_DEF)
	ctx := context.Background()
	if err := rc.redisClient.HSet(ctx, key, strconv.FormatInt(flow.Id, 10), string(data)).Err(); err != nil {
		logger.Error("error saving flow", zap.Int64("flow", flow.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// DeleteFlow is a soft delete; the row stays in the catalog so existing
// bindings can still resolve their flow.
func (rc *redisFlowCatalog) DeleteFlow(id int64) error {
	flow, err := rc.GetFlow(id)
	if err != nil {
		return err
	}
	now := time.Now()
	flow.DeletedAt = &now
	return rc.SaveFlow(*flow)
}

func (rc *redisFlowCatalog) NextId(kind string) (int64, error) {
	key := rc.getNamespaceKey(SEQUENCE, kind)
	ctx := context.Background()
	id, err := rc.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return id, nil
}

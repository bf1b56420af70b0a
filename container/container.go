package container

import (
	"time"

	"github.com/flowkit/flowkit/cache"
	"github.com/flowkit/flowkit/config"
	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/metadata"
	"github.com/flowkit/flowkit/persistence"
	"github.com/flowkit/flowkit/persistence/inmem"
	rd "github.com/flowkit/flowkit/persistence/redis"
	"github.com/flowkit/flowkit/registry"
)

// DIContainer wires storage, registry and engine together. It is built once
// at startup and handed around explicitly; nothing in the engine reaches for
// ambient globals, so tests can assemble isolated containers.
type DIContainer struct {
	initialized bool
	catalog     persistence.FlowCatalog
	subjects    persistence.SubjectStore
	bindings    persistence.BindingStore
	queue       persistence.Queue
	registry    *registry.TaskRegistry
	metadata    *metadata.Service
	runner      *engine.Runner
	binder      *engine.Binder
}

func NewDiContainer() *DIContainer {
	return &DIContainer{
		registry: registry.NewTaskRegistry(),
	}
}

func (d *DIContainer) setInitialized() {
	d.initialized = true
}

func (d *DIContainer) Init(conf config.Config) {
	defer d.setInitialized()

	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		}
		d.catalog = rd.NewRedisFlowCatalog(rdConf)
		d.subjects = rd.NewRedisSubjectStore(rdConf)
		d.bindings = rd.NewRedisBindingStore(rdConf)
	default:
		d.catalog = inmem.NewFlowCatalog()
		d.subjects = inmem.NewSubjectStore()
		d.bindings = inmem.NewBindingStore()
	}
	if conf.CatalogCacheSeconds > 0 {
		d.catalog = cache.NewCachingCatalog(d.catalog, time.Duration(conf.CatalogCacheSeconds)*time.Second)
	}
	switch conf.QueueType {
	case config.QUEUE_TYPE_REDIS:
		d.queue = rd.NewRedisQueue(rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		})
	default:
		d.queue = inmem.NewQueue()
	}
	d.metadata = metadata.NewService(d.catalog, d.registry)
	d.runner = engine.NewRunner(d.catalog, d.bindings, d.subjects, d.registry, d.queue, conf.ActionQueueName)
	d.binder = engine.NewBinder(d.catalog, d.bindings)
}

func (d *DIContainer) GetFlowCatalog() persistence.FlowCatalog {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.catalog
}

func (d *DIContainer) GetSubjectStore() persistence.SubjectStore {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.subjects
}

func (d *DIContainer) GetBindingStore() persistence.BindingStore {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.bindings
}

func (d *DIContainer) GetQueue() persistence.Queue {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.queue
}

func (d *DIContainer) GetTaskRegistry() *registry.TaskRegistry {
	return d.registry
}

func (d *DIContainer) GetMetadataService() *metadata.Service {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.metadata
}

func (d *DIContainer) GetRunner() *engine.Runner {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.runner
}

func (d *DIContainer) GetBinder() *engine.Binder {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.binder
}

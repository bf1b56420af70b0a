package config

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type QueueType string

const QUEUE_TYPE_REDIS QueueType = "redis"
const QUEUE_TYPE_INMEM QueueType = "memory"

type Config struct {
	RedisConfig         RedisStorageConfig
	HttpPort            int
	StorageType         StorageType
	QueueType           QueueType
	RolloutNamespace    string
	ActionQueueName     string
	CatalogCacheSeconds int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}

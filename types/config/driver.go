package config

// StorageDriver selects the backend for checkpoint snapshots.
type StorageDriver string

const (
	Memory   StorageDriver = "memory"
	Redis    StorageDriver = "redis"
	Postgres StorageDriver = "postgres"
	Dynamo   StorageDriver = "dynamo"
)

func (d StorageDriver) String() string {
	return string(d)
}

// MessageQueueDriver selects the outbound event broker.
type MessageQueueDriver string

const (
	NoBroker MessageQueueDriver = ""
	RabbitMQ MessageQueueDriver = "rabbitmq"
	Kafka    MessageQueueDriver = "kafka"
)

package domain

// MaxTopicLength is the longest topic accepted by the producer.
const MaxTopicLength = 255

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DefaultNotifyChannel is the PostgreSQL channel the insert trigger notifies.
const DefaultNotifyChannel = "outbox_channel"

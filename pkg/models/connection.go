package models

import "time"

// ConnectionType identifies a target database driver.
type ConnectionType string

const (
	ConnectionTypePostgreSQL ConnectionType = "postgresql"
	ConnectionTypeMySQL      ConnectionType = "mysql"
	ConnectionTypeMongoDB    ConnectionType = "mongodb"
	ConnectionTypeSQLServer  ConnectionType = "sqlserver"
	ConnectionTypeWeaviate   ConnectionType = "weaviate"
)

// ConnectionStatus is the derived health of a connection.
type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "active"
	ConnectionStatusError   ConnectionStatus = "error"
	ConnectionStatusUnknown ConnectionStatus = "unknown"
)

// Connection describes a registered target database. EncryptedPassword is
// always ciphertext under the service key and is never serialized on read
// paths (json:"-").
type Connection struct {
	ID                string           `json:"id" bson:"_id"`
	Name              string           `json:"name" bson:"name"`
	Type              ConnectionType   `json:"type" bson:"type"`
	Host              string           `json:"host" bson:"host"`
	Port              int              `json:"port" bson:"port"`
	Database          string           `json:"database" bson:"database"`
	Username          string           `json:"username" bson:"username"`
	EncryptedPassword string           `json:"-" bson:"encrypted_password"`
	SSL               bool             `json:"ssl" bson:"ssl"`
	Status            ConnectionStatus `json:"status" bson:"status"`
	LastChecked       *time.Time       `json:"last_checked,omitempty" bson:"last_checked,omitempty"`
	CreatedAt         time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" bson:"updated_at"`
}

// ConnectionTestResult is returned by the registry's test operation.
type ConnectionTestResult struct {
	Status    ConnectionStatus `json:"status"`
	ElapsedMS int64            `json:"elapsed_ms"`
	Error     string           `json:"error,omitempty"`
}

// Package db implements the opening and graceful closing of mirror database connections.
package db

import (
	"errors"
	"fmt"

	"github.com/tarancss/capi/lib/mirror"
	"github.com/tarancss/capi/lib/mirror/mongo"
	"github.com/tarancss/capi/lib/mirror/postgres"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrUnknownType is returned when the configured database type matches no backend.
var ErrUnknownType = errors.New("unknown mirror database type")

// New returns a new mirror connection according to the options (database type).
func New(options, connection string) (mirror.Store, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, fmt.Errorf("%s: %w", options, ErrUnknownType)
}

// Close gracefully closes the mirror connection.
func Close(options string, dh mirror.Store) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}

// File: storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"vote-ledger/models"
)

// Supported persistence backends.
const (
	BackendJSON  = "json"
	BackendMongo = "mongo"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Store persists the whole ledger state. Every Save overwrites the previous
// content in full.
type Store interface {
	// Load returns nil, nil when no prior state exists.
	Load(ctx context.Context) (*models.LedgerState, error)
	Save(ctx context.Context, state *models.LedgerState) error
	Close(ctx context.Context) error
}

type Config struct {
	Backend         string
	Dir             string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// New opens the store selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendJSON:
		return NewJSONStore(cfg.Dir)
	case BackendMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}

//go:generate mockgen -destination=../mocks/mock_store.go -package=mocks vote-ledger/storage Store

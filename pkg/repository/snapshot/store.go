package snapshot

import (
	"context"
	"errors"

	"github.com/mpapenbr/lapclock/pkg/model"
)

const DefaultKey = "f1-counter-v1"

type (
	// Store persists the whole session state as one opaque snapshot.
	Store interface {
		// Save replaces the stored snapshot.
		// The session time must already be folded into state.Session.Elapsed.
		Save(ctx context.Context, state *model.State) error
		// Load returns the stored snapshot. A malformed snapshot is
		// repaired field by field, see Decode.
		Load(ctx context.Context) (*model.State, error)
		// Clear removes the stored snapshot. Clearing an empty store is no error.
		Clear(ctx context.Context) error
		Close() error
	}

	StoreType string

	// Config holds the settings of all backends, each backend picks its own.
	Config struct {
		Type       StoreType
		Key        string // snapshot key for sqlite and nats
		File       string // file backend
		SQLiteFile string // sqlite backend
		NatsURL    string // nats backend
		NatsBucket string // nats backend
	}

	Creator func(ctx context.Context, cfg *Config) (Store, error)
)

const (
	TypeMemory StoreType = "memory"
	TypeFile   StoreType = "file"
	TypeSQLite StoreType = "sqlite"
	TypeNats   StoreType = "nats"
)

var (
	ErrSnapshotNotFound     = errors.New("snapshot not found")
	ErrMalformedSnapshot    = errors.New("malformed snapshot")
	ErrStoreTypeUnsupported = errors.New("snapshot store type not supported")
)

//nolint:gochecknoglobals // by design
var registry = map[StoreType]Creator{}

// Register makes a backend available to New
func Register(key StoreType, creator Creator) {
	registry[key] = creator
}

// New creates the store configured by cfg
func New(ctx context.Context, cfg *Config) (Store, error) {
	creator, ok := registry[cfg.Type]
	if !ok {
		return nil, ErrStoreTypeUnsupported
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	return creator(ctx, cfg)
}

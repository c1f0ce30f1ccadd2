package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
)

const DefaultNatsBucket = "lapclock_snapshots"

func init() {
	Register(TypeNats, func(ctx context.Context, cfg *Config) (Store, error) {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("lapclock"))
		if err != nil {
			return nil, fmt.Errorf("nats store: connect: %w", err)
		}
		s, err := NewNatsStore(ctx, nc, cfg.NatsBucket, cfg.Key)
		if err != nil {
			nc.Close()
			return nil, err
		}
		s.ownsConn = true
		return s, nil
	})
}

// NatsStore keeps the snapshot in a JetStream key/value bucket.
// The bucket is only used as storage, there is exactly one writer.
type NatsStore struct {
	nc       *nats.Conn
	kv       jetstream.KeyValue
	key      string
	ownsConn bool
	log      *log.Logger
}

var _ Store = (*NatsStore)(nil)

//nolint:whitespace // editor/linter issue
func NewNatsStore(
	ctx context.Context,
	nc *nats.Conn,
	bucket, key string,
) (*NatsStore, error) {
	if bucket == "" {
		bucket = DefaultNatsBucket
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("nats store: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats store: bucket %s: %w", bucket, err)
	}
	ret := &NatsStore{
		nc:  nc,
		kv:  kv,
		key: key,
		log: log.Default().Named("snapshot.nats"),
	}
	ret.log.Debug("initialized", log.String("bucket", bucket), log.String("key", key))
	return ret, nil
}

func (s *NatsStore) Save(ctx context.Context, state *model.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("nats store: put: %w", err)
	}
	return nil
}

func (s *NatsStore) Load(ctx context.Context) (*model.State, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("nats store: get: %w", err)
	}
	return Decode(entry.Value())
}

func (s *NatsStore) Clear(ctx context.Context) error {
	err := s.kv.Delete(ctx, s.key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats store: delete: %w", err)
	}
	return nil
}

func (s *NatsStore) Close() error {
	if s.ownsConn {
		return s.nc.Drain()
	}
	return nil
}

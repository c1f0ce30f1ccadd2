package snapshot

import (
	"context"
	"sync"

	"github.com/mpapenbr/lapclock/pkg/model"
)

func init() {
	Register(TypeMemory, func(_ context.Context, _ *Config) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore keeps the encoded snapshot in memory.
// The snapshot is encoded anyway so the same repair rules apply on Load.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, state *model.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrSnapshotNotFound
	}
	return Decode(s.data)
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Raw returns the stored bytes (nil if empty)
func (s *MemoryStore) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// SetRaw replaces the stored bytes, mainly used to load foreign snapshots
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

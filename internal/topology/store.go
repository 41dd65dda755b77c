package topology

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Load when no topology is persisted for a device.
var ErrNotFound = errors.New("topology not found")

// Store persists device topologies keyed by device id. Save replaces any
// previous value wholesale; read-then-write is atomic per device.
type Store interface {
	Save(ctx context.Context, topo *Topology) error
	Load(ctx context.Context, deviceID string) (*Topology, error)
	Delete(ctx context.Context, deviceID string) error
}

// MemoryStore is an in-process Store used by tests and by deployments
// without a Redis backend.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, topo *Topology) error {
	data, err := topo.MarshalJSON()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[topo.DeviceID] = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context, deviceID string) (*Topology, error) {
	s.mu.RLock()
	data, ok := s.blobs[deviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	topo := New(deviceID)
	if err := topo.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return topo, nil
}

func (s *MemoryStore) Delete(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, deviceID)
	return nil
}

// Package identity provides the per-device identifier that scopes a user's
// detections without authentication.
package identity

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ironsheep/pothole-cam/internal/kvstore"
	"github.com/ironsheep/pothole-cam/internal/logger"
)

// StorageKey is the key the identifier is persisted under.
const StorageKey = "deviceId"

// Store obtains or creates the device identifier.
type Store struct {
	kv    kvstore.Store
	newID func() string

	mu sync.Mutex
	id string
}

// NewStore creates a Store over kv. A nil kv runs in degraded mode: the
// identifier lives only as long as the process.
func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv, newID: uuid.NewString}
}

// GetOrCreate returns the persisted identifier, generating and persisting
// one on first use. Storage failures fall back to a process-local
// identifier instead of failing.
func (s *Store) GetOrCreate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != "" {
		return s.id
	}

	if s.kv == nil {
		s.id = s.newID()
		logger.Warn("Identity", "no durable storage, using process-local device id")
		return s.id
	}

	id, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		s.id = s.newID()
		logger.Warn("Identity", "read device id: %v; using process-local id", err)
		return s.id
	}
	if ok && id != "" {
		s.id = id
		return s.id
	}

	id = s.newID()
	if err := s.kv.Set(StorageKey, id); err != nil {
		logger.Warn("Identity", "persist device id: %v; id will not survive restart", err)
	} else {
		logger.Info("Identity", "created device id %s", id)
	}
	s.id = id
	return s.id
}

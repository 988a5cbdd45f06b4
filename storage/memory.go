package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

// MemoryStore is an in-memory identity store for tests and development.
// A single mutex covers identities and documents, so mutations are atomic
// with respect to readers.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]interfaces.Identity
	documents  map[string]map[uuid.UUID]interfaces.Document
	log        *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *slog.Logger) *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]interfaces.Identity),
		documents:  make(map[string]map[uuid.UUID]interfaces.Document),
		log:        log,
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, interfaces.ErrIdentityNotFound
	}
	return &identity, nil
}

func (s *MemoryStore) Create(ctx context.Context, identity *interfaces.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[identity.ID]; ok {
		return interfaces.ErrIdentityExists
	}
	s.identities[identity.ID] = *identity
	return nil
}

func (s *MemoryStore) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return time.Time{}, interfaces.ErrIdentityNotFound
	}
	if !identity.ModifiedAt.Equal(expectedModifiedAt) {
		return time.Time{}, interfaces.ErrStaleIdentity
	}

	identity.KeySet = ks
	identity.ModifiedAt = nextModification(identity.ModifiedAt)
	s.identities[id] = identity
	return identity.ModifiedAt, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[id]; !ok {
		return interfaces.ErrIdentityNotFound
	}
	delete(s.identities, id)
	delete(s.documents, id)
	return nil
}

func (s *MemoryStore) PutDocument(ctx context.Context, doc *interfaces.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[doc.Owner]; !ok {
		return interfaces.ErrIdentityNotFound
	}
	docs, ok := s.documents[doc.Owner]
	if !ok {
		docs = make(map[uuid.UUID]interfaces.Document)
		s.documents[doc.Owner] = docs
	}
	docs[doc.ID] = *doc
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, owner string) ([]interfaces.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.identities[owner]; !ok {
		return nil, interfaces.ErrIdentityNotFound
	}
	docs := make([]interfaces.Document, 0, len(s.documents[owner]))
	for _, doc := range s.documents[owner] {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Close() error { return nil }

// nextModification returns a timestamp strictly after prev, so ModifiedAt is
// usable as a compare-and-swap token even on coarse clocks.
func nextModification(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

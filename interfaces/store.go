package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/keybound/identity-vault-backend/keyset"
)

var (
	// ErrIdentityNotFound is returned when no identity exists for an ID.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrIdentityExists is returned by Create when the ID is already taken.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrStaleIdentity is returned by ReplaceKeySet when the identity was
	// modified since the caller read it (lost-update detection).
	ErrStaleIdentity = errors.New("identity modified concurrently")

	// ErrStoreUnavailable is returned when a backend is not accessible.
	// This could be due to network issues, authentication failures, or
	// service outages.
	ErrStoreUnavailable = errors.New("identity store unavailable")

	// ErrInvalidStoreURI is returned when a store location URI is malformed
	// or names an unsupported scheme.
	ErrInvalidStoreURI = errors.New("invalid identity store URI")
)

// IdentityStore persists identities and their dependent documents.
//
// Every mutating call executes in a single atomic scope per backend: a
// concurrent reader never observes a half-replaced key set or a partially
// deleted identity. Serialization of conflicting passphrase changes is
// enforced through the ModifiedAt compare-and-swap in ReplaceKeySet.
type IdentityStore interface {
	// FindByID resolves an identity by its ID.
	// Returns ErrIdentityNotFound if absent.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// Create persists a new identity.
	// Returns ErrIdentityExists if the ID is taken.
	Create(ctx context.Context, identity *Identity) error

	// ReplaceKeySet atomically swaps the identity's key set if and only if
	// its ModifiedAt still equals expectedModifiedAt, bumping ModifiedAt and
	// returning the new value. Returns ErrStaleIdentity on a concurrent
	// update and ErrIdentityNotFound if the identity vanished.
	ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error)

	// Delete removes the identity and all of its documents in one atomic
	// scope. Returns ErrIdentityNotFound if absent.
	Delete(ctx context.Context, id string) error

	// PutDocument stores a document owned by an existing identity.
	// Returns ErrIdentityNotFound if the owner does not exist.
	PutDocument(ctx context.Context, doc *Document) error

	// ListDocuments returns the documents owned by an identity, which may
	// be empty. Returns ErrIdentityNotFound if the owner does not exist.
	ListDocuments(ctx context.Context, owner string) ([]Document, error)

	// Name returns a backend identifier for logging.
	Name() string

	// Close releases backend resources.
	Close() error
}

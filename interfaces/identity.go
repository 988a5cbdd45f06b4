package interfaces

import (
	"time"

	"github.com/google/uuid"
	"github.com/keybound/identity-vault-backend/keyset"
)

// Identity is the account entity owning exactly one passphrase-locked key
// set and zero or more dependent documents. The key set is replaced
// wholesale on passphrase change, never mutated in place, and is always in
// locked form except while a single request is processing it.
type Identity struct {
	// ID is the unique, stable identifier. It doubles as the lookup key and
	// as the required match for the identifier supplied in credentials.
	ID string `json:"id"`

	// KeySet is the locked envelope guarding the identity's key material.
	KeySet keyset.KeySet `json:"key_set"`

	CreatedAt time.Time `json:"created_at"`

	// ModifiedAt is bumped on every successful mutation and doubles as the
	// optimistic-concurrency token for ReplaceKeySet.
	ModifiedAt time.Time `json:"modified_at"`
}

// Document is a resource owned by an identity. Documents are cascaded when
// the owning identity is destroyed; no orphaned document may remain
// observable afterwards.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	ModifiedAt  time.Time `json:"modified_at"`
}

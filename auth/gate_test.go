package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
	"github.com/keybound/identity-vault-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupGate(t *testing.T) *Gate {
	t.Helper()
	store := storage.NewMemoryStore(testLogger())

	ks, err := keyset.Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	now := time.Now().UTC()
	err = store.Create(context.Background(), &interfaces.Identity{
		ID:         "alice",
		KeySet:     ks,
		CreatedAt:  now,
		ModifiedAt: now,
	})
	require.NoError(t, err)

	return NewGate(store, testLogger())
}

func TestAuthenticateUnknownIdentity(t *testing.T) {
	gate := setupGate(t)

	outcome, err := gate.Authenticate(context.Background(), "bob", Credentials{Identifier: "bob", Passphrase: "whatever"}, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, outcome.Kind)
	assert.Nil(t, outcome.Identity)
	assert.Nil(t, outcome.Unlocked)
}

func TestAuthenticateIdentifierMismatch(t *testing.T) {
	gate := setupGate(t)

	// Presenting alice's address with bob's identifier fails before any
	// unlock is attempted, even with alice's correct passphrase.
	outcome, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "bob", Passphrase: "correct-horse"}, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, outcome.Kind)
	assert.Nil(t, outcome.Unlocked)
}

func TestAuthenticateWrongPassphrase(t *testing.T) {
	gate := setupGate(t)

	outcome, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice", Passphrase: "wrong"}, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, outcome.Kind)
	assert.Nil(t, outcome.Unlocked)
}

func TestAuthenticateEmptyPassphrase(t *testing.T) {
	gate := setupGate(t)

	// Empty is a wrong passphrase, not a malformed request.
	outcome, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice"}, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, outcome.Kind)
}

func TestAuthenticateSuccess(t *testing.T) {
	gate := setupGate(t)

	outcome, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice", Passphrase: "correct-horse"}, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeAuthorized, outcome.Kind)
	require.NotNil(t, outcome.Identity)
	require.NotNil(t, outcome.Unlocked)
	defer outcome.Unlocked.Destroy()

	assert.Equal(t, "alice", outcome.Identity.ID)
	assert.Equal(t, "alice", outcome.Unlocked.Holder())
}

func TestAuthenticateWithoutUnlock(t *testing.T) {
	gate := setupGate(t)

	// With requireUnlock=false the passphrase is not checked here; the
	// caller folds the unlock into its own mutation.
	outcome, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice", Passphrase: "wrong"}, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAuthorized, outcome.Kind)
	assert.NotNil(t, outcome.Identity)
	assert.Nil(t, outcome.Unlocked)
}

func TestCredentialFailuresAreIndistinguishable(t *testing.T) {
	gate := setupGate(t)

	mismatch, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "bob", Passphrase: "correct-horse"}, true)
	require.NoError(t, err)

	wrongPass, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice", Passphrase: "nope"}, true)
	require.NoError(t, err)

	// The two failure causes must collapse into the same outcome kind.
	assert.Equal(t, OutcomeUnauthorized, mismatch.Kind)
	assert.Equal(t, wrongPass.Kind, mismatch.Kind)
}

// faultyStore fails every lookup.
type faultyStore struct {
	*storage.MemoryStore
}

func (s *faultyStore) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	return nil, interfaces.ErrStoreUnavailable
}

func TestAuthenticateStoreFault(t *testing.T) {
	gate := NewGate(&faultyStore{}, testLogger())

	_, err := gate.Authenticate(context.Background(), "alice", Credentials{Identifier: "alice", Passphrase: "pw"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrStoreUnavailable))
}

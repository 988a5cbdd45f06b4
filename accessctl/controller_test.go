package accessctl

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
	"github.com/keybound/identity-vault-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupController(t *testing.T, random io.Reader) (*Controller, interfaces.IdentityStore) {
	t.Helper()
	store := storage.NewMemoryStore(testLogger())

	ks, err := keyset.Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), &interfaces.Identity{
		ID:         "alice",
		KeySet:     ks,
		CreatedAt:  now,
		ModifiedAt: now,
	}))

	gate := auth.NewGate(store, testLogger())
	return NewController(store, gate, random, testLogger()), store
}

func creds(id, passphrase string) auth.Credentials {
	return auth.Credentials{Identifier: id, Passphrase: passphrase}
}

func TestInspect(t *testing.T) {
	controller, store := setupController(t, rand.Reader)
	ctx := context.Background()

	require.NoError(t, store.PutDocument(ctx, &interfaces.Document{
		ID: uuid.New(), Owner: "alice", Name: "notes.txt", Body: []byte("x"),
	}))

	info, err := controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)
	assert.Len(t, info.KeyFingerprint, 64)
	assert.Equal(t, 1, info.DocumentCount)

	_, err = controller.Inspect(ctx, "alice", creds("alice", "wrong"))
	assert.ErrorIs(t, err, ErrChallenge)

	_, err = controller.Inspect(ctx, "nobody", creds("nobody", "whatever"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Presenting another account's credentials against an existing account
	// is a challenge, not a not-found.
	_, err = controller.Inspect(ctx, "alice", creds("bob", "correct-horse"))
	assert.ErrorIs(t, err, ErrChallenge)
}

func TestChangePassphraseRotation(t *testing.T) {
	controller, _ := setupController(t, rand.Reader)
	ctx := context.Background()

	require.NoError(t, controller.ChangePassphrase(ctx, "alice", creds("alice", "correct-horse"), "new-pass"))

	// The old passphrase stops working, the new one works, and the key
	// fingerprint is stable across the rotation.
	_, err := controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	assert.ErrorIs(t, err, ErrChallenge)

	info, err := controller.Inspect(ctx, "alice", creds("alice", "new-pass"))
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)
}

func TestChangePassphraseFailures(t *testing.T) {
	controller, _ := setupController(t, rand.Reader)
	ctx := context.Background()

	// Wrong old passphrase: challenge, nothing changed.
	err := controller.ChangePassphrase(ctx, "alice", creds("alice", "wrong"), "new-pass")
	assert.ErrorIs(t, err, ErrChallenge)

	// Unknown identity: not-found signal.
	err = controller.ChangePassphrase(ctx, "nobody", creds("nobody", "pw"), "new-pass")
	assert.ErrorIs(t, err, ErrNotFound)

	// Empty new passphrase is rejected before any credential work.
	err = controller.ChangePassphrase(ctx, "alice", creds("alice", "correct-horse"), "")
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	// After all the failures the original passphrase still unlocks.
	_, err = controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	require.NoError(t, err)
}

// brokenRandom always fails, forcing a mid-relock error.
type brokenRandom struct{}

func (brokenRandom) Read(p []byte) (int, error) {
	return 0, errors.New("entropy source offline")
}

func TestChangePassphraseRelockFailureLeavesStateIntact(t *testing.T) {
	controller, _ := setupController(t, brokenRandom{})
	ctx := context.Background()

	// The relock fails, surfacing the uniform challenge.
	err := controller.ChangePassphrase(ctx, "alice", creds("alice", "correct-horse"), "new-pass")
	assert.ErrorIs(t, err, ErrChallenge)

	// The original key set is fully intact and the old passphrase valid.
	working := NewControllerFrom(t, controller)
	_, err = working.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	require.NoError(t, err)
	_, err = working.Inspect(ctx, "alice", creds("alice", "new-pass"))
	assert.ErrorIs(t, err, ErrChallenge)
}

// NewControllerFrom rebuilds a controller around the same store with a
// working random source.
func NewControllerFrom(t *testing.T, c *Controller) *Controller {
	t.Helper()
	return NewController(c.store, c.gate, rand.Reader, c.log)
}

// staleStore makes every ReplaceKeySet lose its compare-and-swap.
type staleStore struct {
	interfaces.IdentityStore
}

func (s *staleStore) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expected time.Time) (time.Time, error) {
	return time.Time{}, interfaces.ErrStaleIdentity
}

func TestChangePassphraseConcurrentUpdateConflict(t *testing.T) {
	controller, store := setupController(t, rand.Reader)
	wrapped := &staleStore{IdentityStore: store}
	conflicted := NewController(wrapped, auth.NewGate(wrapped, testLogger()), rand.Reader, testLogger())

	err := conflicted.ChangePassphrase(context.Background(), "alice", creds("alice", "correct-horse"), "new-pass")
	assert.ErrorIs(t, err, interfaces.ErrStaleIdentity)

	// Conflicts are not challenges; the caller is authenticated.
	assert.NotErrorIs(t, err, ErrChallenge)

	// The winner's state is untouched by the loser.
	_, err = controller.Inspect(context.Background(), "alice", creds("alice", "correct-horse"))
	require.NoError(t, err)
}

func TestDestroy(t *testing.T) {
	controller, store := setupController(t, rand.Reader)
	ctx := context.Background()

	require.NoError(t, store.PutDocument(ctx, &interfaces.Document{
		ID: uuid.New(), Owner: "alice", Name: "notes.txt", Body: []byte("x"),
	}))

	// Wrong passphrase cannot destroy.
	assert.ErrorIs(t, controller.Destroy(ctx, "alice", creds("alice", "wrong")), ErrChallenge)

	require.NoError(t, controller.Destroy(ctx, "alice", creds("alice", "correct-horse")))

	// Identity and its documents are gone.
	_, err := controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.ListDocuments(ctx, "alice")
	assert.ErrorIs(t, err, interfaces.ErrIdentityNotFound)

	assert.ErrorIs(t, controller.Destroy(ctx, "nobody", creds("nobody", "pw")), ErrNotFound)
}

// TestFullLifecycle walks the canonical scenario end to end.
func TestFullLifecycle(t *testing.T) {
	controller, _ := setupController(t, rand.Reader)
	ctx := context.Background()

	info, err := controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	require.NoError(t, err)
	assert.Equal(t, "alice", info.ID)

	_, err = controller.Inspect(ctx, "alice", creds("alice", "wrong"))
	assert.ErrorIs(t, err, ErrChallenge)

	require.NoError(t, controller.ChangePassphrase(ctx, "alice", creds("alice", "correct-horse"), "new-pass"))

	_, err = controller.Inspect(ctx, "alice", creds("alice", "correct-horse"))
	assert.ErrorIs(t, err, ErrChallenge)

	_, err = controller.Inspect(ctx, "alice", creds("alice", "new-pass"))
	require.NoError(t, err)

	require.NoError(t, controller.Destroy(ctx, "alice", creds("alice", "new-pass")))

	_, err = controller.Inspect(ctx, "alice", creds("alice", "new-pass"))
	assert.ErrorIs(t, err, ErrNotFound)
}

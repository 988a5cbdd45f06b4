package accessctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/keybound/identity-vault-backend/auth"
	"github.com/keybound/identity-vault-backend/interfaces"
)

var (
	// ErrNotFound is returned when the addressed identity does not exist.
	ErrNotFound = errors.New("identity not found")

	// ErrChallenge is the uniform authentication-failure signal. It is
	// identical for every failure cause so callers cannot distinguish a
	// wrong identifier from a wrong passphrase from a relock error.
	ErrChallenge = errors.New("authentication required")
)

// ValidationError rejects a malformed request before any credential check
// is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// IdentityInfo is the read-only projection returned by Inspect. It carries
// no key material beyond a public fingerprint.
type IdentityInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ModifiedAt     time.Time `json:"modified_at"`
	KeyFingerprint string    `json:"key_fingerprint"`
	DocumentCount  int       `json:"document_count"`
}

// Controller mediates the inspect, change-passphrase and destroy operations.
//
// The random source is an explicit capability: production injects a secure
// source (crypto/rand.Reader), tests may inject a deterministic or failing
// one. It feeds the relock of every passphrase change.
type Controller struct {
	store  interfaces.IdentityStore
	gate   *auth.Gate
	random io.Reader
	log    *slog.Logger
}

// NewController wires an access controller.
func NewController(store interfaces.IdentityStore, gate *auth.Gate, random io.Reader, log *slog.Logger) *Controller {
	return &Controller{store: store, gate: gate, random: random, log: log}
}

// Inspect returns the identity's projection after full passphrase proof.
// The unlocked key set exists only long enough to prove possession and to
// compute the public fingerprint; it is destroyed before returning.
func (c *Controller) Inspect(ctx context.Context, accountID string, creds auth.Credentials) (*IdentityInfo, error) {
	outcome, err := c.gate.Authenticate(ctx, accountID, creds, true)
	if err != nil {
		return nil, fmt.Errorf("inspect: %w", err)
	}

	switch outcome.Kind {
	case auth.OutcomeNotFound:
		return nil, ErrNotFound
	case auth.OutcomeUnauthorized:
		return nil, ErrChallenge
	}
	defer outcome.Unlocked.Destroy()

	fingerprint, err := outcome.Unlocked.Fingerprint()
	if err != nil {
		c.log.Error("fingerprint computation failed", slog.String("id", outcome.Identity.ID), "err", err)
		return nil, ErrChallenge
	}

	docs, err := c.store.ListDocuments(ctx, outcome.Identity.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect: listing documents: %w", err)
	}

	return &IdentityInfo{
		ID:             outcome.Identity.ID,
		CreatedAt:      outcome.Identity.CreatedAt,
		ModifiedAt:     outcome.Identity.ModifiedAt,
		KeyFingerprint: fingerprint,
		DocumentCount:  len(docs),
	}, nil
}

// ChangePassphrase rotates the passphrase guarding the identity's key set.
//
// The stored key set and the replacement are one logical transaction: the
// old envelope is only ever replaced wholesale by ReplaceKeySet's
// compare-and-swap, so any failure (wrong old passphrase, relock error,
// failed persist) leaves the original key set untouched and the old
// passphrase valid. A lost compare-and-swap surfaces as
// interfaces.ErrStaleIdentity, distinct from the challenge.
func (c *Controller) ChangePassphrase(ctx context.Context, accountID string, creds auth.Credentials, newPassphrase string) error {
	if newPassphrase == "" {
		return &ValidationError{Reason: "new passphrase must not be empty"}
	}

	outcome, err := c.gate.Authenticate(ctx, accountID, creds, false)
	if err != nil {
		return fmt.Errorf("change passphrase: %w", err)
	}

	switch outcome.Kind {
	case auth.OutcomeNotFound:
		return ErrNotFound
	case auth.OutcomeUnauthorized:
		return ErrChallenge
	}
	identity := outcome.Identity

	unlocked, err := identity.KeySet.Unlock([]byte(creds.Passphrase))
	if err != nil {
		return ErrChallenge
	}
	defer unlocked.Destroy()

	relocked, err := unlocked.Relock([]byte(creds.Passphrase), []byte(newPassphrase), c.random)
	if err != nil {
		// Relock failures fold into the challenge so the response shape
		// cannot reveal whether the passphrase or the crypto failed.
		c.log.Error("relock failed", slog.String("id", identity.ID), "err", err)
		return ErrChallenge
	}

	modifiedAt, err := c.store.ReplaceKeySet(ctx, identity.ID, relocked, identity.ModifiedAt)
	if err != nil {
		if errors.Is(err, interfaces.ErrStaleIdentity) {
			return interfaces.ErrStaleIdentity
		}
		if errors.Is(err, interfaces.ErrIdentityNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("change passphrase: persisting key set: %w", err)
	}

	c.log.Info("passphrase changed", slog.String("id", identity.ID), slog.Time("modifiedAt", modifiedAt))
	return nil
}

// Destroy removes the identity and all of its documents after full
// passphrase proof. The cascade is atomic: no dependent state remains
// observable once Destroy returns.
func (c *Controller) Destroy(ctx context.Context, accountID string, creds auth.Credentials) error {
	outcome, err := c.gate.Authenticate(ctx, accountID, creds, true)
	if err != nil {
		return fmt.Errorf("destroy: %w", err)
	}

	switch outcome.Kind {
	case auth.OutcomeNotFound:
		return ErrNotFound
	case auth.OutcomeUnauthorized:
		return ErrChallenge
	}

	// The unlock only proved possession; the material is not needed.
	outcome.Unlocked.Destroy()

	if err := c.store.Delete(ctx, outcome.Identity.ID); err != nil {
		if errors.Is(err, interfaces.ErrIdentityNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("destroy: %w", err)
	}

	c.log.Info("identity destroyed", slog.String("id", outcome.Identity.ID))
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

// Credentials carry the identifier and passphrase for exactly one request.
// They are transient values: never stored, never logged.
type Credentials struct {
	Identifier string
	Passphrase string
}

// OutcomeKind enumerates the possible results of an authentication attempt.
type OutcomeKind int

const (
	// OutcomeNotFound means no identity exists for the identifier. It is
	// used only to select a not-found response at the boundary and must
	// never leak through any credential-failure response.
	OutcomeNotFound OutcomeKind = iota

	// OutcomeUnauthorized covers every credential failure past the lookup:
	// identifier mismatch and failed unlock are indistinguishable here.
	OutcomeUnauthorized

	// OutcomeAuthorized means the caller proved possession of the
	// passphrase.
	OutcomeAuthorized
)

// Outcome is the tagged result of Gate.Authenticate. Identity is set for
// every outcome except NotFound; Unlocked is set only when the outcome is
// Authorized and the caller asked for an unlock.
type Outcome struct {
	Kind     OutcomeKind
	Identity *interfaces.Identity
	Unlocked *keyset.UnlockedKeySet
}

// Gate validates credentials against the identity store.
type Gate struct {
	store interfaces.IdentityStore
	log   *slog.Logger
}

// NewGate creates a credential gate backed by the given store.
func NewGate(store interfaces.IdentityStore, log *slog.Logger) *Gate {
	return &Gate{store: store, log: log}
}

// Authenticate resolves the identity addressed by accountID and checks the
// supplied credentials against it:
//
//  1. Unknown accountID -> NotFound.
//  2. Credential identifier differing from the record's ID -> Unauthorized,
//     without attempting an unlock. This is the cheap short-circuit for a
//     caller presenting someone else's address with their own credentials.
//  3. With requireUnlock, the passphrase is proven by unlocking the key
//     set; failure -> Unauthorized, success -> Authorized with the unlocked
//     set handed to the caller, who owns it and must Destroy it.
//
// The error return is reserved for store faults. Credential failures are
// outcomes, never errors, so they cannot be conflated with server-side
// faults further up.
func (g *Gate) Authenticate(ctx context.Context, accountID string, creds Credentials, requireUnlock bool) (Outcome, error) {
	identity, err := g.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, interfaces.ErrIdentityNotFound) {
			return Outcome{Kind: OutcomeNotFound}, nil
		}
		return Outcome{}, fmt.Errorf("resolving identity: %w", err)
	}

	if creds.Identifier != identity.ID {
		g.log.Debug("identifier mismatch", slog.String("id", identity.ID))
		return Outcome{Kind: OutcomeUnauthorized, Identity: identity}, nil
	}

	if !requireUnlock {
		return Outcome{Kind: OutcomeAuthorized, Identity: identity}, nil
	}

	unlocked, err := identity.KeySet.Unlock([]byte(creds.Passphrase))
	if err != nil {
		g.log.Debug("key set unlock failed", slog.String("id", identity.ID))
		return Outcome{Kind: OutcomeUnauthorized, Identity: identity}, nil
	}

	return Outcome{Kind: OutcomeAuthorized, Identity: identity, Unlocked: unlocked}, nil
}

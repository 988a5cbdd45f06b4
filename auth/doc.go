// Package auth implements the credential gate: validation of a supplied
// (identifier, passphrase) pair against an identity's stored, passphrase-
// locked key set.
//
// The gate returns a tagged Outcome rather than throwing transport-level
// signals from the core. NotFound is distinct from Unauthorized so the
// boundary can pick a response, but every credential failure past the
// lookup (identifier mismatch, or a passphrase that fails to unlock)
// collapses into the single Unauthorized outcome. Callers must never
// distinguish those causes to a client, or identity enumeration becomes
// possible.
//
// The gate keeps no failure counters and applies no backoff; rate limiting
// belongs to an outer layer.
package auth

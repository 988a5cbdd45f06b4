// Package keyset implements the passphrase-encrypted key-set container.
//
// A KeySet holds an identity's asymmetric key material (an Ed25519 signing
// key and an X25519 agreement key) sealed with XChaCha20-Poly1305 under a
// key derived from the holder's passphrase with Argon2id. The locked form is
// an opaque, JSON-serializable envelope; the only way to get at the material
// is Unlock, and the only way to change the guarding passphrase is Relock,
// which produces a brand new envelope and never touches the old one.
//
// State transitions per envelope:
//
//	Locked -> Unlock(passphrase) -> Unlocked (transient, in-memory only)
//	Unlocked -> Relock(old, new, random) -> new Locked envelope
//
// Unlock is a pure attempt: a failed unlock has no side effects and a
// successful one does not mutate the envelope. An UnlockedKeySet must never
// be persisted; callers destroy it at the end of the request that produced
// it.
package keyset

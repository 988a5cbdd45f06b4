package keyset

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/curve25519"
)

// UnlockedKeySet is the transient decrypted form of a KeySet. It exists only
// for the duration of a single request, is never persisted or logged, and is
// owned exclusively by the caller that unlocked it.
type UnlockedKeySet struct {
	origin   KeySet
	material []byte
}

// Relock re-encrypts the key material under newPassphrase, producing a new
// locked envelope. The old passphrase is verified against the original
// envelope first; the original is never modified, so any failure leaves the
// caller's stored state exactly as it was.
//
// The salt and nonce of the new envelope are drawn from random, which must
// be a fresh, cryptographically secure source per call.
func (u *UnlockedKeySet) Relock(oldPassphrase, newPassphrase []byte, random io.Reader) (KeySet, error) {
	check, err := u.origin.Unlock(oldPassphrase)
	if err != nil {
		return KeySet{}, err
	}
	check.Destroy()

	return seal(u.origin.Holder, newPassphrase, u.material, time.Now().UTC(), random)
}

// Holder returns the identity the key set belongs to.
func (u *UnlockedKeySet) Holder() string {
	return u.origin.Holder
}

// SigningPublicKey returns the public half of the Ed25519 signing key.
func (u *UnlockedKeySet) SigningPublicKey() ed25519.PublicKey {
	priv := ed25519.PrivateKey(u.material[:ed25519.PrivateKeySize])
	return priv.Public().(ed25519.PublicKey)
}

// AgreementPublicKey returns the public half of the X25519 agreement key.
func (u *UnlockedKeySet) AgreementPublicKey() ([]byte, error) {
	pub, err := curve25519.X25519(u.material[ed25519.PrivateKeySize:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return pub, nil
}

// Fingerprint returns a stable hex digest over the public halves of the key
// material. It survives passphrase changes, since relocking reuses the same
// underlying keys.
func (u *UnlockedKeySet) Fingerprint() (string, error) {
	agreementPub, err := u.AgreementPublicKey()
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(u.SigningPublicKey())
	h.Write(agreementPub)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Destroy zeroizes the decrypted key material. The unlocked set must not be
// used afterwards.
func (u *UnlockedKeySet) Destroy() {
	zero(u.material)
}

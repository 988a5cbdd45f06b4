package keyset

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndUnlock(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	assert.Equal(t, "alice", ks.Holder)
	assert.NotEmpty(t, ks.Ciphertext)

	unlocked, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	defer unlocked.Destroy()

	assert.Equal(t, "alice", unlocked.Holder())
	assert.Len(t, unlocked.SigningPublicKey(), 32)

	fp, err := unlocked.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, fp, 64)
}

func TestUnlockWrongPassphrase(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	before, err := json.Marshal(ks)
	require.NoError(t, err)

	_, err = ks.Unlock([]byte("wrong"))
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	// A failed unlock must leave the envelope byte-for-byte unchanged.
	after, err := json.Marshal(ks)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUnlockEmptyPassphrase(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	// Empty is a valid, simply wrong, passphrase.
	_, err = ks.Unlock(nil)
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	empty, err := Generate("bob", nil, rand.Reader)
	require.NoError(t, err)
	unlocked, err := empty.Unlock([]byte{})
	require.NoError(t, err)
	unlocked.Destroy()
}

func TestRelockRotatesPassphrase(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	unlocked, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	oldFingerprint, err := unlocked.Fingerprint()
	require.NoError(t, err)

	relocked, err := unlocked.Relock([]byte("correct-horse"), []byte("new-pass"), rand.Reader)
	require.NoError(t, err)
	unlocked.Destroy()

	// Old passphrase no longer opens the new envelope.
	_, err = relocked.Unlock([]byte("correct-horse"))
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	// New passphrase does, and the key material is unchanged.
	reopened, err := relocked.Unlock([]byte("new-pass"))
	require.NoError(t, err)
	defer reopened.Destroy()

	newFingerprint, err := reopened.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, oldFingerprint, newFingerprint)

	// The original envelope still opens with the original passphrase.
	orig, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	orig.Destroy()
}

func TestRelockWrongOldPassphrase(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	unlocked, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	defer unlocked.Destroy()

	_, err = unlocked.Relock([]byte("not-it"), []byte("new-pass"), rand.Reader)
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

// failingReader errors after a set number of bytes, standing in for a broken
// random source mid-relock.
type failingReader struct {
	remaining int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, errors.New("entropy exhausted")
	}
	n := len(p)
	if n > r.remaining {
		n = r.remaining
	}
	r.remaining -= n
	return n, nil
}

func TestRelockFailingRandomSource(t *testing.T) {
	ks, err := Generate("alice", []byte("correct-horse"), rand.Reader)
	require.NoError(t, err)

	unlocked, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	defer unlocked.Destroy()

	// Enough entropy for the salt but not the nonce.
	_, err = unlocked.Relock([]byte("correct-horse"), []byte("new-pass"), &failingReader{remaining: saltSize})
	assert.ErrorIs(t, err, ErrCrypto)

	// The original envelope is untouched and still unlocks.
	again, err := ks.Unlock([]byte("correct-horse"))
	require.NoError(t, err)
	again.Destroy()
}

func TestGenerateFailingRandomSource(t *testing.T) {
	_, err := Generate("alice", []byte("pw"), &failingReader{remaining: 0})
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestUnlockUnsupportedEnvelope(t *testing.T) {
	ks, err := Generate("alice", []byte("pw"), rand.Reader)
	require.NoError(t, err)

	ks.Version = 99
	_, err = ks.Unlock([]byte("pw"))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestUnlockMalformedEnvelope(t *testing.T) {
	// Stored envelopes are externally writable in several backends, so a
	// truncated nonce or salt must surface as an error, never a panic.
	ks, err := Generate("alice", []byte("pw"), rand.Reader)
	require.NoError(t, err)

	truncatedNonce := ks
	truncatedNonce.Nonce = ks.Nonce[:8]
	_, err = truncatedNonce.Unlock([]byte("pw"))
	assert.ErrorIs(t, err, ErrCrypto)

	truncatedSalt := ks
	truncatedSalt.Salt = ks.Salt[:4]
	_, err = truncatedSalt.Unlock([]byte("pw"))
	assert.ErrorIs(t, err, ErrCrypto)

	noNonce := ks
	noNonce.Nonce = nil
	_, err = noNonce.Unlock([]byte("pw"))
	assert.ErrorIs(t, err, ErrCrypto)
}

func TestUnlockedKeySetIsIndependentCopy(t *testing.T) {
	ks, err := Generate("alice", []byte("pw"), rand.Reader)
	require.NoError(t, err)

	first, err := ks.Unlock([]byte("pw"))
	require.NoError(t, err)
	fpBefore, err := first.Fingerprint()
	require.NoError(t, err)
	first.Destroy()

	// Destroying one unlocked copy must not affect a later unlock.
	second, err := ks.Unlock([]byte("pw"))
	require.NoError(t, err)
	defer second.Destroy()
	fpAfter, err := second.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fpBefore, fpAfter)
}

package keyset

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const (
	// envelopeVersion is the current locked envelope format version.
	envelopeVersion = 1

	saltSize = 16

	// Argon2id parameters for the passphrase KDF.
	kdfName     = "argon2id"
	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1

	// materialSize is ed25519 private key (64) plus x25519 scalar (32).
	materialSize = ed25519.PrivateKeySize + curve25519.ScalarSize
)

var (
	// ErrWrongPassphrase is returned when a passphrase fails to unlock an
	// envelope, or when the ciphertext has been modified or corrupted. The
	// two cases are deliberately indistinguishable.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key set")

	// ErrCrypto is returned when a relock or generate operation cannot be
	// completed, e.g. because the supplied random source fails.
	ErrCrypto = errors.New("key set cryptographic failure")
)

// KeySet is the locked, passphrase-encrypted envelope holding an identity's
// private key material. It is an opaque value to every other package: the
// fields are exported only so stores can serialize it.
type KeySet struct {
	Version     int       `json:"version"`
	Holder      string    `json:"holder"`
	KDF         string    `json:"kdf"`
	KDFTime     uint32    `json:"kdf_time"`
	KDFMemoryKB uint32    `json:"kdf_memory_kb"`
	KDFThreads  uint8     `json:"kdf_threads"`
	Salt        []byte    `json:"salt"`
	Nonce       []byte    `json:"nonce"`
	Ciphertext  []byte    `json:"ciphertext"`
	CreatedAt   time.Time `json:"created_at"`
}

// Generate creates fresh Ed25519 and X25519 key material for holder and
// seals it under passphrase. All randomness (key material, KDF salt, AEAD
// nonce) is drawn from the supplied source, which must be cryptographically
// secure in production.
func Generate(holder string, passphrase []byte, random io.Reader) (KeySet, error) {
	_, signingKey, err := ed25519.GenerateKey(random)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: generating signing key: %v", ErrCrypto, err)
	}

	agreementKey := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(random, agreementKey); err != nil {
		return KeySet{}, fmt.Errorf("%w: generating agreement key: %v", ErrCrypto, err)
	}

	material := make([]byte, 0, materialSize)
	material = append(material, signingKey...)
	material = append(material, agreementKey...)
	defer zero(material)
	zero(signingKey)
	zero(agreementKey)

	return seal(holder, passphrase, material, time.Now().UTC(), random)
}

// Unlock attempts to decrypt the envelope with the given passphrase. It is a
// pure attempt: the envelope is never mutated and a failure has no side
// effects. An empty passphrase is a valid, simply wrong, passphrase.
//
// The caller owns the returned UnlockedKeySet and must call Destroy on it
// before the end of the request that produced it.
func (ks KeySet) Unlock(passphrase []byte) (*UnlockedKeySet, error) {
	if ks.Version != envelopeVersion || ks.KDF != kdfName {
		return nil, fmt.Errorf("%w: unsupported envelope version", ErrCrypto)
	}
	if len(ks.Nonce) != chacha20poly1305.NonceSizeX || len(ks.Salt) != saltSize {
		return nil, fmt.Errorf("%w: malformed envelope", ErrCrypto)
	}

	key := ks.deriveKey(passphrase)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	material, err := aead.Open(nil, ks.Nonce, ks.Ciphertext, []byte(ks.Holder))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	if len(material) != materialSize {
		zero(material)
		return nil, fmt.Errorf("%w: malformed key material", ErrCrypto)
	}

	return &UnlockedKeySet{origin: ks, material: material}, nil
}

// deriveKey runs the envelope's KDF over the passphrase and stored salt.
func (ks KeySet) deriveKey(passphrase []byte) []byte {
	return argon2.IDKey(passphrase, ks.Salt, ks.KDFTime, ks.KDFMemoryKB, ks.KDFThreads, chacha20poly1305.KeySize)
}

// seal encrypts material for holder under passphrase, drawing a fresh salt
// and nonce from random. Failures leave no partial state behind.
func seal(holder string, passphrase, material []byte, createdAt time.Time, random io.Reader) (KeySet, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(random, salt); err != nil {
		return KeySet{}, fmt.Errorf("%w: reading salt: %v", ErrCrypto, err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return KeySet{}, fmt.Errorf("%w: reading nonce: %v", ErrCrypto, err)
	}

	ks := KeySet{
		Version:     envelopeVersion,
		Holder:      holder,
		KDF:         kdfName,
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		CreatedAt:   createdAt,
	}

	key := ks.deriveKey(passphrase)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return KeySet{}, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	ks.Ciphertext = aead.Seal(nil, nonce, material, []byte(holder))
	return ks, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/keybound/identity-vault-backend/interfaces"
)

// StoreFactory creates identity store backends from location URIs.
type StoreFactory struct {
	log *slog.Logger
}

// NewStoreFactory creates a factory that can build any supported backend.
func NewStoreFactory(log *slog.Logger) *StoreFactory {
	return &StoreFactory{log: log}
}

// StoreFor creates an identity store from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - mem:// - in-memory storage
//   - file:///path - local filesystem storage
//   - badger:///path - embedded Badger database
//   - s3://bucket/prefix?region=...&endpoint=...&access_key=...&secret_key=... - S3-compatible storage
//   - vault://host:port/mount/path?token=...&tls=true - HashiCorp Vault KV v2
//
// Returns ErrInvalidStoreURI if the URI is malformed or the scheme is
// unsupported.
func (f *StoreFactory) StoreFor(locationURI string) (interfaces.IdentityStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidStoreURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "mem":
		return NewMemoryStore(f.log), nil
	case "file":
		return f.createFileStore(u)
	case "badger":
		return f.createBadgerStore(u)
	case "s3":
		return f.createS3Store(u)
	case "vault":
		return f.createVaultStore(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidStoreURI, u.Scheme)
	}
}

// createFileStore creates a filesystem store.
// URI format: file:///var/lib/vault/identities
func (f *StoreFactory) createFileStore(u *url.URL) (interfaces.IdentityStore, error) {
	dir := u.Path
	if u.Host != "" {
		dir = path.Join(u.Host, u.Path)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: file URI needs a path", interfaces.ErrInvalidStoreURI)
	}
	return NewFileStore(dir, f.log)
}

// createBadgerStore creates an embedded Badger store.
// URI format: badger:///var/lib/vault/db
func (f *StoreFactory) createBadgerStore(u *url.URL) (interfaces.IdentityStore, error) {
	dir := u.Path
	if u.Host != "" {
		dir = path.Join(u.Host, u.Path)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: badger URI needs a path", interfaces.ErrInvalidStoreURI)
	}
	return NewBadgerStore(dir, f.log)
}

// createS3Store creates an S3-compatible store.
// URI format: s3://bucket-name/prefix?region=us-west-2&endpoint=...&access_key=...&secret_key=...
func (f *StoreFactory) createS3Store(u *url.URL) (interfaces.IdentityStore, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 URI needs a bucket", interfaces.ErrInvalidStoreURI)
	}

	prefix := strings.Trim(u.Path, "/")
	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Store(bucket, prefix, region, query.Get("endpoint"), query.Get("access_key"), query.Get("secret_key"), f.log)
}

// createVaultStore creates a Vault KV v2 store.
// URI format: vault://vault.example.com:8200/secret/identities?token=...&tls=true
func (f *StoreFactory) createVaultStore(u *url.URL) (interfaces.IdentityStore, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: vault URI needs a host", interfaces.ErrInvalidStoreURI)
	}

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI needs /mount/path", interfaces.ErrInvalidStoreURI)
	}

	query := u.Query()
	scheme := "http"
	if v := query.Get("tls"); v == "true" || v == "1" || v == "yes" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	return NewVaultStore(address, parts[0], parts[1], query.Get("token"), f.log)
}

// Package storage provides identity persistence with pluggable backends.
//
// Backends implement interfaces.IdentityStore and are created from location
// URIs by the StoreFactory:
//
//   - mem:// - in-memory storage for tests and development
//   - file:///var/lib/vault/ - local filesystem storage
//   - badger:///var/lib/vault/db - embedded Badger key-value store
//   - s3://bucket-name/prefix/?region=us-west-2 - S3-compatible object storage
//   - vault://vault.example.com:8200/secret/identities - HashiCorp Vault KV v2
//
// # Consistency
//
// Every backend gives the same contract: FindByID never observes a
// half-replaced key set, ReplaceKeySet is a compare-and-swap on the
// identity's ModifiedAt, and Delete removes the identity together with all
// of its documents. Memory, file and badger enforce this with a store-wide
// mutex or a single transaction; Vault uses the KV v2 check-and-set
// version; S3 performs a read-check-write sequence and is therefore meant
// for single-writer deployments.
package storage

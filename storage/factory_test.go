package storage

import (
	"path/filepath"
	"testing"

	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreFactoryMemory(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	store, err := factory.StoreFor("mem://")
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Name())
}

func TestStoreFactoryFile(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	store, err := factory.StoreFor("file://" + t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "file", store.Name())
}

func TestStoreFactoryBadger(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	store, err := factory.StoreFor("badger://" + filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, "badger", store.Name())
}

func TestStoreFactoryS3(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	store, err := factory.StoreFor("s3://bucket/identities?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3", store.Name())

	_, err = factory.StoreFor("s3:///no-bucket")
	assert.ErrorIs(t, err, interfaces.ErrInvalidStoreURI)
}

func TestStoreFactoryVault(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	store, err := factory.StoreFor("vault://vault.example.com:8200/secret/identities?token=abc")
	require.NoError(t, err)
	assert.Equal(t, "vault", store.Name())

	_, err = factory.StoreFor("vault://vault.example.com:8200/secret")
	assert.ErrorIs(t, err, interfaces.ErrInvalidStoreURI)
}

func TestStoreFactoryInvalidURIs(t *testing.T) {
	factory := NewStoreFactory(testLogger())

	for _, uri := range []string{"ipfs://host/path", "file://", "badger://", ""} {
		_, err := factory.StoreFor(uri)
		assert.ErrorIs(t, err, interfaces.ErrInvalidStoreURI, uri)
	}
}

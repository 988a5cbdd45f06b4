package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

const (
	identityPrefix = "identity:"
	documentPrefix = "document:"
)

// BadgerStore implements an identity store on an embedded Badger database.
// Each mutation runs inside a single Badger transaction, so key-set
// replacement and the destroy cascade are atomic.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// NewBadgerStore opens (or creates) a Badger database at path.
func NewBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: opening badger at %s: %v", interfaces.ErrStoreUnavailable, path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func identityKey(id string) []byte {
	return []byte(identityPrefix + id)
}

// documentOwnerPrefix escapes the owner segment so an owner ID containing
// ":" cannot collide with another owner's prefix scans. QueryEscape is
// used rather than PathEscape because only the former escapes ":".
func documentOwnerPrefix(owner string) []byte {
	return []byte(documentPrefix + url.QueryEscape(owner) + ":")
}

func documentKey(owner, docID string) []byte {
	return append(documentOwnerPrefix(owner), docID...)
}

func getIdentity(txn *badger.Txn, id string) (*interfaces.Identity, error) {
	item, err := txn.Get(identityKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	var identity interfaces.Identity
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &identity)
	})
	if err != nil {
		return nil, fmt.Errorf("corrupt identity record %s: %w", id, err)
	}
	return &identity, nil
}

func putIdentity(txn *badger.Txn, identity *interfaces.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity record: %w", err)
	}
	return txn.Set(identityKey(identity.ID), data)
}

func (s *BadgerStore) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	var identity *interfaces.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		identity, err = getIdentity(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *BadgerStore) Create(ctx context.Context, identity *interfaces.Identity) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(identityKey(identity.ID))
		if err == nil {
			return interfaces.ErrIdentityExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
		}
		return putIdentity(txn, identity)
	})
}

func (s *BadgerStore) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error) {
	var modifiedAt time.Time
	err := s.db.Update(func(txn *badger.Txn) error {
		identity, err := getIdentity(txn, id)
		if err != nil {
			return err
		}
		if !identity.ModifiedAt.Equal(expectedModifiedAt) {
			return interfaces.ErrStaleIdentity
		}

		identity.KeySet = ks
		identity.ModifiedAt = nextModification(identity.ModifiedAt)
		modifiedAt = identity.ModifiedAt
		return putIdentity(txn, identity)
	})
	if err != nil {
		return time.Time{}, err
	}

	s.log.Debug("replaced key set", slog.String("id", id))
	return modifiedAt, nil
}

func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := getIdentity(txn, id); err != nil {
			return err
		}

		// Collect document keys first; deleting while iterating invalidates
		// the iterator.
		prefix := documentOwnerPrefix(id)
		var docKeys [][]byte
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			docKeys = append(docKeys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range docKeys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
			}
		}
		return txn.Delete(identityKey(id))
	})
	if err != nil {
		return err
	}

	s.log.Debug("deleted identity and documents", slog.String("id", id))
	return nil
}

func (s *BadgerStore) PutDocument(ctx context.Context, doc *interfaces.Document) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getIdentity(txn, doc.Owner); err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		return txn.Set(documentKey(doc.Owner, doc.ID.String()), data)
	})
}

func (s *BadgerStore) ListDocuments(ctx context.Context, owner string) ([]interfaces.Document, error) {
	var docs []interfaces.Document
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := getIdentity(txn, owner); err != nil {
			return err
		}

		prefix := documentOwnerPrefix(owner)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var doc interfaces.Document
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return fmt.Errorf("corrupt document record: %w", err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *BadgerStore) Name() string { return "badger" }

func (s *BadgerStore) Close() error { return s.db.Close() }

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

// FileStore implements an identity store on the local file system. Identity
// records live under identities/ and documents under documents/<owner>/.
// A store-wide mutex plus write-to-temp-then-rename keeps mutations atomic
// with respect to concurrent readers of the same process.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	log     *slog.Logger
}

// NewFileStore creates a file-backed store rooted at baseDir, creating the
// directory layout if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "identities"), filepath.Join(baseDir, "documents")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return &FileStore{baseDir: baseDir, log: log}, nil
}

func (s *FileStore) identityPath(id string) string {
	return filepath.Join(s.baseDir, "identities", url.PathEscape(id)+".json")
}

func (s *FileStore) documentDir(owner string) string {
	return filepath.Join(s.baseDir, "documents", url.PathEscape(owner))
}

func (s *FileStore) readIdentity(id string) (*interfaces.Identity, error) {
	data, err := os.ReadFile(s.identityPath(id))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	var identity interfaces.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("corrupt identity record %s: %w", id, err)
	}
	return &identity, nil
}

func (s *FileStore) writeIdentity(identity *interfaces.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity record: %w", err)
	}

	path := s.identityPath(identity.ID)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readIdentity(id)
}

func (s *FileStore) Create(ctx context.Context, identity *interfaces.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.identityPath(identity.ID)); err == nil {
		return interfaces.ErrIdentityExists
	}
	if err := s.writeIdentity(identity); err != nil {
		return err
	}

	s.log.Debug("created identity record", slog.String("id", identity.ID))
	return nil
}

func (s *FileStore) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.readIdentity(id)
	if err != nil {
		return time.Time{}, err
	}
	if !identity.ModifiedAt.Equal(expectedModifiedAt) {
		return time.Time{}, interfaces.ErrStaleIdentity
	}

	identity.KeySet = ks
	identity.ModifiedAt = nextModification(identity.ModifiedAt)
	if err := s.writeIdentity(identity); err != nil {
		return time.Time{}, err
	}

	s.log.Debug("replaced key set", slog.String("id", id))
	return identity.ModifiedAt, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.identityPath(id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return interfaces.ErrIdentityNotFound
	}

	// Documents go first so a crash cannot leave orphaned dependents behind
	// a still-resolvable identity.
	if err := os.RemoveAll(s.documentDir(id)); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.log.Debug("deleted identity and documents", slog.String("id", id))
	return nil
}

func (s *FileStore) PutDocument(ctx context.Context, doc *interfaces.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.identityPath(doc.Owner)); os.IsNotExist(err) {
		return interfaces.ErrIdentityNotFound
	}

	dir := s.documentDir(doc.Owner)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.ID.String()+".json"), data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) ListDocuments(ctx context.Context, owner string) ([]interfaces.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := os.Stat(s.identityPath(owner)); os.IsNotExist(err) {
		return nil, interfaces.ErrIdentityNotFound
	}

	entries, err := os.ReadDir(s.documentDir(owner))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	docs := make([]interfaces.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.documentDir(owner), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
		}
		var doc interfaces.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", entry.Name(), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Close() error { return nil }

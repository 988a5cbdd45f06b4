package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

// VaultStore implements an identity store on HashiCorp Vault's KV v2
// secrets engine. ReplaceKeySet is backed by KV v2 check-and-set, so
// conflicting passphrase changes are detected server-side even across
// multiple service instances.
type VaultStore struct {
	client    *vaultapi.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultStore creates a Vault-backed identity store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "identities")
//   - token: Vault token; empty falls back to the VAULT_TOKEN environment
//   - log: structured logger
func NewVaultStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultStore, error) {
	config := vaultapi.DefaultConfig()
	config.Address = address

	client, err := vaultapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:    client,
		mountPath: mountPath,
		dataPath:  dataPath,
		log:       log,
	}, nil
}

func (s *VaultStore) identityPath(id string) string {
	return fmt.Sprintf("%s/identities/%s", s.dataPath, id)
}

func (s *VaultStore) documentPath(owner, docID string) string {
	return fmt.Sprintf("%s/documents/%s/%s", s.dataPath, owner, docID)
}

func (s *VaultStore) dataAPIPath(p string) string {
	return fmt.Sprintf("%s/data/%s", s.mountPath, p)
}

func (s *VaultStore) metadataAPIPath(p string) string {
	return fmt.Sprintf("%s/metadata/%s", s.mountPath, p)
}

// readRecord returns the JSON record stored at p plus its KV v2 version.
func (s *VaultStore) readRecord(ctx context.Context, p string) ([]byte, int, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.dataAPIPath(p))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, 0, interfaces.ErrIdentityNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		// Deleted versions leave metadata behind with a nil data payload.
		return nil, 0, interfaces.ErrIdentityNotFound
	}
	record, ok := data["record"].(string)
	if !ok {
		return nil, 0, fmt.Errorf("invalid record format at %s", p)
	}

	version := 0
	if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
		if v, ok := metadata["version"].(json.Number); ok {
			if parsed, err := v.Int64(); err == nil {
				version = int(parsed)
			}
		}
	}

	return []byte(record), version, nil
}

// writeRecord stores a JSON record at p. A non-negative casVersion enables
// KV v2 check-and-set: the write succeeds only if the current version still
// equals casVersion.
func (s *VaultStore) writeRecord(ctx context.Context, p string, record []byte, casVersion int) error {
	body := map[string]interface{}{
		"data": map[string]interface{}{"record": string(record)},
	}
	if casVersion >= 0 {
		body["options"] = map[string]interface{}{"cas": casVersion}
	}

	_, err := s.client.Logical().WriteWithContext(ctx, s.dataAPIPath(p), body)
	if err != nil {
		if strings.Contains(err.Error(), "check-and-set") {
			return interfaces.ErrStaleIdentity
		}
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *VaultStore) deleteRecord(ctx context.Context, p string) error {
	_, err := s.client.Logical().DeleteWithContext(ctx, s.metadataAPIPath(p))
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *VaultStore) readIdentity(ctx context.Context, id string) (*interfaces.Identity, int, error) {
	record, version, err := s.readRecord(ctx, s.identityPath(id))
	if err != nil {
		return nil, 0, err
	}
	var identity interfaces.Identity
	if err := json.Unmarshal(record, &identity); err != nil {
		return nil, 0, fmt.Errorf("corrupt identity record %s: %w", id, err)
	}
	return &identity, version, nil
}

func (s *VaultStore) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	identity, _, err := s.readIdentity(ctx, id)
	return identity, err
}

func (s *VaultStore) Create(ctx context.Context, identity *interfaces.Identity) error {
	record, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity record: %w", err)
	}

	// cas=0 means "only if the secret does not exist yet".
	err = s.writeRecord(ctx, s.identityPath(identity.ID), record, 0)
	if errors.Is(err, interfaces.ErrStaleIdentity) {
		return interfaces.ErrIdentityExists
	}
	return err
}

func (s *VaultStore) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error) {
	identity, version, err := s.readIdentity(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !identity.ModifiedAt.Equal(expectedModifiedAt) {
		return time.Time{}, interfaces.ErrStaleIdentity
	}

	identity.KeySet = ks
	identity.ModifiedAt = nextModification(identity.ModifiedAt)

	record, err := json.Marshal(identity)
	if err != nil {
		return time.Time{}, fmt.Errorf("encoding identity record: %w", err)
	}
	if err := s.writeRecord(ctx, s.identityPath(id), record, version); err != nil {
		return time.Time{}, err
	}

	s.log.Debug("replaced key set", slog.String("id", id))
	return identity.ModifiedAt, nil
}

func (s *VaultStore) Delete(ctx context.Context, id string) error {
	if _, _, err := s.readIdentity(ctx, id); err != nil {
		return err
	}

	// Documents first, identity last.
	docIDs, err := s.listDocumentIDs(ctx, id)
	if err != nil {
		return err
	}
	for _, docID := range docIDs {
		if err := s.deleteRecord(ctx, s.documentPath(id, docID)); err != nil {
			return err
		}
	}
	if err := s.deleteRecord(ctx, s.identityPath(id)); err != nil {
		return err
	}

	s.log.Debug("deleted identity and documents", slog.String("id", id), slog.Int("documents", len(docIDs)))
	return nil
}

func (s *VaultStore) listDocumentIDs(ctx context.Context, owner string) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, s.metadataAPIPath(fmt.Sprintf("%s/documents/%s", s.dataPath, owner)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	ids := make([]string, 0, len(raw))
	for _, k := range raw {
		if id, ok := k.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *VaultStore) PutDocument(ctx context.Context, doc *interfaces.Document) error {
	if _, _, err := s.readIdentity(ctx, doc.Owner); err != nil {
		return err
	}
	record, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return s.writeRecord(ctx, s.documentPath(doc.Owner, doc.ID.String()), record, -1)
}

func (s *VaultStore) ListDocuments(ctx context.Context, owner string) ([]interfaces.Document, error) {
	if _, _, err := s.readIdentity(ctx, owner); err != nil {
		return nil, err
	}

	docIDs, err := s.listDocumentIDs(ctx, owner)
	if err != nil {
		return nil, err
	}

	docs := make([]interfaces.Document, 0, len(docIDs))
	for _, docID := range docIDs {
		record, _, err := s.readRecord(ctx, s.documentPath(owner, docID))
		if err != nil {
			return nil, err
		}
		var doc interfaces.Document
		if err := json.Unmarshal(record, &doc); err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", docID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *VaultStore) Name() string { return "vault" }

func (s *VaultStore) Close() error { return nil }

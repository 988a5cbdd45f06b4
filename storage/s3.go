package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/keybound/identity-vault-backend/interfaces"
	"github.com/keybound/identity-vault-backend/keyset"
)

// S3Store implements an identity store on Amazon S3 or compatible services.
//
// S3 offers no native compare-and-swap through this SDK, so ReplaceKeySet
// performs a read-check-write sequence. That detects stale updates between
// cooperating requests of a single writer but cannot serialize independent
// writers; deployments needing that must front the bucket with a
// serializing layer or use the badger or vault backends.
type S3Store struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

// NewS3Store creates an S3-backed identity store. accessKey and secretKey
// may be empty, in which case the SDK's default credential chain is used.
func NewS3Store(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Store, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     prefix,
		log:        log,
	}, nil
}

func (s *S3Store) identityKey(id string) string {
	return path.Join(s.prefix, "identities", url.PathEscape(id)+".json")
}

func (s *S3Store) documentKeyPrefix(owner string) string {
	return path.Join(s.prefix, "documents", url.PathEscape(owner)) + "/"
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, interfaces.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return data, nil
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) readIdentity(ctx context.Context, id string) (*interfaces.Identity, error) {
	data, err := s.getObject(ctx, s.identityKey(id))
	if err != nil {
		return nil, err
	}
	var identity interfaces.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("corrupt identity record %s: %w", id, err)
	}
	return &identity, nil
}

func (s *S3Store) writeIdentity(ctx context.Context, identity *interfaces.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encoding identity record: %w", err)
	}
	return s.putObject(ctx, s.identityKey(identity.ID), data)
}

func (s *S3Store) FindByID(ctx context.Context, id string) (*interfaces.Identity, error) {
	return s.readIdentity(ctx, id)
}

func (s *S3Store) Create(ctx context.Context, identity *interfaces.Identity) error {
	_, err := s.readIdentity(ctx, identity.ID)
	if err == nil {
		return interfaces.ErrIdentityExists
	}
	if !errors.Is(err, interfaces.ErrIdentityNotFound) {
		return err
	}
	return s.writeIdentity(ctx, identity)
}

func (s *S3Store) ReplaceKeySet(ctx context.Context, id string, ks keyset.KeySet, expectedModifiedAt time.Time) (time.Time, error) {
	identity, err := s.readIdentity(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if !identity.ModifiedAt.Equal(expectedModifiedAt) {
		return time.Time{}, interfaces.ErrStaleIdentity
	}

	identity.KeySet = ks
	identity.ModifiedAt = nextModification(identity.ModifiedAt)
	if err := s.writeIdentity(ctx, identity); err != nil {
		return time.Time{}, err
	}

	s.log.Debug("replaced key set", slog.String("id", id), slog.String("bucket", s.bucketName))
	return identity.ModifiedAt, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.readIdentity(ctx, id); err != nil {
		return err
	}

	// Documents first, identity last, so a failure mid-cascade cannot leave
	// orphaned documents behind a still-resolvable identity.
	keys, err := s.listDocumentKeys(ctx, id)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
		}
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.identityKey(id)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	s.log.Debug("deleted identity and documents", slog.String("id", id), slog.Int("documents", len(keys)))
	return nil
}

func (s *S3Store) listDocumentKeys(ctx context.Context, owner string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(s.documentKeyPrefix(owner)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return keys, nil
}

func (s *S3Store) PutDocument(ctx context.Context, doc *interfaces.Document) error {
	if _, err := s.readIdentity(ctx, doc.Owner); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return s.putObject(ctx, path.Join(s.documentKeyPrefix(doc.Owner), doc.ID.String()+".json"), data)
}

func (s *S3Store) ListDocuments(ctx context.Context, owner string) ([]interfaces.Document, error) {
	if _, err := s.readIdentity(ctx, owner); err != nil {
		return nil, err
	}

	keys, err := s.listDocumentKeys(ctx, owner)
	if err != nil {
		return nil, err
	}

	docs := make([]interfaces.Document, 0, len(keys))
	for _, key := range keys {
		data, err := s.getObject(ctx, key)
		if err != nil {
			return nil, err
		}
		var doc interfaces.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", key, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) Close() error { return nil }

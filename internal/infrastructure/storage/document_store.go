// Package storage implements the attachment store on S3-compatible object
// storage (MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"

	"github.com/alem-hub/palms-core/internal/domain/document"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/circuitbreaker"
	"github.com/alem-hub/palms-core/pkg/logger"
)

// Visibility is stored as an object tag; the download gateway serves only
// objects tagged public=true to users other than the owner.
const (
	TagPublic = "public"
)

// Config configures the MinIO client.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// objectAPI is the part of *minio.Client the store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObjectTagging(ctx context.Context, bucket, object string, otags *tags.Tags, opts minio.PutObjectTaggingOptions) error
}

// DocumentStore implements document.Store.
type DocumentStore struct {
	client  objectAPI
	bucket  string
	region  string
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

var _ document.Store = (*DocumentStore)(nil)

// NewDocumentStore creates the MinIO client. The bucket is created lazily
// so a storage outage does not block startup.
func NewDocumentStore(cfg Config, log *logger.Logger) (*DocumentStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newDocumentStore(client, cfg.Bucket, cfg.Region, log), nil
}

func newDocumentStore(client objectAPI, bucket, region string, log *logger.Logger) *DocumentStore {
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("document_store"), logger.String("bucket", bucket))

	return &DocumentStore{
		client: client,
		bucket: bucket,
		region: region,
		breaker: circuitbreaker.StorageBreaker(circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		})),
		log: log,
	}
}

// SetPublic tags the object public=true or public=false.
func (s *DocumentStore) SetPublic(ctx context.Context, key string, public bool) error {
	var missing bool

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := s.ensureBucket(ctx); err != nil {
			return err
		}

		if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
			if isNoSuchKey(err) {
				missing = true
				return nil
			}
			return fmt.Errorf("stat %s: %w", key, err)
		}

		t, err := tags.NewTags(map[string]string{TagPublic: fmt.Sprint(public)}, true)
		if err != nil {
			return err
		}
		return s.client.PutObjectTagging(ctx, s.bucket, key, t, minio.PutObjectTaggingOptions{})
	})
	if err != nil {
		s.log.Error("failed to set visibility", logger.String("key", key), logger.Err(err))
		return shared.WrapError("document", "SetPublic", shared.ErrExternalService, "", err)
	}
	if missing {
		return shared.NotFound("document", "SetPublic", key)
	}

	s.log.Debug("visibility changed", logger.String("key", key), logger.Bool("public", public))
	return nil
}

// Exists reports whether the object is stored.
func (s *DocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	var found bool

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := s.ensureBucket(ctx); err != nil {
			return err
		}
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		switch {
		case err == nil:
			found = true
			return nil
		case isNoSuchKey(err):
			return nil
		default:
			return fmt.Errorf("stat %s: %w", key, err)
		}
	})
	if err != nil {
		return false, shared.WrapError("document", "Exists", shared.ErrExternalService, "", err)
	}
	return found, nil
}

func (s *DocumentStore) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		s.log.Info("created bucket")
	}

	s.bucketEnsured = true
	return nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.Code == "NoSuchKey"
}

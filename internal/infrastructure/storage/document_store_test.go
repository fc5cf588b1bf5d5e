package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/pkg/logger"
)

type fakeObjects struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string]map[string]string
	statErr  error
	makeCall int
}

func newFakeObjects(keys ...string) *fakeObjects {
	f := &fakeObjects{buckets: map[string]bool{}, objects: map[string]map[string]string{}}
	for _, k := range keys {
		f.objects[k] = map[string]string{}
	}
	return f
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makeCall++
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if _, ok := f.objects[object]; !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Key: object}
	}
	return minio.ObjectInfo{Key: object}, nil
}

func (f *fakeObjects) PutObjectTagging(_ context.Context, _, object string, otags *tags.Tags, _ minio.PutObjectTaggingOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[object] = otags.ToMap()
	return nil
}

func TestDocumentStore_SetPublic(t *testing.T) {
	ctx := context.Background()
	objs := newFakeObjects("reports/r1.pdf")
	s := newDocumentStore(objs, "attachments", "", logger.Nop())

	require.NoError(t, s.SetPublic(ctx, "reports/r1.pdf", true))
	assert.Equal(t, "true", objs.objects["reports/r1.pdf"][TagPublic])

	require.NoError(t, s.SetPublic(ctx, "reports/r1.pdf", false))
	assert.Equal(t, "false", objs.objects["reports/r1.pdf"][TagPublic])

	// бакет создаётся один раз
	assert.Equal(t, 1, objs.makeCall)
}

func TestDocumentStore_SetPublicMissing(t *testing.T) {
	s := newDocumentStore(newFakeObjects(), "attachments", "", logger.Nop())

	err := s.SetPublic(context.Background(), "nope.pdf", true)
	assert.True(t, shared.IsNotFound(err))
}

func TestDocumentStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := newDocumentStore(newFakeObjects("a.pdf"), "attachments", "", logger.Nop())

	ok, err := s.Exists(ctx, "a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, "b.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentStore_StorageFailure(t *testing.T) {
	objs := newFakeObjects("a.pdf")
	objs.statErr = errors.New("connection refused")
	s := newDocumentStore(objs, "attachments", "", logger.Nop())

	_, err := s.Exists(context.Background(), "a.pdf")
	assert.True(t, shared.IsExternalService(err))
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket implementing API.
type fakeS3 struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	failHeads error
	lastKey   string
}

func newFakeS3(bucket string, objects map[string]string) *fakeS3 {
	f := &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
	for k, v := range objects {
		f.objects[k] = []byte(v)
	}
	return f
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = aws.ToString(in.Key)

	if f.failHeads != nil {
		return nil, f.failHeads
	}
	data, ok := f.objects[f.lastKey]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = aws.ToString(in.Key)

	data, ok := f.objects[f.lastKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

type recordingMetrics struct {
	mu    sync.Mutex
	ops   []string
	bytes int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *recordingMetrics) RecordBytesRead(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes += n
}

func TestNewS3ContentStore_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewS3ContentStore(ctx, S3ContentStoreConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: newFakeS3("b", nil)})
	assert.Error(t, err)

	_, err = NewS3ContentStore(ctx, S3ContentStoreConfig{Client: newFakeS3("b", nil), Bucket: "other"})
	assert.Error(t, err, "bucket probe must fail for unknown bucket")
}

func TestStatAndOpen_WithPrefix(t *testing.T) {
	fake := newFakeS3("site", map[string]string{"www/page.html": "hello"})
	metrics := &recordingMetrics{}

	store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
		Client:    fake,
		Bucket:    "site",
		KeyPrefix: "www",
		Metrics:   metrics,
	})
	require.NoError(t, err)

	info, err := store.Stat(context.Background(), "page.html")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "www/page.html", fake.lastKey)

	rc, info, err := store.Open(context.Background(), "page.html")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, int64(5), metrics.bytes)
	assert.Equal(t, []string{"HeadBucket", "HeadObject", "GetObject"}, metrics.ops)
}

func TestNotFound(t *testing.T) {
	store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
		Client:          newFakeS3("site", map[string]string{"a.html": "x"}),
		Bucket:          "site",
		SkipBucketCheck: true,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Stat(ctx, "missing.html")
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	_, _, err = store.Open(ctx, "missing.html")
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	for _, key := range []string{"docs/", "../a.html", "/a.html"} {
		_, err = store.Stat(ctx, key)
		assert.ErrorIs(t, err, content.ErrContentNotFound, "key %q", key)
	}
}

func TestBackendFailureIsNotNotFound(t *testing.T) {
	fake := newFakeS3("site", nil)
	fake.failHeads = errors.New("503 slow down")

	store, err := NewS3ContentStore(context.Background(), S3ContentStoreConfig{
		Client: fake, Bucket: "site", SkipBucketCheck: true,
	})
	require.NoError(t, err)

	_, err = store.Stat(context.Background(), "a.html")
	require.Error(t, err)
	assert.False(t, content.IsNotFound(err))
}

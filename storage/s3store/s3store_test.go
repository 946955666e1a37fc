package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage/testlib"
)

// memoryBucket is an in-process stand-in for an S3 bucket.
type memoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	lists   int
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string][]byte)}
}

func (b *memoryBucket) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *memoryBucket) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *memoryBucket) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *memoryBucket) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++

	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) && key > aws.ToString(params.ContinuationToken) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	limit := int(aws.ToInt32(params.MaxKeys))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	out.KeyCount = aws.Int32(int32(len(keys)))
	return out, nil
}

func TestS3StoreWithMemoryBucket(t *testing.T) {
	bucket := newMemoryBucket()
	testlib.TestStore(t, NewS3Store(bucket, "test", WithPrefix("xmlsplit/"), WithPageSize(3)))

	if bucket.lists == 0 {
		t.Error("store never listed the bucket")
	}
	for key := range bucket.objects {
		if !strings.HasPrefix(key, "xmlsplit/chunks/") && !strings.HasPrefix(key, "xmlsplit/meta/") {
			t.Errorf("object %q is outside the configured prefix", key)
		}
	}
}

// metaRejectingBucket refuses to store chunk descriptions.
type metaRejectingBucket struct {
	*memoryBucket
}

func (b metaRejectingBucket) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if strings.Contains(aws.ToString(params.Key), "/meta/") {
		return nil, errors.New("access denied")
	}
	return b.memoryBucket.PutObject(ctx, params, optFns...)
}

func TestS3StoreAddRemovesOrphanedChunk(t *testing.T) {
	bucket := newMemoryBucket()
	store := NewS3Store(metaRejectingBucket{bucket}, "test", WithPrefix("xmlsplit/"))

	_, err := store.Add(t.Context(), []byte("<root/>"), splitter.ChunkMeta{Start: 0, End: 7}, "/layer", "correlation")
	if err == nil {
		t.Fatal("expected Add to fail when the description cannot be written")
	}
	if len(bucket.objects) != 0 {
		t.Errorf("expected no objects left behind, got %d", len(bucket.objects))
	}
}

func TestS3Store(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_S3_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_S3_BUCKET is not configured")
	}

	cfg, err := config.LoadDefaultConfig(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	prefix := "test-" + testlib.RandString(16) + "/"
	store := NewS3Store(client, bucket, WithPrefix(prefix))
	t.Cleanup(func() {
		store.Delete(context.Background(), "", "/")
	})

	testlib.TestStore(t, store)
}

// Package s3store stores chunks as objects in an S3 bucket.
//
// Every chunk is written as two objects: the chunk document under
// "<prefix>chunks/<path>" and a JSON description (storage.Item) under
// "<prefix>meta/<path>". Listings run over the meta objects, so a chunk
// becomes visible only once both objects exist.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/opengs/xmlsplit/query"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage"
)

const (
	chunksDir = "chunks"
	metaDir   = "meta"
)

// Client is the subset of *s3.Client used by the store.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

type S3Store struct {
	client   Client
	bucket   string
	prefix   string
	pageSize int32
}

var _ storage.Store = (*S3Store)(nil)

func NewS3Store(client Client, bucket string, options ...S3Option) *S3Store {
	store := &S3Store{
		client:   client,
		bucket:   bucket,
		pageSize: 1000,
	}

	for _, option := range options {
		option(store)
	}

	return store
}

func (s *S3Store) key(dir string, path string) string {
	return s.prefix + dir + "/" + strings.TrimPrefix(path, "/")
}

func (s *S3Store) Add(ctx context.Context, chunk []byte, meta splitter.ChunkMeta, layer string, correlationID string) (string, error) {
	layer = storage.NormalizeLayer(layer)
	path := storage.NewChunkPath(layer, correlationID)

	item, err := json.Marshal(storage.Item{
		Path:          path,
		Layer:         layer,
		CorrelationID: correlationID,
		Meta:          meta,
		ImportedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", errors.Join(errors.New("failed to encode chunk description"), err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(chunksDir, path)),
		Body:        bytes.NewReader(chunk),
		ContentType: aws.String("application/xml"),
		Metadata: map[string]string{
			"correlation-id": correlationID,
		},
	}); err != nil {
		return "", errors.Join(errors.New("failed to put chunk object"), err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(metaDir, path)),
		Body:        bytes.NewReader(item),
		ContentType: aws.String("application/json"),
	}); err != nil {
		// without its description the chunk object would never be listed
		if _, deleteErr := s.client.DeleteObject(context.WithoutCancel(ctx), &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(chunksDir, path)),
		}); deleteErr != nil {
			err = errors.Join(err, errors.New("failed to remove orphaned chunk object"), deleteErr)
		}
		return "", errors.Join(errors.New("failed to put chunk description object"), err)
	}

	return path, nil
}

func (s *S3Store) GetOne(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.getObject(ctx, s.key(chunksDir, path))
}

func (s *S3Store) getObject(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, storage.ErrChunkNotFound
		}
		return nil, errors.Join(errors.New("failed to get object from S3"), err)
	}
	return resp.Body, nil
}

func (s *S3Store) readObject(ctx context.Context, key string) ([]byte, error) {
	body, err := s.getObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Join(errors.New("failed to read object from S3"), err)
	}
	return data, nil
}

func (s *S3Store) Get(ctx context.Context, search string, layer string) (storage.Cursor, error) {
	matcher, err := query.Compile(search)
	if err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.key(metaDir, storage.NormalizeLayer(layer))),
		MaxKeys: aws.Int32(s.pageSize),
	})

	return &objectCursor{store: s, paginator: paginator, matcher: matcher}, nil
}

func (s *S3Store) Delete(ctx context.Context, search string, layer string) (int, error) {
	cursor, err := s.Get(ctx, search, layer)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	// listing pages are fetched lazily, so collect first and delete after
	var paths []string
	for cursor.Next(ctx) {
		paths = append(paths, cursor.Current().Path)
	}
	if err := cursor.Err(); err != nil {
		return 0, err
	}

	for i, path := range paths {
		for _, dir := range []string{metaDir, chunksDir} {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.key(dir, path)),
			}); err != nil {
				return i, errors.Join(errors.New("failed to delete object from S3"), err)
			}
		}
	}

	return len(paths), nil
}

type objectCursor struct {
	store     *S3Store
	paginator *s3.ListObjectsV2Paginator
	matcher   *query.Matcher

	keys    []string
	current storage.Item
	err     error
	closed  bool
}

func (c *objectCursor) Next(ctx context.Context) bool {
	for c.err == nil && !c.closed {
		if len(c.keys) == 0 {
			if !c.paginator.HasMorePages() {
				return false
			}
			page, err := c.paginator.NextPage(ctx)
			if err != nil {
				c.err = errors.Join(errors.New("failed to list objects in S3"), err)
				return false
			}
			for _, object := range page.Contents {
				c.keys = append(c.keys, aws.ToString(object.Key))
			}
			continue
		}

		key := c.keys[0]
		c.keys = c.keys[1:]

		item, ok, err := c.load(ctx, key)
		if err != nil {
			c.err = err
			return false
		}
		if ok {
			c.current = item
			return true
		}
	}
	return false
}

func (c *objectCursor) load(ctx context.Context, key string) (storage.Item, bool, error) {
	var item storage.Item

	data, err := c.store.readObject(ctx, key)
	if errors.Is(err, storage.ErrChunkNotFound) {
		// deleted after the listing was taken
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, false, errors.Join(errors.New("failed to decode chunk description "+key), err)
	}

	if c.matcher.MatchAll() {
		return item, true, nil
	}

	content, err := c.store.readObject(ctx, c.store.key(chunksDir, item.Path))
	if errors.Is(err, storage.ErrChunkNotFound) {
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}

	ok, err := c.matcher.Match(content, item.Meta)
	return item, ok, err
}

func (c *objectCursor) Current() storage.Item {
	return c.current
}

func (c *objectCursor) Err() error {
	return c.err
}

func (c *objectCursor) Close() error {
	c.keys = nil
	c.closed = true
	return nil
}

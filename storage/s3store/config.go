package s3store

type S3Option func(s *S3Store)

// WithPrefix stores all objects below prefix inside the bucket.
func WithPrefix(prefix string) S3Option {
	return func(s *S3Store) {
		s.prefix = prefix
	}
}

// WithPageSize limits the number of keys requested per listing call.
func WithPageSize(size int32) S3Option {
	return func(s *S3Store) {
		s.pageSize = size
	}
}

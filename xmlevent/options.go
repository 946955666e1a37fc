package xmlevent

type Option func(r *Reader)

// WithBufferSize sets the size of the read buffer placed in front of the
// source reader.
func WithBufferSize(size int) Option {
	return func(r *Reader) {
		r.bufferSize = size
	}
}

// WithEntities registers additional named entities, for example the HTML
// entity set from encoding/xml.
func WithEntities(entities map[string]string) Option {
	return func(r *Reader) {
		r.entities = entities
	}
}

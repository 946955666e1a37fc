// Package client talks to the store endpoint served by package server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opengs/xmlsplit/server"
	"github.com/opengs/xmlsplit/storage"
)

const defaultBlockSize = 32 * 1024

// Error is a non-successful answer of the store.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("store answered %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("store answered %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type ClientOption func(c *Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBlockSize sets the maximum size of the blocks returned by ExportStream.
func WithBlockSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.blockSize = size
		}
	}
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	blockSize  int
}

func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Join(errors.New("invalid store URL"), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid store URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		blockSize:  defaultBlockSize,
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

func (c *Client) endpoint(layer string, search string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/store" + storage.NormalizeLayer(layer)
	u.RawQuery = ""
	if search != "" {
		u.RawQuery = url.Values{"search": []string{search}}.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method string, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create request"), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/xml")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(errors.New("failed to reach store"), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	e := &Error{StatusCode: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body server.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		e.Code = body.Code
		e.Message = body.Message
		return e
	}

	e.Message = http.StatusText(resp.StatusCode)
	if e.Message == "" {
		e.Message = resp.Status
	}
	return e
}

// Export requests the merged document of all chunks in layer that match
// search. An empty layer means the root layer.
func (c *Client) Export(ctx context.Context, search string, layer string) (*ExportStream, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(layer, search), nil)
	if err != nil {
		return nil, err
	}
	// any other success status carries no document
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return &ExportStream{
		body:  resp.Body,
		block: make([]byte, c.blockSize),
	}, nil
}

// Import uploads one document into layer. name is reported to the store for
// logging only.
func (c *Client) Import(ctx context.Context, document io.Reader, name string, layer string) (server.ImportResponse, error) {
	var result server.ImportResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(layer, ""), document)
	if err != nil {
		return result, errors.Join(errors.New("failed to create request"), err)
	}
	req.Header.Set("Content-Type", "application/xml")
	if name != "" {
		req.Header.Set("X-Filename", name)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, errors.Join(errors.New("failed to reach store"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, errors.Join(errors.New("failed to decode import response"), err)
	}
	return result, nil
}

func (c *Client) Delete(ctx context.Context, search string, layer string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.endpoint(layer, search), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// ExportStream yields the response body block by block. It can be consumed
// only once.
type ExportStream struct {
	body   io.ReadCloser
	block  []byte
	n      int
	err    error
	closed bool
}

// Next reads the next block. It returns false at the end of the body or on the
// first error, after which the connection is already released.
func (s *ExportStream) Next() bool {
	if s.closed {
		return false
	}

	n, err := s.body.Read(s.block)
	for n == 0 && err == nil {
		n, err = s.body.Read(s.block)
	}
	s.n = n
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = errors.Join(errors.New("failed to read export"), err)
		}
		s.Close()
		// a final block delivered together with the error is still valid
		return n > 0
	}
	return true
}

// Bytes returns the current block. It is only valid until the next call to
// Next.
func (s *ExportStream) Bytes() []byte {
	return s.block[:s.n]
}

func (s *ExportStream) Err() error {
	return s.err
}

func (s *ExportStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// WriteTo copies the remaining blocks to w.
func (s *ExportStream) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for s.Next() {
		n, err := w.Write(s.Bytes())
		written += int64(n)
		if err != nil {
			s.Close()
			return written, err
		}
	}
	return written, s.Err()
}

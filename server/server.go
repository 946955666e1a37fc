// Package server exposes a chunk store over HTTP.
//
//	GET    /store/<layer>?search=  merged document of the selected chunks
//	POST   /store/<layer>          import the request body into the layer
//	DELETE /store/<layer>?search=  delete the selected chunks
//
// Failures are answered with a JSON body {"code": ..., "message": ...}.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opengs/xmlsplit"
	"github.com/opengs/xmlsplit/merge"
	"github.com/opengs/xmlsplit/query"
	"github.com/opengs/xmlsplit/splitter"
	"github.com/opengs/xmlsplit/storage"
)

const (
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeIncompatibleChunk = "incompatible_chunks"
	CodeGenericError      = "generic_error"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ImportResponse struct {
	CorrelationID string `json:"correlationId"`
	Chunks        int    `json:"chunks"`
}

type Importer interface {
	Import(ctx context.Context, document io.Reader, path string, layer string) (xmlsplit.ImportResult, error)
}

type Server struct {
	store    storage.Store
	importer Importer
	logger   *slog.Logger
	engine   *gin.Engine
}

func New(store storage.Store, importer Importer, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:    store,
		importer: importer,
		logger:   logger,
		engine:   gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.logRequests)
	for _, route := range []string{"/store", "/store/*path"} {
		s.engine.GET(route, s.export)
		s.engine.POST(route, s.importDocument)
		s.engine.DELETE(route, s.delete)
	}
	s.engine.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, CodeNotFound, errors.New("unknown endpoint "+c.Request.URL.Path))
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is canceled, then gives running requests
// shutdownTimeout to finish.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-serveErr:
		return errors.Join(errors.New("failed to run HTTP server"), err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Join(errors.New("failed to shut down HTTP server"), err)
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

// EndpointPath turns the wildcard part of a store URL into an absolute store
// path. It never returns an empty string.
func EndpointPath(param string) string {
	if param == "" {
		return "/"
	}
	if param[0] != '/' {
		return "/" + param
	}
	return param
}

func fail(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}

func (s *Server) export(c *gin.Context) {
	ctx := c.Request.Context()
	layer := EndpointPath(c.Param("path"))

	cursor, err := s.store.Get(ctx, c.Query("search"), layer)
	if err != nil {
		s.failStore(c, err)
		return
	}

	strategy := merge.NewMergeNamespaces()
	var items []storage.Item
	for cursor.Next(ctx) {
		item := cursor.Current()
		if err := strategy.Init(item.Meta); err != nil {
			cursor.Close()
			fail(c, http.StatusConflict, CodeIncompatibleChunk, err)
			return
		}
		items = append(items, item)
	}
	cursor.Close()
	if err := cursor.Err(); err != nil {
		s.failStore(c, err)
		return
	}

	if len(items) == 0 {
		fail(c, http.StatusNotFound, CodeNotFound, errors.New("no chunks found in "+layer))
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Status(http.StatusOK)
	for _, item := range items {
		if err := s.mergeChunk(ctx, strategy, item, c.Writer); err != nil {
			s.logger.Error("export aborted", "layer", layer, "path", item.Path, "error", err)
			s.abortStream(c)
			return
		}
	}
	if err := strategy.Finish(c.Writer); err != nil {
		s.logger.Error("export aborted", "layer", layer, "error", err)
		s.abortStream(c)
	}
}

// abortStream cuts the connection of a response whose status line is already
// sent. The body then ends without its terminating chunk, which the client
// reads as an unexpected EOF instead of a complete document.
func (s *Server) abortStream(c *gin.Context) {
	c.Abort()
	c.Writer.Flush()

	conn, _, err := c.Writer.Hijack()
	if err != nil {
		s.logger.Error("failed to close export connection", "error", err)
		return
	}
	conn.Close()
}

func (s *Server) mergeChunk(ctx context.Context, strategy merge.Strategy, item storage.Item, w io.Writer) error {
	chunk, err := s.store.GetOne(ctx, item.Path)
	if err != nil {
		return err
	}
	defer chunk.Close()

	return strategy.Merge(chunk, item.Meta, w)
}

func (s *Server) importDocument(c *gin.Context) {
	layer := EndpointPath(c.Param("path"))
	name := c.GetHeader("X-Filename")
	if name == "" {
		name = "request"
	}

	result, err := s.importer.Import(c.Request.Context(), c.Request.Body, name, layer)
	if err != nil {
		var mimeErr *xmlsplit.ErrMimeTypeNotSupported
		switch {
		case errors.As(err, &mimeErr):
			fail(c, http.StatusUnsupportedMediaType, CodeInvalidInput, err)
		case splitter.IsMalformedInput(err):
			fail(c, http.StatusBadRequest, CodeInvalidInput, err)
		default:
			s.logger.Error("import failed", "layer", layer, "chunks", result.Chunks, "error", err)
			fail(c, http.StatusInternalServerError, CodeGenericError, err)
		}
		return
	}

	c.JSON(http.StatusAccepted, ImportResponse{
		CorrelationID: result.CorrelationID,
		Chunks:        result.Chunks,
	})
}

func (s *Server) delete(c *gin.Context) {
	layer := EndpointPath(c.Param("path"))

	deleted, err := s.store.Delete(c.Request.Context(), c.Query("search"), layer)
	if err != nil {
		s.failStore(c, err)
		return
	}

	s.logger.Info("chunks deleted", "layer", layer, "chunks", deleted)
	c.Status(http.StatusNoContent)
}

func (s *Server) failStore(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		fail(c, http.StatusBadRequest, CodeInvalidInput, err)
	case errors.Is(err, storage.ErrChunkNotFound):
		fail(c, http.StatusNotFound, CodeNotFound, err)
	default:
		s.logger.Error("store request failed", "error", err)
		fail(c, http.StatusInternalServerError, CodeGenericError, err)
	}
}

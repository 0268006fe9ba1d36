// Package server exposes the ingestion pipeline over HTTP: a synchronous
// ingest endpoint, digest downloads, health, and Prometheus metrics.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/ingest/internal/ingest"
	"github.com/temirov/ingest/internal/metrics"
)

const (
	defaultListenAddress    = "127.0.0.1:8000"
	defaultShutdownDuration = 5 * time.Second
	defaultIngestsPerMinute = 10

	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerRetryAfter         = "Retry-After"
	mimeTypeJSON             = "application/json"
	mimeTypeText             = "text/plain; charset=utf-8"

	healthRoutePattern   = "GET /healthz"
	metricsRoutePattern  = "GET /metrics"
	ingestRoutePattern   = "POST /api/ingest"
	downloadRoutePattern = "GET /api/download/{id}"

	requestLogMessage = "request"
)

// Config defines runtime options for the HTTP service.
type Config struct {
	Address          string
	ShutdownTimeout  time.Duration
	IngestsPerMinute int
	Logger           *zap.Logger
}

// Server serves digests over HTTP.
type Server struct {
	config      Config
	runner      *ingest.Runner
	rateLimiter *rateLimiter
	logger      *zap.Logger
}

// NewServer creates a new Server with defaults applied.
func NewServer(runner *ingest.Runner, config Config) *Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.IngestsPerMinute == 0 {
		normalized.IngestsPerMinute = defaultIngestsPerMinute
	}
	logger := normalized.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:      normalized,
		runner:      runner,
		rateLimiter: newRateLimiter(normalized.IngestsPerMinute),
		logger:      logger,
	}
}

// Run starts the HTTP service and blocks until the provided context is
// canceled. The notify callback receives the bound address once the listener
// is active. A background sweep evicts stored digests past their retention.
func (server *Server) Run(executionContext context.Context, notify func(string)) error {
	listener, listenError := net.Listen("tcp", server.config.Address)
	if listenError != nil {
		return fmt.Errorf("listen on %s: %w", server.config.Address, listenError)
	}
	actualAddress := listener.Addr().String()

	httpServer := &http.Server{Handler: server.Handler()}
	group, groupContext := errgroup.WithContext(executionContext)

	group.Go(func() error {
		serveError := httpServer.Serve(listener)
		if serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return fmt.Errorf("serve ingest API: %w", serveError)
		}
		return nil
	})

	group.Go(func() error {
		server.evictionLoop(groupContext)
		return nil
	})

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupContext.Done()
		shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancelShutdown()
		shutdownError := httpServer.Shutdown(shutdownContext)
		if shutdownError != nil && !errors.Is(shutdownError, context.Canceled) && !errors.Is(shutdownError, http.ErrServerClosed) {
			return fmt.Errorf("shutdown ingest API: %w", shutdownError)
		}
		return nil
	})

	return group.Wait()
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (server *Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc(healthRoutePattern, server.handleHealth)
	router.Handle(metricsRoutePattern, metrics.Handler())
	router.HandleFunc(ingestRoutePattern, server.handleIngest)
	router.HandleFunc(downloadRoutePattern, server.handleDownload)
	return metrics.Middleware(server.loggingMiddleware(router))
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (recorder *statusRecorder) WriteHeader(statusCode int) {
	recorder.statusCode = statusCode
	recorder.ResponseWriter.WriteHeader(statusCode)
}

func (recorder *statusRecorder) Unwrap() http.ResponseWriter {
	return recorder.ResponseWriter
}

func (server *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		startTime := time.Now()
		recorder := &statusRecorder{ResponseWriter: writer, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, request)
		server.logger.Info(requestLogMessage,
			zap.String("method", request.Method),
			zap.String("path", request.URL.Path),
			zap.Int("status", recorder.statusCode),
			zap.Duration("duration", time.Since(startTime)),
		)
	})
}

func (server *Server) writeJSON(writer http.ResponseWriter, statusCode int, payload any) {
	var buffer bytes.Buffer
	if encodeError := json.NewEncoder(&buffer).Encode(payload); encodeError != nil {
		fallback := errorResponse{Error: fmt.Sprintf("encode response: %v", encodeError), Code: http.StatusInternalServerError}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

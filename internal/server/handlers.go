package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/gitrepo"
	"github.com/temirov/ingest/internal/ingest"
	"github.com/temirov/ingest/internal/locate"
	"github.com/temirov/ingest/internal/metrics"
	"github.com/temirov/ingest/internal/patterns"
	"github.com/temirov/ingest/internal/utils"
)

const (
	downloadPathPrefix  = "/api/download/"
	digestFileExtension = ".txt"

	sourceKindRemote = "remote"

	errorInvalidRequestBody = "invalid request body"
	errorSourceRequired     = "the source field is required"
	errorRateLimited        = "rate limit exceeded"
	errorDigestNotFound     = "digest not found"
	errorDigestUnreadable   = "digest could not be read"
	errorPersistFormat      = "persist digest: %v"

	cropNoticeFormat = "(Files content cropped to %dk characters, download full ingest to see more)\n"

	attachmentDispositionFormat = "attachment; filename=%s"

	ingestFailedLogMessage  = "ingestion failed"
	persistFailedLogMessage = "digest persistence failed"
)

type ingestRequest struct {
	Source          string   `json:"source"`
	MaxFileSize     int64    `json:"max_file_size"`
	Branch          string   `json:"branch"`
	IncludePatterns []string `json:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns"`
}

type ingestResponse struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Tree        string `json:"tree"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (server *Server) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
}

// handleIngest runs one synchronous ingestion. Sources always resolve as
// remote here; pointing the service at server-local paths is not supported.
func (server *Server) handleIngest(writer http.ResponseWriter, request *http.Request) {
	var ingestBody ingestRequest
	if decodeError := json.NewDecoder(request.Body).Decode(&ingestBody); decodeError != nil {
		server.writeJSON(writer, http.StatusBadRequest, errorResponse{Error: errorInvalidRequestBody, Code: http.StatusBadRequest})
		return
	}
	if strings.TrimSpace(ingestBody.Source) == "" {
		server.writeJSON(writer, http.StatusBadRequest, errorResponse{Error: errorSourceRequired, Code: http.StatusBadRequest})
		return
	}

	clientKey := clientAddress(request)
	if !server.rateLimiter.Allow(clientKey) {
		metrics.RecordRateLimitHit()
		writer.Header().Set(headerRetryAfter, strconv.Itoa(server.rateLimiter.RetryAfter(clientKey)))
		server.writeJSON(writer, http.StatusTooManyRequests, errorResponse{Error: errorRateLimited, Code: http.StatusTooManyRequests})
		return
	}

	startTime := time.Now()
	runResult, runError := server.runner.Run(request.Context(), ingestBody.Source, ingest.Options{
		MaxFileSizeBytes:      ingestBody.MaxFileSize,
		IncludePatterns:       ingestBody.IncludePatterns,
		IgnorePatterns:        ingestBody.ExcludePatterns,
		Branch:                ingestBody.Branch,
		IsRemoteHint:          true,
		IncludeNotebookOutput: true,
		KeepClone:             true,
		Sink:                  utils.NewLoggerSink(server.logger),
	})
	if runError != nil {
		metrics.RecordIngestion(sourceKindRemote, time.Since(startTime), false)
		statusCode := statusCodeForError(runError)
		server.logger.Warn(ingestFailedLogMessage, zap.String("source", ingestBody.Source), zap.Error(runError))
		server.writeJSON(writer, statusCode, errorResponse{Error: runError.Error(), Code: statusCode})
		return
	}
	metrics.RecordIngestion(sourceKindRemote, time.Since(startTime), true)
	metrics.RecordDigestBytes(len(runResult.Content))

	if persistError := persistDigest(runResult); persistError != nil {
		server.logger.Error(persistFailedLogMessage, zap.String("id", runResult.Locator.RequestID), zap.Error(persistError))
		server.writeJSON(writer, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf(errorPersistFormat, persistError), Code: http.StatusInternalServerError})
		return
	}

	server.writeJSON(writer, http.StatusOK, ingestResponse{
		ID:          runResult.Locator.RequestID,
		Summary:     runResult.Summary,
		Tree:        runResult.Tree,
		Content:     cropContent(runResult.Content),
		DownloadURL: downloadPathPrefix + runResult.Locator.RequestID,
	})
}

// handleDownload serves the stored digest for an ingestion id as a plain
// text attachment.
func (server *Server) handleDownload(writer http.ResponseWriter, request *http.Request) {
	digestID := request.PathValue("id")
	if _, parseError := uuid.Parse(digestID); parseError != nil {
		metrics.RecordDownload(false)
		server.writeJSON(writer, http.StatusNotFound, errorResponse{Error: errorDigestNotFound, Code: http.StatusNotFound})
		return
	}

	requestDirectory := filepath.Join(config.TempBasePath(), digestID)
	directoryEntries, readError := os.ReadDir(requestDirectory)
	if readError != nil {
		metrics.RecordDownload(false)
		server.writeJSON(writer, http.StatusNotFound, errorResponse{Error: errorDigestNotFound, Code: http.StatusNotFound})
		return
	}

	var digestFileName string
	for _, directoryEntry := range directoryEntries {
		if !directoryEntry.IsDir() && strings.HasSuffix(directoryEntry.Name(), digestFileExtension) {
			digestFileName = directoryEntry.Name()
			break
		}
	}
	if digestFileName == "" {
		metrics.RecordDownload(false)
		server.writeJSON(writer, http.StatusNotFound, errorResponse{Error: errorDigestNotFound, Code: http.StatusNotFound})
		return
	}

	digestContent, fileError := os.ReadFile(filepath.Join(requestDirectory, digestFileName))
	if fileError != nil {
		metrics.RecordDownload(false)
		server.writeJSON(writer, http.StatusInternalServerError, errorResponse{Error: errorDigestUnreadable, Code: http.StatusInternalServerError})
		return
	}

	metrics.RecordDownload(true)
	writer.Header().Set(headerContentType, mimeTypeText)
	writer.Header().Set(headerContentDisposition, fmt.Sprintf(attachmentDispositionFormat, digestFileName))
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write(digestContent)
}

// persistDigest stores the tree and content under the request directory so
// the download endpoint can serve them until eviction.
func persistDigest(runResult *ingest.Result) error {
	requestDirectory := filepath.Join(config.TempBasePath(), runResult.Locator.RequestID)
	if makeDirectoryError := os.MkdirAll(requestDirectory, 0o755); makeDirectoryError != nil {
		return makeDirectoryError
	}
	digestPath := filepath.Join(requestDirectory, runResult.Locator.Slug+digestFileExtension)
	digestText := runResult.Tree + "\n" + runResult.Content
	return os.WriteFile(digestPath, []byte(digestText), 0o644)
}

func cropContent(digestContent string) string {
	if len(digestContent) <= config.DigestDisplayLimit {
		return digestContent
	}
	cropNotice := fmt.Sprintf(cropNoticeFormat, config.DigestDisplayLimit/1_000)
	return cropNotice + digestContent[:config.DigestDisplayLimit]
}

func statusCodeForError(runError error) int {
	switch {
	case errors.Is(runError, gitrepo.ErrRepositoryNotFound):
		return http.StatusNotFound
	case errors.Is(runError, gitrepo.ErrOperationTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(runError, locate.ErrInvalidRepositoryURL),
		errors.Is(runError, locate.ErrInvalidScheme),
		errors.Is(runError, locate.ErrUnknownHost),
		errors.Is(runError, locate.ErrNoHostResolved),
		errors.Is(runError, patterns.ErrInvalidPattern),
		errors.Is(runError, ingest.ErrPathNotFound),
		errors.Is(runError, ingest.ErrNotAFile),
		errors.Is(runError, ingest.ErrEmptyFile):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func clientAddress(request *http.Request) string {
	hostName, _, splitError := net.SplitHostPort(request.RemoteAddr)
	if splitError != nil {
		return request.RemoteAddr
	}
	return hostName
}

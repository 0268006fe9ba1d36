package server

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/metrics"
)

const (
	evictionLogMessage      = "evicted expired digests"
	evictionErrorLogMessage = "digest eviction sweep failed"
)

// evictionLoop periodically removes request directories older than the
// digest retention period so clones and digests do not accumulate.
func (server *Server) evictionLoop(executionContext context.Context) {
	evictionTicker := time.NewTicker(config.EvictionInterval)
	defer evictionTicker.Stop()

	for {
		select {
		case <-executionContext.Done():
			return
		case <-evictionTicker.C:
			server.evictExpired()
		}
	}
}

func (server *Server) evictExpired() {
	temporaryBase := config.TempBasePath()
	directoryEntries, readError := os.ReadDir(temporaryBase)
	if readError != nil {
		if !os.IsNotExist(readError) {
			server.logger.Warn(evictionErrorLogMessage, zap.Error(readError))
		}
		return
	}

	expirationCutoff := time.Now().Add(-config.DigestRetention)
	removedCount := 0
	for _, directoryEntry := range directoryEntries {
		entryInfo, infoError := directoryEntry.Info()
		if infoError != nil {
			continue
		}
		if entryInfo.ModTime().After(expirationCutoff) {
			continue
		}
		entryPath := filepath.Join(temporaryBase, directoryEntry.Name())
		if removeError := os.RemoveAll(entryPath); removeError != nil {
			server.logger.Warn(evictionErrorLogMessage, zap.String("path", entryPath), zap.Error(removeError))
			continue
		}
		removedCount++
	}

	if removedCount > 0 {
		metrics.RecordEvictions(removedCount)
		server.logger.Info(evictionLogMessage, zap.Int("count", removedCount))
	}

	server.rateLimiter.Cleanup(config.DigestRetention)
}

package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/temirov/ingest/internal/types"
	"github.com/temirov/ingest/internal/utils"
)

const repositoryConfigPatternsKey = "config.ignore_patterns"

// LoadRepositoryIgnorePatterns reads the repository configuration file inside
// directoryPath and returns the additional ignore patterns it declares.
// Malformed files and non-string entries are reported through the sink and
// skipped; the ingestion itself never fails because of a bad config file.
func LoadRepositoryIgnorePatterns(directoryPath string, sink types.DiagnosticSink) []string {
	configurationPath := filepath.Join(directoryPath, RepositoryConfigFileName)
	fileInformation, statError := os.Stat(configurationPath)
	if statError != nil || fileInformation.IsDir() {
		return nil
	}

	reader := viper.New()
	reader.SetConfigFile(configurationPath)
	reader.SetConfigType("toml")
	if readError := reader.ReadInConfig(); readError != nil {
		sink.Warnf("invalid TOML in %s: %v", configurationPath, readError)
		return nil
	}

	rawPatterns := reader.Get(repositoryConfigPatternsKey)
	switch typedPatterns := rawPatterns.(type) {
	case nil:
		return nil
	case string:
		if typedPatterns == "" {
			return nil
		}
		return []string{typedPatterns}
	case []any:
		var validPatterns []string
		for _, entry := range typedPatterns {
			stringEntry, isString := entry.(string)
			if !isString {
				sink.Warnf("ignore pattern %v in %s is not a string, skipping", entry, configurationPath)
				continue
			}
			validPatterns = append(validPatterns, stringEntry)
		}
		return utils.DeduplicatePatterns(validPatterns)
	case []string:
		return utils.DeduplicatePatterns(typedPatterns)
	default:
		sink.Warnf("expected a list for ignore_patterns, got %T in %s, skipping", rawPatterns, configurationPath)
		return nil
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/temirov/ingest/internal/utils"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds command-specific configuration defaults.
type ApplicationConfiguration struct {
	Ingest IngestCommandConfiguration `mapstructure:"ingest"`
	Server ServerConfiguration        `mapstructure:"server"`
}

// IngestCommandConfiguration defines defaults for the root ingest command.
type IngestCommandConfiguration struct {
	Output         string             `mapstructure:"output"`
	MaxFileSize    int64              `mapstructure:"max_size"`
	Exclude        []string           `mapstructure:"exclude"`
	Include        []string           `mapstructure:"include"`
	Clipboard      *bool              `mapstructure:"clipboard"`
	IncludeOutputs *bool              `mapstructure:"include_outputs"`
	Tokens         TokenConfiguration `mapstructure:"tokens"`
}

// TokenConfiguration controls token estimation defaults.
type TokenConfiguration struct {
	Model string `mapstructure:"model"`
}

// ServerConfiguration defines defaults for the serve command.
type ServerConfiguration struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoadApplicationConfiguration loads configuration from global and local files.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged.Ingest.Exclude = utils.DeduplicatePatterns(merged.Ingest.Exclude)
	merged.Ingest.Include = utils.DeduplicatePatterns(merged.Ingest.Include)

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Ingest = result.Ingest.merge(override.Ingest)
	result.Server = result.Server.merge(override.Server)
	return result
}

func (config IngestCommandConfiguration) merge(override IngestCommandConfiguration) IngestCommandConfiguration {
	result := config
	if override.Output != "" {
		result.Output = override.Output
	}
	if override.MaxFileSize > 0 {
		result.MaxFileSize = override.MaxFileSize
	}
	if len(override.Exclude) > 0 {
		result.Exclude = append([]string{}, utils.DeduplicatePatterns(override.Exclude)...)
	}
	if len(override.Include) > 0 {
		result.Include = append([]string{}, utils.DeduplicatePatterns(override.Include)...)
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	if override.IncludeOutputs != nil {
		result.IncludeOutputs = cloneBool(override.IncludeOutputs)
	}
	result.Tokens = result.Tokens.merge(override.Tokens)
	return result
}

func (config TokenConfiguration) merge(override TokenConfiguration) TokenConfiguration {
	result := config
	if override.Model != "" {
		result.Model = override.Model
	}
	return result
}

func (config ServerConfiguration) merge(override ServerConfiguration) ServerConfiguration {
	result := config
	if override.Host != "" {
		result.Host = override.Host
	}
	if override.Port != 0 {
		result.Port = override.Port
	}
	return result
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

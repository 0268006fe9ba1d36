package utils

// EmptyString represents a reusable empty string constant.
const EmptyString = ""

// ErrorLogFormat defines the formatting string for error log messages.
const ErrorLogFormat = "Error: %v"

// GlobalConfigDirectoryName is the directory under the user home that stores
// the global configuration file.
const GlobalConfigDirectoryName = ".ingest"

// ConfigFileName is the name of the per-directory configuration file.
const ConfigFileName = ".ingest.yaml"

// LoggerInitializationFailedMessageFormat reports a logger construction failure.
const LoggerInitializationFailedMessageFormat = "logger initialization failed: %v"

// ApplicationExecutionFailedMessage prefixes fatal command execution errors.
const ApplicationExecutionFailedMessage = "application execution failed"

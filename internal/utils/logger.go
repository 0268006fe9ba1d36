package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewApplicationLogger constructs a zap logger configured for human-readable console output.
func NewApplicationLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.DisableCaller = true
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.TimeKey = ""
	config.EncoderConfig.LevelKey = ""
	config.EncoderConfig.NameKey = ""
	config.EncoderConfig.CallerKey = ""
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.StacktraceKey = ""
	return config.Build()
}

// LoggerSink routes pipeline diagnostics through a zap logger at warn level.
type LoggerSink struct {
	logger *zap.Logger
}

// NewLoggerSink wraps the provided logger as a diagnostic sink.
func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Warnf formats the diagnostic and logs it as a warning.
func (sink *LoggerSink) Warnf(messageFormat string, messageArguments ...any) {
	sink.logger.Warn(fmt.Sprintf(messageFormat, messageArguments...))
}

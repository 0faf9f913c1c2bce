// Package logging builds pleezer's zap logger: console or JSON encoding,
// verbosity mapped from the -v/-vv/-q flags, and a named "decode" logger
// pinned to error level per spec.md §7 ("audio-codec logs suppressed to
// ERROR by default").
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity mirrors the CLI's -q / (default) / -v / -vv levels.
type Verbosity int

const (
	Quiet Verbosity = iota
	Normal
	Verbose
	VeryVerbose
)

func (v Verbosity) zapLevel() zapcore.Level {
	switch v {
	case Quiet:
		return zapcore.ErrorLevel
	case Normal:
		return zapcore.InfoLevel
	case Verbose:
		return zapcore.DebugLevel
	case VeryVerbose:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures logger construction.
type Config struct {
	Verbosity Verbosity
	// JSON selects the JSON encoder; otherwise a human-readable console encoder is used.
	JSON bool
}

// New builds a root *zap.Logger per cfg, writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), cfg.Verbosity.zapLevel())
	logger := zap.New(core, zap.AddCaller())
	return logger, nil
}

// DecodeLogger returns a sub-logger named "decode", clamped to ERROR
// regardless of the requested global verbosity. internal/decode and
// internal/dsp do not log, and no package in this module calls it.
func DecodeLogger(root *zap.Logger) *zap.Logger {
	return root.Named("decode").WithOptions(zap.IncreaseLevel(zapcore.ErrorLevel))
}

// Redact is applied to any field that might carry an ARL or bearer token
// before it reaches a log line; spec.md §7 requires this hold even at trace
// level, so callers must route secrets through this rather than logging
// raw strings.
func Redact(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return fmt.Sprintf("%s…%s(%d)", s[:2], s[len(s)-2:], len(s))
}

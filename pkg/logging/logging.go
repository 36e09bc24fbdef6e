// Package logging builds the process-wide slog.Logger. Text output uses the
// standard handler; JSON output goes through zap for production.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log format and minimum level.
type Config struct {
	Format string `mapstructure:"format"` // text or json
	Level  string `mapstructure:"level"`  // debug, info, warn, error
}

// DefaultConfig logs text at info level.
func DefaultConfig() Config {
	return Config{Format: "text", Level: "info"}
}

// New returns a logger writing to w and a flush function to call before
// exit.
func New(cfg Config, w io.Writer) (*slog.Logger, func(), error) {
	logger, _, flush, err := NewLeveled(cfg, w)
	return logger, flush, err
}

// Level changes the minimum level of a logger built by NewLeveled while it
// is in use.
type Level struct {
	slogLevel *slog.LevelVar
	zapLevel  zap.AtomicLevel
}

// Set parses s and applies it.
func (l *Level) Set(s string) error {
	level, err := parseLevel(s)
	if err != nil {
		return err
	}
	l.slogLevel.Set(level)
	l.zapLevel.SetLevel(zapLevel(level))
	return nil
}

// String returns the current level name.
func (l *Level) String() string {
	return l.slogLevel.Level().String()
}

// NewLeveled is New with a handle for changing the level later.
func NewLeveled(cfg Config, w io.Writer) (*slog.Logger, *Level, func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	lv := &Level{slogLevel: new(slog.LevelVar), zapLevel: zap.NewAtomicLevelAt(zapLevel(level))}
	lv.slogLevel.Set(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv.slogLevel})
		return slog.New(h), lv, func() {}, nil
	case "json":
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), lv.zapLevel)
		zl := zap.New(core, zap.AddCaller())
		h := logr.ToSlogHandler(zapr.NewLogger(zl))
		return slog.New(h), lv, func() { _ = zl.Sync() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown log format %q (expected text or json)", cfg.Format)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}

// zapLevel maps slog levels onto zap's. zapr logs V(n) at zap level -n,
// so debug must be enabled for slog's debug records to pass.
func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

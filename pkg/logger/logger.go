package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.Logger

// Init initializes the global Zap logger writing to stdout.
// level: debug, info, warn, error, dpanic, panic, fatal
// format: json, console
func Init(level, format string) (*zap.Logger, error) {
	return InitWithWriter(level, format, os.Stdout)
}

// InitWithWriter is Init with an explicit sink, used by tests and the CLI.
func InitWithWriter(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.MessageKey = "message"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "time"
	encoderCfg.LevelKey = "level"
	encoderCfg.CallerKey = "caller"
	encoderCfg.StacktraceKey = "stacktrace"
	encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderCfg)
	case "console":
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	l := zap.New(core, zap.AddCaller())
	global = l
	return l, nil
}

// L returns the global logger. Panics if not initialized.
func L() *zap.Logger {
	if global == nil {
		panic("logger not initialized: call logger.Init first")
	}
	return global
}

// Sync flushes any buffered log entries.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}

// Deployment is the canonical field for a deployment id.
func Deployment(id uuid.UUID) zap.Field {
	return zap.String("deployment_id", id.String())
}

// Tenant is the canonical field for a tenant id.
func Tenant(id string) zap.Field {
	return zap.String("tenant_id", id)
}

// Stage is the canonical field for a pipeline stage name.
func Stage(name string) zap.Field {
	return zap.String("stage", name)
}

// Leveled adapts the global logger to the key/value logging interface used
// by HTTP client libraries such as go-retryablehttp.
type Leveled struct {
	s *zap.SugaredLogger
}

// NewLeveled returns a Leveled logger named after the calling component.
func NewLeveled(name string) Leveled {
	return Leveled{s: L().Named(name).WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l Leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l Leveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l Leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l Leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lepinkainen/imgmin/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var textToZapLevelMap = map[string]zapcore.Level{
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
	"error": zapcore.ErrorLevel,
	"warn":  zapcore.WarnLevel,
	"info":  zapcore.InfoLevel,
	"debug": zapcore.DebugLevel,
}

// New builds a sugared logger writing to w. Unknown levels fall back to info
// and unknown formats to console.
func New(w zapcore.WriteSyncer, cfg config.Logger) *zap.SugaredLogger {
	project := cfg.Project
	if project == "" {
		project = "imgmin"
	}

	level, ok := textToZapLevelMap[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.999Z07:00"))
	}

	var enc zapcore.Encoder
	switch cfg.Format {
	case "json":
		enc = zapcore.NewJSONEncoder(encoderCfg)
	default:
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, w, level)
	return zap.New(core).WithOptions(
		zap.Fields(zap.String("project", project)),
		zap.AddCaller(),
	).Sugar()
}

// Open creates the application logger. With a file configured the log goes
// there, otherwise to stderr. The returned closer releases the file.
func Open(cfg config.Logger) (*zap.SugaredLogger, io.Closer, error) {
	if cfg.File == "" {
		return New(zapcore.Lock(os.Stderr), cfg), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(zapcore.Lock(f), cfg), f, nil
}

// LogIfError logs err with msg when it is non-nil and returns it unchanged
func LogIfError(logger *zap.SugaredLogger, err error, msg string, args ...interface{}) error {
	if err != nil {
		logger.With("error", err).Errorf(msg, args...)
	}
	return err
}

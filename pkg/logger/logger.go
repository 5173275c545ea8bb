package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Leveled package-level logger shared by the repository, the sweeper and the
// demo service.
// - zap console encoder, ISO8601 timestamps
// - Debug/Info/Warn/Error/Fatal variants and Init(level)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar = newSugar(zapcore.Lock(os.Stdout))
)

func newSugar(w zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level)
	return zap.New(core).Sugar()
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	case "fatal":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debugf(format string, v ...interface{}) { sugar.Debugf(format, v...) }

func Infof(format string, v ...interface{}) { sugar.Infof(format, v...) }

func Warnf(format string, v ...interface{}) { sugar.Warnf(format, v...) }

func Errorf(format string, v ...interface{}) { sugar.Errorf(format, v...) }

// Fatalf logs and exits the process with status 1.
func Fatalf(format string, v ...interface{}) { sugar.Fatalf(format, v...) }

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	sugar.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debug(v string) { sugar.Debug(v) }
func Info(v string)  { sugar.Info(v) }
func Warn(v string)  { sugar.Warn(v) }
func Error(v string) { sugar.Error(v) }

// LevelString returns the current level as text.
func LevelString() string {
	return level.Level().String()
}

// Sync flushes buffered entries; call before exit.
func Sync() error {
	return sugar.Sync()
}

package logging

import (
	"log/slog"
	"os"
	"strings"
)

var (
	level  slog.LevelVar
	logger *slog.Logger
)

// Init sets the global log level and installs the shared text handler on
// first call. Later calls only adjust the level, so flag parsing can
// override the environment without swapping the handler out from under
// existing loggers.
func Init(name string) {
	level.Set(parseLevel(name))
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
		slog.SetDefault(logger)
	}
}

// parseLevel maps debug/info/warn/error to slog levels. Unknown names,
// including the empty string, mean info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the shared logger, initializing it from CAIRN_LOG_LEVEL
// when nothing has called Init yet.
func Logger() *slog.Logger {
	if logger == nil {
		Init(os.Getenv("CAIRN_LOG_LEVEL"))
	}
	return logger
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

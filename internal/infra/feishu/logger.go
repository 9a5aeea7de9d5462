package feishu

import (
	"context"
	"fmt"
	"log/slog"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// slogLogger routes SDK log lines into slog
type slogLogger struct {
	logger *slog.Logger
}

// NewSDKLogger adapts a slog logger to the SDK logger interface
func NewSDKLogger(logger *slog.Logger) larkcore.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLogger{logger: logger.With("component", "lark_sdk")}
}

func (l slogLogger) Debug(ctx context.Context, args ...interface{}) {
	l.logger.DebugContext(ctx, fmt.Sprint(args...))
}

func (l slogLogger) Info(ctx context.Context, args ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprint(args...))
}

func (l slogLogger) Warn(ctx context.Context, args ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprint(args...))
}

func (l slogLogger) Error(ctx context.Context, args ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprint(args...))
}

// SDKLogLevel maps our level to the SDK's
func SDKLogLevel(level slog.Level) larkcore.LogLevel {
	switch {
	case level <= slog.LevelDebug:
		return larkcore.LogLevelDebug
	case level <= slog.LevelInfo:
		return larkcore.LogLevelInfo
	case level <= slog.LevelWarn:
		return larkcore.LogLevelWarn
	default:
		return larkcore.LogLevelError
	}
}

package client

import (
	"context"
	"log/slog"

	"github.com/giantswarm/tokengate/storage"
)

// Notifier shows transient notices to the user.
type Notifier interface {
	Notify(ctx context.Context, notice storage.Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice storage.Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, notice storage.Notice) {
	f(ctx, notice)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, notice storage.Notice) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch notice.Level {
	case storage.NoticeWarning:
		level = slog.LevelWarn
	case storage.NoticeError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, notice.Message, "notice", true)
}

func errorNotice(message string) storage.Notice {
	return storage.Notice{Level: storage.NoticeError, Message: message}
}

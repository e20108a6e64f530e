package voice

import (
	"context"
	"log/slog"
)

// hookHandler — обертка slog.Handler, дублирующая каждую запись лога в
// пользовательский хук. Хук получает уровень и текст сообщения; атрибуты
// остаются в основном логе.
type hookHandler struct {
	inner slog.Handler
	hook  func(level slog.Level, message string)
}

func newHookHandler(inner slog.Handler, hook func(slog.Level, string)) *hookHandler {
	return &hookHandler{inner: inner, hook: hook}
}

func (h *hookHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Хук получает все уровни независимо от фильтра основного лога
	return true
}

func (h *hookHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hook(record.Level, record.Message)
	if h.inner.Enabled(ctx, record.Level) {
		return h.inner.Handle(ctx, record)
	}
	return nil
}

func (h *hookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &hookHandler{inner: h.inner.WithAttrs(attrs), hook: h.hook}
}

func (h *hookHandler) WithGroup(name string) slog.Handler {
	return &hookHandler{inner: h.inner.WithGroup(name), hook: h.hook}
}

// buildLogger собирает логгер клиента: базовый логгер из конфигурации,
// опциональный хук и постоянные атрибуты сессии
func buildLogger(config *Config) *slog.Logger {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.OnLog != nil {
		logger = slog.New(newHookHandler(logger.Handler(), config.OnLog))
	}

	return logger.With(
		"component", "voice",
		"session_id", config.SessionID,
		"channel_id", config.ChannelID,
	)
}

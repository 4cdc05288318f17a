package infra

import (
	"log/slog"

	"crypto_terminal/internal/domain"
)

// LogNotifier reports fired alerts through the structured log. Each
// requested notification kind becomes one entry so a desktop shell tailing
// the log can render sound, visual and system notifications.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to the default logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("module", "notifier")}
}

// Notify implements domain.Notifier.
func (n *LogNotifier) Notify(a domain.Alert) {
	kinds := a.Notifications
	if len(kinds) == 0 {
		kinds = []string{"visual"}
	}
	for _, kind := range kinds {
		attrs := []any{
			slog.String("kind", kind),
			slog.String("alert_id", a.ID),
			slog.String("symbol", a.Symbol),
			slog.String("type", string(a.Type)),
			slog.String("threshold", a.Price.String()),
		}
		if a.LastPrice != nil {
			attrs = append(attrs, slog.String("price", a.LastPrice.String()))
		}
		if kind == "sound" {
			attrs = append(attrs, slog.String("sound", a.SoundType))
		}
		n.logger.Info("🔔 Alert notification", attrs...)
	}
}

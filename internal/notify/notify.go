// Package notify delivers user-visible signals. The rendering layer of
// the original app (popups, haptics) is reduced to this interface.
package notify

import (
	"log/slog"

	"github.com/whitea-cloud/photoshare-go/internal/logutil"
)

// Signal is the feedback class accompanying a notification.
type Signal string

const (
	SignalSuccess Signal = "success"
	SignalWarning Signal = "warning"
	SignalError   Signal = "error"
)

// Notifier receives user-facing notifications and confirmation prompts.
type Notifier interface {
	// Notify shows a one-way message.
	Notify(title, message string, signal Signal)

	// Confirm asks a yes/no question and reports the choice.
	Confirm(title, message string) bool
}

// LogNotifier writes notifications to the log. Confirmations resolve
// to AutoConfirm, which suits a headless agent.
type LogNotifier struct {
	Logger      *slog.Logger
	AutoConfirm bool
}

// NewLogNotifier creates a logging notifier.
func NewLogNotifier(logger *slog.Logger, autoConfirm bool) *LogNotifier {
	return &LogNotifier{Logger: logutil.NoopIfNil(logger), AutoConfirm: autoConfirm}
}

func (n *LogNotifier) Notify(title, message string, signal Signal) {
	n.Logger.Info("notification", "title", title, "message", message, "signal", string(signal))
}

func (n *LogNotifier) Confirm(title, message string) bool {
	n.Logger.Info("confirmation prompt", "title", title, "message", message, "answer", n.AutoConfirm)
	return n.AutoConfirm
}

var _ Notifier = (*LogNotifier)(nil)

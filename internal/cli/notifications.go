package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/fattura-reconcile/internal/notify"
)

// FormatNotification renders one notification as a styled line, with its
// suggested follow-up on a second line.
func FormatNotification(n notify.Notification) string {
	text := n.Title
	if n.Message != "" {
		text += ": " + n.Message
	}

	var line string
	switch n.Type {
	case notify.Success:
		line = FormatSuccess(text)
	case notify.Error:
		line = FormatError(text)
	case notify.Warning:
		line = FormatWarning(text)
	default:
		line = FormatInfo(text)
	}
	if n.Action != nil {
		line += "\n  " + SubtleStyle.Render(fmt.Sprintf("%s: %s", n.Action.Label, n.Action.Command))
	}
	return line
}

// PrintNotifications drains the center and writes every queued notification.
func PrintNotifications(w io.Writer, center *notify.Center) {
	for _, n := range center.Drain() {
		if _, err := fmt.Fprintln(w, FormatNotification(n)); err != nil {
			slog.Warn("Failed to write notification", "error", err)
			return
		}
	}
}

package notifier

import (
	"log/slog"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes appended records to the given logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each record via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each record. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(records []model.JobRecord) error {
	for _, r := range records {
		args := []any{"company", r.Company(), "position", r.Position()}
		if loc := model.CellText(r.Location); loc != "" {
			args = append(args, "location", loc)
		}
		if link := model.CellText(r.LinkOrEmail); link != "" {
			args = append(args, "link", link)
		}
		if deadline := model.CellText(r.Deadline); deadline != "" {
			args = append(args, "deadline", deadline)
		}
		n.logger.Info("new job", args...)
	}
	return nil
}

package notifier

import (
	"log/slog"

	"github.com/amishk599/jobrag/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes ingestion reports to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each report via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the batch counts. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(r model.IngestReport) error {
	n.logger.Info("batch committed",
		"batch_id", r.BatchID,
		"collection", r.Collection,
		"source", r.Source,
		"format", r.Format,
		"rows", r.Rows,
		"active", r.Active,
		"ingested", r.Ingested,
	)
	return nil
}

// Multi fans a report out to several notifiers. Every notifier is called; the
// first error is returned.
type Multi []model.Notifier

// Notify calls each notifier in order.
func (m Multi) Notify(r model.IngestReport) error {
	var first error
	for _, n := range m {
		if err := n.Notify(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

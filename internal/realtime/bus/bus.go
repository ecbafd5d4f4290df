package bus

import (
	"context"

	"github.com/yungbote/hypermind-backend/internal/jobs/orchestrator"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
	"github.com/yungbote/hypermind-backend/internal/realtime"
)

// Bus carries realtime messages between worker and API processes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

// Notifier publishes engine updates onto a Bus. Failures are logged and
// never reach the run.
type Notifier struct {
	bus Bus
	log *logger.Logger
}

func NewNotifier(b Bus, log *logger.Logger) *Notifier {
	return &Notifier{bus: b, log: log.With("component", "BusNotifier")}
}

func (n *Notifier) Notify(ctx context.Context, u orchestrator.Update) {
	for _, m := range realtime.Messages(u) {
		if m.Channel == realtime.ChannelAll {
			continue
		}
		if err := n.bus.Publish(context.WithoutCancel(ctx), m); err != nil {
			n.log.Warn("realtime publish failed", "run_id", u.RunID, "error", err)
		}
	}
}

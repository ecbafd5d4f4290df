package eventbus

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	"github.com/yungbote/hypermind-backend/internal/observability"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Signaler tells other processes that new deliveries exist.
type Signaler interface {
	Signal(ctx context.Context, eventName string) error
}

type Bus struct {
	catalog *Catalog
	reg     *registry.Registry
	store   EventStore
	signal  Signaler
	wake    chan struct{}
	metrics *observability.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewBus(catalog *Catalog, reg *registry.Registry, store EventStore, log *logger.Logger) *Bus {
	return &Bus{
		catalog: catalog,
		reg:     reg,
		store:   store,
		wake:    make(chan struct{}, 1),
		metrics: observability.Current(),
		log:     log.With("component", "EventBus"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithSignaler adds a cross-process wake-up after every publish.
func (b *Bus) WithSignaler(s Signaler) *Bus {
	b.signal = s
	return b
}

func (b *Bus) Catalog() *Catalog { return b.catalog }

// Wakeups fires after each successful publish. Sends never block; bursts
// collapse into one pending signal.
func (b *Bus) Wakeups() <-chan struct{} { return b.wake }

// Publish validates and stores the event and queues one delivery per
// subscribed pipeline. It returns as soon as the event is durable.
func (b *Bus) Publish(ctx context.Context, name string, payload any) (uuid.UUID, error) {
	data, err := b.catalog.Validate(name, payload)
	if err != nil {
		b.metrics.IncEvent(name, "invalid")
		b.log.Warn("event rejected", "event", name, "error", err)
		return uuid.Nil, err
	}
	subs := b.reg.Resolve(name)
	ids := make([]string, 0, len(subs))
	for _, d := range subs {
		ids = append(ids, d.ID)
	}
	ev := &pipeline.Event{
		ID:         uuid.New(),
		Name:       name,
		Data:       datatypes.JSON(data),
		EnqueuedAt: b.now(),
	}
	if err := b.store.Append(ctx, ev, ids); err != nil {
		b.metrics.IncEvent(name, "error")
		return uuid.Nil, err
	}
	b.metrics.IncEvent(name, "accepted")
	b.log.Info("event published", "event", name, "event_id", ev.ID.String(), "pipelines", ids)

	select {
	case b.wake <- struct{}{}:
	default:
	}
	if b.signal != nil && len(ids) > 0 {
		if err := b.signal.Signal(ctx, name); err != nil {
			b.log.Warn("cross-process wake-up failed", "event", name, "error", err)
		}
	}
	return ev.ID, nil
}

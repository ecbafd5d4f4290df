package pipelines

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

type EventRepo interface {
	// CreateWithDeliveries stores the event and one queued delivery per
	// pipeline in a single transaction.
	CreateWithDeliveries(dbc dbctx.Context, ev *types.Event, pipelineIDs []string) ([]*types.Delivery, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Event, error)
	ListRecent(dbc dbctx.Context, name string, limit int) ([]*types.Event, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		db:  db,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) CreateWithDeliveries(dbc dbctx.Context, ev *types.Event, pipelineIDs []string) ([]*types.Delivery, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.EnqueuedAt.IsZero() {
		ev.EnqueuedAt = time.Now().UTC()
	}
	deliveries := make([]*types.Delivery, 0, len(pipelineIDs))
	for _, id := range pipelineIDs {
		deliveries = append(deliveries, &types.Delivery{
			EventID:    ev.ID,
			PipelineID: id,
			Status:     pipeline.DeliveryQueued,
			CreatedAt:  ev.EnqueuedAt,
			UpdatedAt:  ev.EnqueuedAt,
		})
	}
	err := dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(ev).Error; err != nil {
			return err
		}
		// One insert per row keeps autoincrement ids in subscription order.
		for _, d := range deliveries {
			if err := txx.Create(d).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *eventRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Event, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var ev types.Event
	err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&ev).Error
	if err != nil {
		return nil, err
	}
	if ev.ID == uuid.Nil {
		return nil, nil
	}
	return &ev, nil
}

func (r *eventRepo) ListRecent(dbc dbctx.Context, name string, limit int) ([]*types.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := dbc.Conn(r.db).Order("enqueued_at DESC").Limit(limit)
	if name != "" {
		q = q.Where("name = ?", name)
	}
	var out []*types.Event
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

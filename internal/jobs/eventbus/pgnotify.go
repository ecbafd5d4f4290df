package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const notifyChannel = "hypermind_deliveries"

// PGSignaler publishes wake-ups with pg_notify.
type PGSignaler struct {
	pool *pgxpool.Pool
}

func NewPGSignaler(ctx context.Context, dsn string) (*PGSignaler, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse notify dsn: %w", err)
	}
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open notify pool: %w", err)
	}
	return &PGSignaler{pool: pool}, nil
}

func (s *PGSignaler) Signal(ctx context.Context, eventName string) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, eventName)
	return err
}

func (s *PGSignaler) Close() { s.pool.Close() }

// Listen holds a LISTEN connection and forwards each notification to wake
// until ctx ends, reconnecting with backoff.
func Listen(ctx context.Context, dsn string, wake chan<- struct{}, log *logger.Logger) {
	log = log.With("component", "DeliveryListener")
	backoff := time.Second
	for ctx.Err() == nil {
		err := listenOnce(ctx, dsn, wake)
		if ctx.Err() != nil {
			return
		}
		log.Warn("listen connection lost; reconnecting", "error", err, "delay", backoff.String())
		if httpx.SleepCtx(ctx, httpx.Jitter(backoff, 0.2)) != nil {
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func listenOnce(ctx context.Context, dsn string, wake chan<- struct{}) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

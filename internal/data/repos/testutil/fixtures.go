package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/domain/study"
)

func SeedEvent(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, data string) *types.Event {
	tb.Helper()
	ev := &types.Event{
		ID:         uuid.New(),
		Name:       name,
		Data:       datatypes.JSON([]byte(data)),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(ev).Error; err != nil {
		tb.Fatalf("seed event: %v", err)
	}
	return ev
}

func SeedRun(tb testing.TB, ctx context.Context, tx *gorm.DB, ev *types.Event, pipelineID, status string) *types.PipelineRun {
	tb.Helper()
	now := time.Now().UTC()
	run := &types.PipelineRun{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		EventID:    ev.ID,
		EventName:  ev.Name,
		EventData:  ev.Data,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(run).Error; err != nil {
		tb.Fatalf("seed run: %v", err)
	}
	return run
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.Document {
	tb.Helper()
	doc := &types.Document{
		ID:        uuid.New(),
		UserID:    "user-1",
		Title:     title,
		FileURL:   "uploads/" + title,
		Status:    study.DocumentProcessing,
		Metadata:  datatypes.JSON([]byte("{}")),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}


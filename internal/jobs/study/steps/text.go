package steps

import (
	"context"
	"strings"
	"unicode/utf8"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Ask sends a system/user pair and returns the trimmed reply.
func Ask(ctx context.Context, llm adapters.Completion, hint adapters.ModelHint, system, user string, opts adapters.CompletionOptions) (string, error) {
	if llm == nil {
		return "", adapters.Missing("completion")
	}
	msgs := make([]adapters.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, adapters.System(system))
	}
	msgs = append(msgs, adapters.User(user))
	out, err := llm.Complete(ctx, msgs, hint, opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Temperature is a convenience for CompletionOptions.Temperature.
func Temperature(t float64) *float64 { return &t }

// DocumentContent joins up to limit chunks of a document in chunk order.
// A document without chunks yields "".
func DocumentContent(ctx context.Context, db adapters.RelationalStore, documentID string, limit int) (string, error) {
	if db == nil {
		return "", adapters.Missing("relational-store")
	}
	rows, err := db.Select(ctx, domain.TableDocumentChunks, adapters.Query{
		Where:   map[string]any{"document_id": documentID},
		OrderBy: "chunk_index",
		Limit:   limit,
	})
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		if s, _ := r["content"].(string); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

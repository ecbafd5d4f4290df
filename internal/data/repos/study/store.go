// Package study backs adapters.RelationalStore with the study tables.
package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const service = "relational-store"

type tableSpec struct {
	columns map[string]bool
	json    map[string]bool
	created bool
}

func spec(cols []string, jsonCols ...string) tableSpec {
	s := tableSpec{columns: map[string]bool{}, json: map[string]bool{}}
	for _, c := range cols {
		s.columns[c] = true
	}
	for _, c := range jsonCols {
		s.columns[c] = true
		s.json[c] = true
	}
	s.created = s.columns["created_at"]
	return s
}

// tables is the set pipelines may touch. Anything else is rejected before
// reaching SQL.
var tables = map[string]tableSpec{
	domain.TableDocuments:      spec([]string{"id", "user_id", "title", "file_url", "status", "created_at"}, "metadata"),
	domain.TableDocumentChunks: spec([]string{"id", "document_id", "content", "chunk_index"}, "metadata"),
	domain.TableKnowledgeNodes: spec([]string{"id", "document_id", "label", "type", "description"}),
	domain.TableKnowledgeEdges: spec([]string{"id", "source_id", "target_id", "relationship"}),
	domain.TableGeneratedMedia: spec([]string{"id", "document_id", "type", "url", "created_at"}, "metadata"),
}

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("repo", "StudyStore")}
}

func (s *Store) Insert(ctx context.Context, table string, rows []adapters.Row) ([]adapters.Row, error) {
	ts, err := lookup(table)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	prepared := make([]map[string]interface{}, 0, len(rows))
	out := make([]adapters.Row, 0, len(rows))
	for _, row := range rows {
		if err := ts.check(table, row); err != nil {
			return nil, err
		}
		result := adapters.Row{}
		for k, v := range row {
			result[k] = v
		}
		if id, _ := result["id"].(string); id == "" {
			result["id"] = uuid.New().String()
		}
		if ts.created && result["created_at"] == nil {
			result["created_at"] = now
		}
		vals, err := ts.encode(result)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, vals)
		out = append(out, result)
	}
	if len(prepared) == 0 {
		return out, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, vals := range prepared {
			if err := tx.Table(table).Create(vals).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, dbError(table, err)
	}
	return out, nil
}

func (s *Store) Select(ctx context.Context, table string, q adapters.Query) ([]adapters.Row, error) {
	ts, err := lookup(table)
	if err != nil {
		return nil, err
	}
	tx, err := s.scoped(ctx, table, ts, q)
	if err != nil {
		return nil, err
	}
	var raw []map[string]interface{}
	if err := tx.Find(&raw).Error; err != nil {
		return nil, dbError(table, err)
	}
	return ts.decode(raw), nil
}

// Update applies set to every row matching q.Where and returns them. An
// empty filter is refused; no matching rows is NotFound.
func (s *Store) Update(ctx context.Context, table string, q adapters.Query, set adapters.Row) ([]adapters.Row, error) {
	ts, err := lookup(table)
	if err != nil {
		return nil, err
	}
	if len(q.Where) == 0 {
		return nil, adapters.Errorf(service, adapters.ConstraintViolation, "update on %s without a filter", table)
	}
	if len(set) == 0 {
		return nil, adapters.Errorf(service, adapters.ConstraintViolation, "update on %s with nothing to set", table)
	}
	if err := ts.check(table, set); err != nil {
		return nil, err
	}
	if _, ok := set["id"]; ok {
		return nil, adapters.Errorf(service, adapters.ConstraintViolation, "id of %s is immutable", table)
	}
	vals, err := ts.encode(set)
	if err != nil {
		return nil, err
	}
	tx, err := s.scoped(ctx, table, ts, adapters.Query{Where: q.Where})
	if err != nil {
		return nil, err
	}
	res := tx.Updates(vals)
	if res.Error != nil {
		return nil, dbError(table, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, adapters.Errorf(service, adapters.NotFound, "no %s row matches %v", table, q.Where)
	}

	after := adapters.Query{Where: map[string]any{}, OrderBy: q.OrderBy, Desc: q.Desc, Limit: q.Limit}
	for k, v := range q.Where {
		after.Where[k] = v
	}
	// Re-select by the new values when the filter columns were rewritten.
	for k, v := range set {
		if _, ok := after.Where[k]; ok {
			after.Where[k] = v
		}
	}
	return s.Select(ctx, table, after)
}

func (s *Store) scoped(ctx context.Context, table string, ts tableSpec, q adapters.Query) (*gorm.DB, error) {
	tx := s.db.WithContext(ctx).Table(table)
	if len(q.Where) > 0 {
		if err := ts.check(table, q.Where); err != nil {
			return nil, err
		}
		where, err := ts.encode(q.Where)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(where)
	}
	if q.OrderBy != "" {
		if !ts.columns[q.OrderBy] {
			return nil, adapters.Errorf(service, adapters.ConstraintViolation, "unknown column %s.%s", table, q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("%s %s", q.OrderBy, dir))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx, nil
}

func lookup(table string) (tableSpec, error) {
	ts, ok := tables[table]
	if !ok {
		return tableSpec{}, adapters.Errorf(service, adapters.ConstraintViolation, "unknown table %q", table)
	}
	return ts, nil
}

func (ts tableSpec) check(table string, row adapters.Row) error {
	for k := range row {
		if !ts.columns[k] {
			return adapters.Errorf(service, adapters.ConstraintViolation, "unknown column %s.%s", table, k)
		}
	}
	return nil
}

func (ts tableSpec) encode(row adapters.Row) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		if ts.json[k] && v != nil {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, adapters.Wrap(service, adapters.ConstraintViolation, fmt.Errorf("encode %s: %w", k, err))
			}
			out[k] = datatypes.JSON(b)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (ts tableSpec) decode(raw []map[string]interface{}) []adapters.Row {
	out := make([]adapters.Row, 0, len(raw))
	for _, m := range raw {
		row := adapters.Row{}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if ts.json[k] {
				if s, ok := v.(string); ok && s != "" {
					var decoded any
					if json.Unmarshal([]byte(s), &decoded) == nil {
						v = decoded
					}
				}
			}
			row[k] = v
		}
		out = append(out, row)
	}
	return out
}

func dbError(table string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey), errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return adapters.Wrap(service, adapters.ConstraintViolation, fmt.Errorf("%s: %w", table, err))
	default:
		return adapters.Wrap(service, adapters.IOError, fmt.Errorf("%s: %w", table, err))
	}
}

package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PG stores every collection in a single JSONB table (see
// migrations/001_documents.sql).
type PG struct {
	db queryable
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{db: pool}
}

const uniqueViolation = "23505"

func (g *PG) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	sql, args, err := buildSelect(collection, filters)
	if err != nil {
		return nil, err
	}
	rows, err := g.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// buildSelect renders a parameterized query. Field names travel as bind
// parameters too, so only the operator shape is interpolated.
func buildSelect(collection string, filters []Filter) (string, []interface{}, error) {
	if err := ValidateCollection(collection); err != nil {
		return "", nil, err
	}
	if err := validateFilters(filters); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT data FROM documents WHERE collection = $1")
	args := []interface{}{collection}
	for _, f := range filters {
		val, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("filter %q: %w", f.Field, err)
		}
		args = append(args, f.Field, string(val))
		fi, vi := len(args)-1, len(args)
		switch f.Op {
		case OpEqual:
			fmt.Fprintf(&sb, " AND data -> $%d::text = $%d::jsonb", fi, vi)
		case OpNotEqual:
			fmt.Fprintf(&sb, " AND (data -> $%d::text) IS DISTINCT FROM $%d::jsonb", fi, vi)
		case OpIn:
			fmt.Fprintf(&sb, " AND data -> $%d::text IN (SELECT jsonb_array_elements($%d::jsonb))", fi, vi)
		}
	}
	sb.WriteString(" ORDER BY created_at, id")
	return sb.String(), args, nil
}

func (g *PG) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ValidateCollection(collection); err != nil {
		return "", err
	}
	stored := doc.Clone()
	if stored == nil {
		stored = Document{}
	}
	id := stored.ID()
	if id == "" {
		id = uuid.New().String()
	}
	stored["id"] = id
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", collection, err)
	}
	_, err = g.db.Exec(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)`,
		collection, id, string(data))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
		}
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (g *PG) Update(ctx context.Context, collection, id string, patch Document) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	clean := patch.Clone()
	if clean == nil {
		clean = Document{}
	}
	delete(clean, "id")
	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal %s patch: %w", collection, err)
	}
	tag, err := g.db.Exec(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2`,
		collection, id, string(data))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

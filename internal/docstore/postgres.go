package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// PostgresStore implements Store on a single JSONB documents table. Field
// updates compile to one UPDATE statement each, so per-document atomicity
// comes from Postgres row-level locking rather than client coordination.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the documents table and its lookup indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, key)
		)`,
		`CREATE INDEX IF NOT EXISTS documents_doc_gin ON documents USING GIN (doc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return wrapPQ("ensure schema", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	if err != nil {
		return nil, wrapPQ("get", err)
	}
	return decodeDoc(raw)
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, key, raw,
	)
	return wrapPQ("set", err)
}

func (s *PostgresStore) Create(ctx context.Context, collection, key string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: marshal document: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO NOTHING`,
		collection, key, raw,
	)
	if err != nil {
		return wrapPQ("create", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return wrapPQ("create", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", ErrExists, collection, key)
	}
	return nil
}

// Apply ensures the row exists, then commits all ops in one UPDATE built
// from nested jsonb expressions. The two statements share a transaction;
// the UPDATE alone carries the semantics and never reads client-side state.
func (s *PostgresStore) Apply(ctx context.Context, collection, key string, ops ...FieldOp) error {
	if len(ops) == 0 {
		return nil
	}
	expr, args, err := compileOps(ops, 3)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPQ("apply", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, key, doc) VALUES ($1, $2, '{}'::jsonb)
		ON CONFLICT (collection, key) DO NOTHING`,
		collection, key,
	); err != nil {
		return wrapPQ("apply", err)
	}

	query := fmt.Sprintf(
		`UPDATE documents SET doc = %s, updated_at = now() WHERE collection = $1 AND key = $2`,
		expr,
	)
	allArgs := append([]any{collection, key}, args...)
	if _, err := tx.ExecContext(ctx, query, allArgs...); err != nil {
		return wrapPQ("apply", err)
	}
	return wrapPQ("apply", tx.Commit())
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key,
	)
	return wrapPQ("delete", err)
}

func (s *PostgresStore) Query(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, doc FROM documents WHERE collection = $1 AND doc->>$2 = $3`,
		collection, field, value,
	)
	if err != nil {
		return nil, wrapPQ("query", err)
	}
	return scanKeyed(rows)
}

func (s *PostgresStore) QueryContains(ctx context.Context, collection, field, value string) ([]Keyed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, doc FROM documents
		 WHERE collection = $1 AND jsonb_exists(doc->$2, $3)`,
		collection, field, value,
	)
	if err != nil {
		return nil, wrapPQ("query contains", err)
	}
	return scanKeyed(rows)
}

func (s *PostgresStore) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	query := `SELECT key FROM documents WHERE collection = $1`
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPQ("keys", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, wrapPQ("keys", err)
		}
		out = append(out, key)
	}
	return out, wrapPQ("keys", rows.Err())
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Keyed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, doc FROM documents WHERE collection = $1`,
		collection,
	)
	if err != nil {
		return nil, wrapPQ("list", err)
	}
	return scanKeyed(rows)
}

func (s *PostgresStore) BatchWrite(ctx context.Context, writes []Write) error {
	if len(writes) > MaxBatchSize {
		return fmt.Errorf("%w: %d writes", ErrBatchTooLarge, len(writes))
	}
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPQ("batch write", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, w := range writes {
		switch w.Kind {
		case WriteSet:
			raw, err := json.Marshal(w.Doc)
			if err != nil {
				return fmt.Errorf("docstore: marshal document: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, key, doc)
				VALUES ($1, $2, $3)
				ON CONFLICT (collection, key)
				DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
				w.Collection, w.Key, raw,
			); err != nil {
				return wrapPQ("batch write", err)
			}
		case WriteUpdate:
			expr, args, err := compileOps(w.Ops, 3)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, key, doc) VALUES ($1, $2, '{}'::jsonb)
				ON CONFLICT (collection, key) DO NOTHING`,
				w.Collection, w.Key,
			); err != nil {
				return wrapPQ("batch write", err)
			}
			query := fmt.Sprintf(
				`UPDATE documents SET doc = %s, updated_at = now() WHERE collection = $1 AND key = $2`,
				expr,
			)
			if _, err := tx.ExecContext(ctx, query, append([]any{w.Collection, w.Key}, args...)...); err != nil {
				return wrapPQ("batch write", err)
			}
		case WriteDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND key = $2`,
				w.Collection, w.Key,
			); err != nil {
				return wrapPQ("batch write", err)
			}
		}
	}
	return wrapPQ("batch write", tx.Commit())
}

// compileOps turns field ops into a nested jsonb expression over
// documents.doc, with placeholders starting at argOffset.
func compileOps(ops []FieldOp, argOffset int) (string, []any, error) {
	expr := `documents.doc`
	var args []any
	n := argOffset
	for _, op := range ops {
		path := fmt.Sprintf(`'{%s}'`, op.Field)
		field := quoteLiteral(op.Field)
		switch op.Kind {
		case OpSet:
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return "", nil, fmt.Errorf("docstore: marshal field %q: %w", op.Field, err)
			}
			expr = fmt.Sprintf(`jsonb_set(%s, %s, $%d::jsonb, true)`, expr, path, n)
			args = append(args, string(raw))
			n++
		case OpIncrement:
			delta, ok := op.Value.(float64)
			if !ok {
				return "", nil, fmt.Errorf("docstore: increment on %q with non-numeric delta %T", op.Field, op.Value)
			}
			expr = fmt.Sprintf(
				`jsonb_set(%s, %s, to_jsonb(COALESCE((documents.doc->>%s)::numeric, 0) + $%d::numeric), true)`,
				expr, path, field, n,
			)
			args = append(args, delta)
			n++
		case OpAddToSet:
			raw, _ := json.Marshal([]any{op.Value})
			expr = fmt.Sprintf(
				`jsonb_set(%s, %s, CASE
					WHEN COALESCE(documents.doc->%s, '[]'::jsonb) @> $%d::jsonb
					THEN COALESCE(documents.doc->%s, '[]'::jsonb)
					ELSE COALESCE(documents.doc->%s, '[]'::jsonb) || $%d::jsonb
				END, true)`,
				expr, path, field, n, field, field, n,
			)
			args = append(args, string(raw))
			n++
		case OpRemoveFromSet:
			expr = fmt.Sprintf(
				`jsonb_set(%s, %s, COALESCE(documents.doc->%s, '[]'::jsonb) - $%d::text, true)`,
				expr, path, field, n,
			)
			args = append(args, fmt.Sprint(op.Value))
			n++
		case OpDeleteField:
			expr = fmt.Sprintf(`(%s - %s)`, expr, field)
		default:
			return "", nil, fmt.Errorf("docstore: unknown field op %d", op.Kind)
		}
	}
	return expr, args, nil
}

// quoteLiteral escapes a field name as a SQL string literal. Field names
// come from code, never from request input, but quoting keeps it safe.
func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func scanKeyed(rows *sql.Rows) ([]Keyed, error) {
	defer rows.Close()
	var out []Keyed
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, wrapPQ("scan", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, Keyed{Key: key, Doc: doc})
	}
	return out, wrapPQ("scan", rows.Err())
}

func decodeDoc(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode document: %w", err)
	}
	return doc, nil
}

// wrapPQ classifies driver errors as transient. Anything the database
// reports about our own statements would be a bug caught in tests; what
// reaches production is connection loss, failover, exhausted pools.
func wrapPQ(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

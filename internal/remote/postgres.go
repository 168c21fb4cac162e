package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgChannel = "kasir_changes"

const pgSchema = `
CREATE TABLE IF NOT EXISTS remote_documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_remote_documents_branch
    ON remote_documents (collection, (data->>'branch_id'));

CREATE TABLE IF NOT EXISTS remote_paths (
    path TEXT PRIMARY KEY,
    data JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Postgres is a document backend on a JSONB table. The branch filter field
// has an expression index; writes pg_notify the collection or path so
// subscribers re-read.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings, and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, wrap("postgres connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("postgres ping", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, classifyPG("postgres schema", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Available() bool { return true }

func (p *Postgres) Ping(ctx context.Context) error {
	return wrap("postgres ping", p.pool.Ping(ctx))
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	id := IDOf(doc)
	if id == "" {
		id = uuid.NewString()
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("postgres insert: %w: %v", ErrRejected, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", wrap("postgres insert", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO remote_documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, data); err != nil {
		return "", classifyPG("postgres insert", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, collection); err != nil {
		return "", classifyPG("postgres insert", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", classifyPG("postgres insert", err)
	}
	return collection + "/" + id, nil
}

func (p *Postgres) UpdateWhere(ctx context.Context, collection, field string, value any, patch Document) (int, error) {
	if err := ValidateField(field); err != nil {
		return 0, err
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return 0, fmt.Errorf("postgres update: %w: %v", ErrRejected, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, wrap("postgres update", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE remote_documents SET data = data || $4::jsonb, updated_at = now()
		WHERE collection = $1 AND data->>$2 = $3
	`, collection, field, textValue(value), data)
	if err != nil {
		return 0, classifyPG("postgres update", err)
	}
	matched := int(tag.RowsAffected())
	if matched > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, collection); err != nil {
			return 0, classifyPG("postgres update", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, classifyPG("postgres update", err)
	}
	return matched, nil
}

func (p *Postgres) Find(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ValidateField(field); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT data FROM remote_documents
		WHERE collection = $1 AND data->>$2 = $3
		ORDER BY updated_at
	`, collection, field, textValue(value))
	if err != nil {
		return nil, classifyPG("postgres find", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, wrap("postgres find", err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Warn("postgres: skipping undecodable document", "collection", collection, "err", err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("postgres find", err)
	}
	return docs, nil
}

func (p *Postgres) Subscribe(ctx context.Context, collection, field string, value any, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidateField(field); err != nil {
		return noop, err
	}
	refresh := func(ctx context.Context) error {
		docs, err := p.Find(ctx, collection, field, value)
		if err != nil {
			return err
		}
		onSnapshot(docs)
		return nil
	}
	return p.listen(ctx, collection, refresh, onError)
}

func (p *Postgres) SetDocument(ctx context.Context, path string, value Document) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres set document: %w: %v", ErrRejected, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return wrap("postgres set document", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO remote_paths (path, data) VALUES ($1, $2)
		ON CONFLICT (path) DO UPDATE SET data = excluded.data, updated_at = now()
	`, path, data); err != nil {
		return classifyPG("postgres set document", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, pgChannel, "path:"+path); err != nil {
		return classifyPG("postgres set document", err)
	}
	return classifyPG("postgres set document", tx.Commit(ctx))
}

func (p *Postgres) SubscribeDocument(ctx context.Context, path string, onValue DocumentFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidatePath(path); err != nil {
		return noop, err
	}
	refresh := func(ctx context.Context) error {
		var data []byte
		err := p.pool.QueryRow(ctx, `SELECT data FROM remote_paths WHERE path = $1`, path).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return classifyPG("postgres get document", err)
		}
		var doc Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("postgres get document: %w: %v", ErrRejected, err)
		}
		onValue(doc)
		return nil
	}
	return p.listen(ctx, "path:"+path, refresh, onError)
}

// listen holds a dedicated connection on LISTEN and calls refresh whenever
// a notification with the given payload arrives.
func (p *Postgres) listen(ctx context.Context, payload string, refresh func(context.Context) error, onError ErrorFunc) (Unsubscribe, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return noop, wrap("postgres listen", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgChannel); err != nil {
		conn.Release()
		return noop, classifyPG("postgres listen", err)
	}
	if err := refresh(ctx); err != nil {
		conn.Release()
		return noop, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			// the connection may be mid-wait; drop it rather than reuse
			conn.Conn().Close(context.Background())
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(runCtx)
			if err != nil {
				if runCtx.Err() == nil && onError != nil {
					onError(wrap("postgres listen", err))
				}
				return
			}
			if n.Payload != payload {
				continue
			}
			if err := refresh(runCtx); err != nil && runCtx.Err() == nil {
				slog.Debug("postgres: refresh after notify failed", "payload", payload, "err", err)
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

// textValue renders a filter value the way ->> renders JSON scalars.
func textValue(v any) string {
	switch x := Normalize(v).(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		data, _ := json.Marshal(x)
		return strings.Trim(string(data), `"`)
	}
}

// classifyPG maps SQLSTATE classes for constraint, data, syntax and auth
// problems to ErrRejected; everything else is a transport problem.
func classifyPG(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "22", "23", "28", "42":
			return reject(op, err)
		}
	}
	return wrap(op, err)
}

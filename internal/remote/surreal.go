package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

const surrealDocTable = "documents"

// Surreal is the SurrealDB backend. Collections map to tables keyed by the
// application id; whole documents live in one table keyed by path.
type Surreal struct {
	db *surrealdb.DB
}

// SurrealConfig holds connection settings
type SurrealConfig struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// OpenSurreal connects, signs in when credentials are set, and selects the
// namespace and database.
func OpenSurreal(ctx context.Context, cfg SurrealConfig) (*Surreal, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, wrap("surreal connect", err)
	}
	if cfg.Username != "" {
		if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}); err != nil {
			db.Close(ctx)
			return nil, reject("surreal signin", err)
		}
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, wrap("surreal use", err)
	}
	return &Surreal{db: db}, nil
}

func (s *Surreal) Available() bool { return true }

func (s *Surreal) Ping(ctx context.Context) error {
	_, err := s.db.Version(ctx)
	return wrap("surreal ping", err)
}

func (s *Surreal) Close() error {
	return s.db.Close(context.Background())
}

// query runs a statement and returns the rows of its first result set.
func (s *Surreal) query(ctx context.Context, op, sql string, vars map[string]any) ([]Document, error) {
	res, err := surrealdb.Query[[]map[string]any](ctx, s.db, sql, vars)
	if err != nil {
		return nil, classifySurreal(op, err)
	}
	if res == nil || len(*res) == 0 {
		return []Document{}, nil
	}
	rows := (*res)[0].Result
	out := make([]Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromSurrealRow(row))
	}
	return out, nil
}

// fromSurrealRow swaps the record id for the application key selected as
// _key and normalizes the rest.
func fromSurrealRow(row map[string]any) Document {
	doc := Document{}
	for k, v := range row {
		if k == "id" || k == "_key" {
			continue
		}
		doc[k] = v
	}
	if key, ok := row["_key"]; ok {
		doc["id"] = fmt.Sprint(key)
	}
	return NormalizeDocument(doc)
}

func contentOf(doc Document) map[string]any {
	content := make(map[string]any, len(doc))
	for k, v := range NormalizeDocument(doc) {
		if k == "id" {
			continue
		}
		content[k] = v
	}
	return content
}

func (s *Surreal) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ValidateField(collection); err != nil {
		return "", err
	}
	id := IDOf(doc)
	if id == "" {
		rows, err := s.query(ctx, "surreal insert",
			`CREATE type::table($tb) CONTENT $doc RETURN meta::id(id) AS _key`,
			map[string]any{"tb": collection, "doc": contentOf(doc)})
		if err != nil {
			return "", err
		}
		if len(rows) == 0 {
			return "", fmt.Errorf("surreal insert: %w: no record returned", ErrRejected)
		}
		return collection + ":" + IDOf(rows[0]), nil
	}

	rid := models.NewRecordID(collection, id)
	existing, err := s.query(ctx, "surreal insert",
		`SELECT meta::id(id) AS _key FROM $rid`, map[string]any{"rid": rid})
	if err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return rid.String(), nil
	}
	if _, err := s.query(ctx, "surreal insert",
		`CREATE $rid CONTENT $doc`, map[string]any{"rid": rid, "doc": contentOf(doc)}); err != nil {
		return "", err
	}
	return rid.String(), nil
}

func (s *Surreal) UpdateWhere(ctx context.Context, collection, field string, value any, patch Document) (int, error) {
	if err := ValidateField(collection); err != nil {
		return 0, err
	}
	if err := ValidateField(field); err != nil {
		return 0, err
	}
	vars := map[string]any{"tb": collection, "value": Normalize(value), "patch": contentOf(patch)}
	var sql string
	if field == "id" {
		vars["rid"] = models.NewRecordID(collection, fmt.Sprint(value))
		sql = `UPDATE $rid MERGE $patch RETURN meta::id(id) AS _key`
	} else {
		sql = fmt.Sprintf(`UPDATE type::table($tb) MERGE $patch WHERE %s = $value RETURN meta::id(id) AS _key`, field)
	}
	rows, err := s.query(ctx, "surreal update", sql, vars)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Surreal) Find(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ValidateField(collection); err != nil {
		return nil, err
	}
	if err := ValidateField(field); err != nil {
		return nil, err
	}
	return s.query(ctx, "surreal find",
		fmt.Sprintf(`SELECT *, meta::id(id) AS _key FROM type::table($tb) WHERE %s = $value`, field),
		map[string]any{"tb": collection, "value": Normalize(value)})
}

// Subscribe opens a live query on the table and re-reads the filtered set on
// every notification, so callers always get full snapshots.
func (s *Surreal) Subscribe(ctx context.Context, collection, field string, value any, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidateField(field); err != nil {
		return noop, err
	}
	refresh := func(ctx context.Context) error {
		docs, err := s.Find(ctx, collection, field, value)
		if err != nil {
			return err
		}
		onSnapshot(docs)
		return nil
	}
	return s.live(ctx, collection, refresh, nil, onError)
}

func (s *Surreal) SetDocument(ctx context.Context, path string, value Document) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	_, err := s.query(ctx, "surreal set document",
		`UPSERT $rid CONTENT $doc`,
		map[string]any{"rid": models.NewRecordID(surrealDocTable, path), "doc": contentOf(value)})
	return err
}

func (s *Surreal) getDocument(ctx context.Context, path string) (Document, bool, error) {
	rows, err := s.query(ctx, "surreal get document",
		`SELECT * FROM $rid`, map[string]any{"rid": models.NewRecordID(surrealDocTable, path)})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

func (s *Surreal) SubscribeDocument(ctx context.Context, path string, onValue DocumentFunc, onError ErrorFunc) (Unsubscribe, error) {
	if err := ValidatePath(path); err != nil {
		return noop, err
	}
	refresh := func(ctx context.Context) error {
		doc, ok, err := s.getDocument(ctx, path)
		if err != nil {
			return err
		}
		if ok {
			onValue(doc)
		}
		return nil
	}
	match := func(result any) bool {
		row, ok := result.(map[string]any)
		if !ok {
			return true
		}
		rid, ok := row["id"].(models.RecordID)
		if !ok {
			return true
		}
		return fmt.Sprint(rid.ID) == path
	}
	return s.live(ctx, surrealDocTable, refresh, match, onError)
}

// live runs refresh once, then again for every relevant notification until
// the returned Unsubscribe is called or ctx ends.
func (s *Surreal) live(ctx context.Context, table string, refresh func(context.Context) error, match func(any) bool, onError ErrorFunc) (Unsubscribe, error) {
	liveID, err := surrealdb.Live(ctx, s.db, models.Table(table), false)
	if err != nil {
		return noop, classifySurreal("surreal live", err)
	}
	notifications, err := s.db.LiveNotifications(liveID.String())
	if err != nil {
		surrealdb.Kill(ctx, s.db, liveID.String())
		return noop, classifySurreal("surreal live", err)
	}

	if err := refresh(ctx); err != nil {
		surrealdb.Kill(ctx, s.db, liveID.String())
		return noop, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					if onError != nil && runCtx.Err() == nil {
						onError(fmt.Errorf("surreal live %s: %w: stream closed", table, ErrUnavailable))
					}
					return
				}
				if match != nil && !match(n.Result) {
					continue
				}
				if err := refresh(runCtx); err != nil && runCtx.Err() == nil {
					slog.Debug("surreal: refresh after notification failed", "table", table, "err", err)
					if onError != nil {
						onError(err)
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			killCtx, done := context.WithTimeout(context.Background(), defaultConnectTimeout)
			defer done()
			if err := surrealdb.Kill(killCtx, s.db, liveID.String()); err != nil {
				slog.Debug("surreal: kill live query", "table", table, "err", err)
			}
			wg.Wait()
		})
	}, nil
}

// classifySurreal separates server-side refusals from transport failures.
func classifySurreal(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"permission", "not allowed", "iam error", "already exists", "parse error", "invalid"} {
		if strings.Contains(msg, marker) {
			return reject(op, err)
		}
	}
	return wrap(op, err)
}

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultConnectTimeout = 5 * time.Second

// Config selects and configures a backend
type Config struct {
	URL            string
	Username       string
	Password       string
	Namespace      string
	Database       string
	ConnectTimeout time.Duration
}

// Dial connects to the backend named by cfg.URL:
//
//	ws://, wss://, http://, https://  SurrealDB
//	postgres://, postgresql://        Postgres JSONB
//	mem://<name>                      process-local memory store
//	(empty)                           Null
func Dial(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return Null(), nil
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch u.Scheme {
	case "mem":
		return MemoryNamed(u.Host + u.Path), nil
	case "ws", "wss", "http", "https":
		ns, db := cfg.Namespace, cfg.Database
		if ns == "" {
			ns = "kasir"
		}
		if db == "" {
			db = "kasir"
		}
		return OpenSurreal(ctx, SurrealConfig{
			URL:       cfg.URL,
			Namespace: ns,
			Database:  db,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.URL)
	}
	return nil, fmt.Errorf("unsupported remote scheme %q", u.Scheme)
}

// Open is Dial that never fails: any connection problem is logged and the
// Null store is returned, so startup never blocks on the network.
func Open(ctx context.Context, cfg Config) Store {
	s, err := Dial(ctx, cfg)
	if err != nil {
		slog.Warn("remote store unavailable, running local-only", "url", redact(cfg.URL), "err", err)
		return Null()
	}
	return s
}

var (
	memMu       sync.Mutex
	memRegistry = map[string]*Memory{}
)

// MemoryNamed returns the process-wide memory store registered under name,
// creating it on first use.
func MemoryNamed(name string) *Memory {
	memMu.Lock()
	defer memMu.Unlock()
	m, ok := memRegistry[name]
	if !ok {
		m = NewMemory()
		memRegistry[name] = m
	}
	return m
}

// redact hides credentials embedded in a URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}

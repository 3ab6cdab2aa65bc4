package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/editor/internal/autosave"
	"chronicle/editor/internal/config"
	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/docstore"
	"chronicle/editor/internal/drafts"
	"chronicle/editor/internal/history"
	"chronicle/editor/internal/rbac"
	"chronicle/editor/internal/search"
	"chronicle/editor/internal/store"
	"chronicle/editor/internal/workspace"
)

const flushTimeout = 10 * time.Second

// backends holds the shared connections every session is built on.
type backends struct {
	cfg     config.Config
	store   docstore.Store
	db      *sql.DB
	redis   *redis.Client
	meili   *search.Meili
	search  *search.Service
	history *history.Store
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{cfg: cfg}

	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		conn, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		b.db = conn
		b.store = store.NewPostgresStore(conn)
		log.Printf("Using PostgreSQL document store")
	case strings.TrimSpace(cfg.StoreURL) != "":
		b.store = docstore.NewClient(cfg.StoreURL, cfg.StoreToken)
		log.Printf("Using document store at %s", cfg.StoreURL)
	default:
		b.store = docstore.NewMemory()
		log.Printf("No store configured, pages are kept in memory")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			b.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		b.redis = client
		log.Printf("Using Redis for draft journaling")
	}

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		b.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliKey)
		b.search = search.NewService(b.meili)
	} else {
		b.search = search.NewService(nil)
	}

	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			b.Close()
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		b.history = history.New(cfg.HistoryDir)
	}
	return b, nil
}

func (b *backends) newSession(scope doc.Scope, perm rbac.Perm, docID string, editor workspace.Editor, onStatus func(autosave.State)) (*workspace.Session, error) {
	opts := workspace.Options{
		Scope:          scope,
		Perm:           perm,
		RequestedDocID: docID,
		Editor:         editor,
		Search:         b.search,
		Delay:          b.cfg.AutosaveDelay,
		RetryDelay:     b.cfg.RetryDelay,
		Author:         "editor",
		OnStatus:       onStatus,
	}
	if b.redis != nil {
		opts.Drafts = drafts.NewRedisJournalWithClient(b.redis, scope.ID())
	}
	if b.history != nil {
		opts.History = b.history
	}
	return workspace.New(b.store, opts)
}

// ready reports whether the stateful backends answer.
func (b *backends) ready(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backends) Close() {
	if b.meili != nil {
		b.meili.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}

// statusPrinter logs autosave transitions for terminal commands.
func statusPrinter(prefix string) func(autosave.State) {
	return func(state autosave.State) {
		log.Printf("%s: %s", prefix, state.Message())
	}
}

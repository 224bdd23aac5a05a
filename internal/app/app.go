package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"devtracker/internal/assistant"
	"devtracker/internal/chat"
	"devtracker/internal/config"
	"devtracker/internal/db"
	"devtracker/internal/domain"
	"devtracker/internal/engine"
	"devtracker/internal/index"
	"devtracker/internal/llm"
	"devtracker/internal/logging"
	"devtracker/internal/metrics"
	"devtracker/internal/migrate"
	"devtracker/internal/repo"
)

type Options struct {
	Workspace string
	// InMemory keeps state and settings in memory only.
	InMemory bool
	// Overrides are applied to the settings on every read and never saved.
	Overrides []func(*config.Settings)
	// Logger replaces the logger built from settings.
	Logger *zap.Logger
	// Gateway replaces the HTTP model client, mostly for tests.
	Gateway assistant.Gateway
}

// App wires one workspace: settings, storage, the entity store, conversations and the
// assistant.
type App struct {
	Workspace string
	Settings  *config.Service
	Logger    *zap.Logger
	DB        *sql.DB
	Engine    *engine.Engine
	Chats     *chat.Manager
	LLM       *llm.Client
	Index     *index.Mirror
	Metrics   *metrics.Metrics
	Assistant *assistant.Orchestrator

	unsubscribe func()
}

// Open prepares the workspace, running migrations and loading both documents.
func Open(ctx context.Context, opts Options) (*App, error) {
	var (
		settings *config.Service
		err      error
	)
	if opts.InMemory {
		settings = config.NewStaticService(config.Default())
	} else {
		settings, err = config.NewService(opts.Workspace, nil)
		if err != nil {
			return nil, err
		}
	}
	for _, o := range opts.Overrides {
		settings.Override(o)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Must(settings.Get().Log)
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, InMemory: opts.InMemory})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	applied, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Debug("applied migrations", zap.Int("count", applied))
	}

	a := &App{
		Workspace: opts.Workspace,
		Settings:  settings,
		Logger:    logger,
		DB:        conn,
		Metrics:   metrics.New(),
	}
	a.LLM = llm.NewClient(func() config.AISettings { return settings.Get().AI }, llm.WithLogger(logger.Named("llm")))
	indexClient := index.NewClient(func() config.IndexSettings { return settings.Get().Index }, nil)
	a.Index = index.NewMirror(indexClient, repo.Repo{DB: conn}, logger.Named("index"), a.Metrics)

	a.Engine = engine.New(conn, logger.Named("engine"))
	a.Engine.Mirror = changeFanout{metrics: a.Metrics, next: a.Index}
	a.Chats = chat.NewManager(conn, logger.Named("chat"))

	var gateway assistant.Gateway = a.LLM
	if opts.Gateway != nil {
		gateway = opts.Gateway
	}
	a.Assistant = &assistant.Orchestrator{
		Store:    a.Engine,
		Chats:    a.Chats,
		Gateway:  gateway,
		Settings: func() config.AISettings { return settings.Get().AI },
		Executor: assistant.NewExecutor(logger.Named("tools")),
		Metrics:  a.Metrics,
		Logger:   logger.Named("assistant"),
	}

	var mu sync.Mutex
	prev := settings.Get().AI
	a.unsubscribe = settings.Subscribe(func(next config.Settings) {
		mu.Lock()
		defer mu.Unlock()
		if next.AI.BaseURL != prev.BaseURL || next.AI.APIKey != prev.APIKey {
			a.LLM.RefreshModels()
		}
		prev = next.AI
		logger.Info("settings changed", zap.String("model", next.AI.Model), zap.Bool("index", next.Index.Enabled))
	})

	if err := a.Engine.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Chats.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close waits for pending index uploads and releases the database.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.Index != nil {
		a.Index.Close()
	}
	_ = a.Logger.Sync()
	return a.DB.Close()
}

// changeFanout counts committed changes and forwards them to the index mirror.
type changeFanout struct {
	metrics *metrics.Metrics
	next    engine.Mirror
}

func (f changeFanout) Mirror(changes []domain.Change) {
	for _, c := range changes {
		f.metrics.StoreChange(c.EventType())
	}
	if f.next != nil {
		f.next.Mirror(changes)
	}
}

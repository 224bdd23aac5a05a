package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devtracker/internal/domain"
	"devtracker/internal/events"
	"devtracker/internal/repo"
)

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

// Mirror receives every committed batch of changes. Implementations must not block.
type Mirror interface {
	Mirror(changes []domain.Change)
}

// Engine owns the tracker state. All mutations go through Apply, which persists the whole
// document and its audit events in one transaction before the in-memory copy is swapped.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Logger *zap.Logger
	Mirror Mirror
	Now    func() time.Time
	NewID  func() string

	mu     sync.Mutex
	state  domain.State
	loaded bool
}

func New(db *sql.DB, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Logger: logger,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// Load reads the state document, seeding the sample workspace when none exists.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	return e.ensureLoadedLocked(ctx)
}

func (e *Engine) ensureLoadedLocked(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	data, err := e.Repo.GetDocument(ctx, repo.StateKey)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		seed := domain.DefaultState(e.now())
		if err := e.writeLocked(ctx, seed, "system", "state.seeded", nil); err != nil {
			return fmt.Errorf("seed state: %w", err)
		}
		e.Logger.Info("seeded default state", zap.Int("challenges", len(seed.Challenges)))
		e.state = seed
	case err != nil:
		return fmt.Errorf("load state: %w", err)
	default:
		st, err := DecodeState(data)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		e.state = st
	}
	e.loaded = true
	return nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (domain.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoadedLocked(ctx); err != nil {
		return domain.State{}, err
	}
	return e.state.Clone(), nil
}

// Apply runs fn against a private copy of the state while holding the store lock. When fn
// reports changes the copy is persisted and becomes the current state; on error nothing is
// written.
func (e *Engine) Apply(ctx context.Context, actorID string, fn func(*domain.State) ([]domain.Change, error)) ([]domain.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	next := e.state.Clone()
	changes, err := fn(&next)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := e.writeLocked(ctx, next, actorID, "", changes); err != nil {
		return nil, err
	}
	e.state = next
	if e.Mirror != nil {
		e.Mirror.Mirror(changes)
	}
	return changes, nil
}

// writeLocked stores st and its audit trail. With no changes a single marker event of type
// marker is written instead.
func (e *Engine) writeLocked(ctx context.Context, st domain.State, actorID, marker string, changes []domain.Change) error {
	data, err := EncodeState(st)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.PutDocumentTx(ctx, tx, repo.StateKey, data); err != nil {
		return err
	}
	w := e.Events
	w.Now = e.now
	if marker != "" {
		payload := events.EventPayload{
			"challenges": len(st.Challenges),
			"tasks":      len(st.Tasks),
			"ideas":      len(st.Ideas),
			"resources":  len(st.Resources),
		}
		if err := w.Append(ctx, tx, marker, "state", "", actorID, payload); err != nil {
			return err
		}
	}
	if err := w.AppendChanges(ctx, tx, actorID, changes); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace swaps the whole state, used by import. It is recorded as a single state.imported
// event and is not mirrored.
func (e *Engine) Replace(ctx context.Context, actorID string, st domain.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writeLocked(ctx, st, actorID, "state.imported", nil); err != nil {
		return err
	}
	e.state = st.Clone()
	e.loaded = true
	return nil
}

package index

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"devtracker/internal/domain"
	"devtracker/internal/metrics"
	"devtracker/internal/repo"
)

// RefStore remembers which remote resource a record was uploaded as.
type RefStore interface {
	PutIndexRef(ctx context.Context, kind, id, remoteID string) error
	GetIndexRef(ctx context.Context, kind, id string) (string, error)
	DeleteIndexRef(ctx context.Context, kind, id string) error
}

// queueSize bounds the changes waiting for the worker. Changes beyond it are dropped.
const queueSize = 256

// Mirror copies committed changes to the knowledge base on a single background worker, in
// commit order. Failures are logged and dropped; nothing is retried.
type Mirror struct {
	client  *Client
	refs    RefStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	queue  chan domain.Change
	start  sync.Once
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewMirror(client *Client, refs RefStore, logger *zap.Logger, m *metrics.Metrics) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{client: client, refs: refs, logger: logger, metrics: m, queue: make(chan domain.Change, queueSize)}
}

// run is the worker. It exits once Close closes the queue and the backlog is done.
func (m *Mirror) run() {
	defer m.wg.Done()
	for c := range m.queue {
		m.sync(context.Background(), c)
	}
}

// Mirror queues one upload or delete per change. It returns immediately; the worker starts
// with the first queued change.
func (m *Mirror) Mirror(changes []domain.Change) {
	if !m.client.settings().Ready() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.start.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
	for _, c := range changes {
		select {
		case m.queue <- c:
		default:
			m.logger.Warn("index queue full, dropping change",
				zap.String("kind", string(c.Record.Kind())), zap.String("id", c.Record.RecordID()))
		}
	}
}

func (m *Mirror) sync(ctx context.Context, c domain.Change) {
	kind, id := string(c.Record.Kind()), c.Record.RecordID()
	log := m.logger.With(zap.String("kind", kind), zap.String("id", id), zap.String("op", string(c.Op)))
	switch c.Op {
	case domain.OpDeleted:
		remote, err := m.refs.GetIndexRef(ctx, kind, id)
		if errors.Is(err, repo.ErrNotFound) {
			return
		}
		if err == nil {
			err = m.client.Delete(ctx, remote)
		}
		m.metrics.IndexRequest("delete", err == nil)
		if err != nil {
			log.Warn("index delete failed", zap.Error(err))
			return
		}
		if err := m.refs.DeleteIndexRef(ctx, kind, id); err != nil {
			log.Warn("index ref cleanup failed", zap.Error(err))
		}
	default:
		remote, err := m.client.Upload(ctx, Markdown(c.Record))
		m.metrics.IndexRequest("upload", err == nil)
		if err != nil {
			log.Warn("index upload failed", zap.Error(err))
			return
		}
		if remote == "" {
			return
		}
		if err := m.refs.PutIndexRef(ctx, kind, id, remote); err != nil {
			log.Warn("index ref save failed", zap.Error(err))
			return
		}
		log.Debug("record mirrored", zap.String("remote_id", remote))
	}
}

// Close stops accepting work and waits for the worker to finish the queued changes.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	m.wg.Wait()
}

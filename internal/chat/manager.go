package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devtracker/internal/domain"
	"devtracker/internal/repo"
)

const (
	welcomeScoped  = "Hello! I can help you with this specific challenge. Try asking me to add a task, create an idea, or find resources!"
	welcomeGeneral = `Hello! I can help you manage your challenges, tasks, ideas, and resources. Try saying "create a new challenge" or "add a task"!`
)

// ErrBusy is returned by BeginTurn when a turn is already running for the conversation.
var ErrBusy = errors.New("conversation is busy")

// Manager owns the conversation document. The processing flag per conversation lives only
// in memory and is never written to the document.
type Manager struct {
	Repo   repo.Repo
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string

	mu         sync.Mutex
	state      domain.ChatState
	loaded     bool
	processing map[string]bool
}

func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		Repo:       repo.Repo{DB: db},
		Logger:     logger,
		Now:        time.Now,
		NewID:      uuid.NewString,
		processing: map[string]bool{},
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) id(prefix string) string {
	gen := uuid.NewString
	if m.NewID != nil {
		gen = m.NewID
	}
	return prefix + gen()
}

func (m *Manager) ensureLoadedLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	data, err := m.Repo.GetDocument(ctx, repo.ConversationsKey)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		m.state = domain.ChatState{Conversations: []domain.Conversation{}}
	case err != nil:
		return fmt.Errorf("load conversations: %w", err)
	default:
		var st domain.ChatState
		if err := json.Unmarshal(data, &st); err != nil {
			// a corrupt document starts over rather than blocking the assistant
			m.Logger.Warn("conversation document unreadable, starting empty", zap.Error(err))
			st = domain.ChatState{}
		}
		if st.Conversations == nil {
			st.Conversations = []domain.Conversation{}
		}
		m.state = st
	}
	m.loaded = true
	return nil
}

// commitLocked writes next and only then makes it the cached state, so a failed write
// leaves memory matching storage.
func (m *Manager) commitLocked(ctx context.Context, next domain.ChatState) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	if err := m.Repo.PutDocument(ctx, repo.ConversationsKey, data); err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *Manager) cloneStateLocked() domain.ChatState {
	next := domain.ChatState{Conversations: make([]domain.Conversation, len(m.state.Conversations))}
	for i, c := range m.state.Conversations {
		next.Conversations[i] = cloneConversation(c)
	}
	if m.state.ActiveConversationID != nil {
		id := *m.state.ActiveConversationID
		next.ActiveConversationID = &id
	}
	return next
}

// Load reads the document from storage, discarding the cached copy.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
	return m.ensureLoadedLocked(ctx)
}

func (m *Manager) indexLocked(id string) int {
	return slices.IndexFunc(m.state.Conversations, func(c domain.Conversation) bool { return c.ID == id })
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Messages = slices.Clone(c.Messages)
	return c
}

// List returns all conversations in creation order.
func (m *Manager) List(ctx context.Context) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, len(m.state.Conversations))
	for i, c := range m.state.Conversations {
		out[i] = cloneConversation(c)
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return domain.Conversation{}, err
	}
	idx := m.indexLocked(id)
	if idx < 0 {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, repo.ErrNotFound)
	}
	return cloneConversation(m.state.Conversations[idx]), nil
}

// Active returns the active conversation, if one is set and still exists.
func (m *Manager) Active(ctx context.Context) (domain.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return domain.Conversation{}, false, err
	}
	if m.state.ActiveConversationID == nil {
		return domain.Conversation{}, false, nil
	}
	idx := m.indexLocked(*m.state.ActiveConversationID)
	if idx < 0 {
		return domain.Conversation{}, false, nil
	}
	return cloneConversation(m.state.Conversations[idx]), true, nil
}

// Create starts a conversation with a welcome message and makes it active. An empty title
// becomes "Chat #N".
func (m *Manager) Create(ctx context.Context, title, challengeID string) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return domain.Conversation{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = fmt.Sprintf("Chat #%d", len(m.state.Conversations)+1)
	}
	welcome := welcomeGeneral
	if challengeID != "" {
		welcome = welcomeScoped
	}
	now := m.now()
	conv := domain.Conversation{
		ID:                 m.id("chat_"),
		Title:              title,
		ContextChallengeID: challengeID,
		Messages: []domain.Message{{
			ID:        m.id("msg_"),
			Author:    domain.AuthorAssistant,
			Text:      welcome,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	next := m.cloneStateLocked()
	next.Conversations = append(next.Conversations, cloneConversation(conv))
	id := conv.ID
	next.ActiveConversationID = &id
	if err := m.commitLocked(ctx, next); err != nil {
		return domain.Conversation{}, err
	}
	return cloneConversation(conv), nil
}

// Append adds a message to the end of a conversation and persists the document.
func (m *Manager) Append(ctx context.Context, convID string, author domain.Author, text string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return domain.Message{}, err
	}
	idx := m.indexLocked(convID)
	if idx < 0 {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", convID, repo.ErrNotFound)
	}
	now := m.now()
	msg := domain.Message{ID: m.id("msg_"), Author: author, Text: text, Timestamp: now}
	next := m.cloneStateLocked()
	conv := &next.Conversations[idx]
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	if err := m.commitLocked(ctx, next); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// SetContext pins a conversation to a challenge. An empty id clears it.
func (m *Manager) SetContext(ctx context.Context, convID, challengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	idx := m.indexLocked(convID)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", convID, repo.ErrNotFound)
	}
	next := m.cloneStateLocked()
	next.Conversations[idx].ContextChallengeID = challengeID
	return m.commitLocked(ctx, next)
}

// SetActive marks a conversation active. An empty id clears the selection.
func (m *Manager) SetActive(ctx context.Context, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	next := m.cloneStateLocked()
	if convID == "" {
		next.ActiveConversationID = nil
		return m.commitLocked(ctx, next)
	}
	if m.indexLocked(convID) < 0 {
		return fmt.Errorf("conversation %s: %w", convID, repo.ErrNotFound)
	}
	next.ActiveConversationID = &convID
	return m.commitLocked(ctx, next)
}

// Delete removes a conversation, clearing the active id when it pointed at it.
func (m *Manager) Delete(ctx context.Context, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	idx := m.indexLocked(convID)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", convID, repo.ErrNotFound)
	}
	next := m.cloneStateLocked()
	next.Conversations = slices.Delete(next.Conversations, idx, idx+1)
	if next.ActiveConversationID != nil && *next.ActiveConversationID == convID {
		next.ActiveConversationID = nil
	}
	if err := m.commitLocked(ctx, next); err != nil {
		return err
	}
	delete(m.processing, convID)
	return nil
}

// BeginTurn marks a conversation as processing. It fails with ErrBusy if a turn is already
// running for it.
func (m *Manager) BeginTurn(convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processing[convID] {
		return ErrBusy
	}
	if m.processing == nil {
		m.processing = map[string]bool{}
	}
	m.processing[convID] = true
	return nil
}

func (m *Manager) EndTurn(convID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processing, convID)
}

// Processing reports whether a turn is running for the conversation.
func (m *Manager) Processing(convID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing[convID]
}

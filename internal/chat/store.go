package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zzeiidann/DNAI/internal/errors"
	"github.com/zzeiidann/DNAI/internal/ids"
)

// State is the persisted form of the store.
type State struct {
	Conversations []Conversation
	ActiveID      string
}

// Store holds every thread in memory and writes the whole state through
// its Repository on each mutation. It always holds at least one thread.
type Store struct {
	mu    sync.Mutex
	repo  Repository
	convs []Conversation
	// active is the id of the thread user and bot turns go to.
	active string
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the stored threads. An empty store is seeded with one greeting
// thread, and a missing or dangling active id falls back to the most
// recently updated thread; either repair is written back.
func Open(ctx context.Context, repo Repository, opts ...Option) (*Store, error) {
	s := &Store{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory threads with the stored ones, picking up
// writes made by other processes. The same repairs as Open apply.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	s.convs = st.Conversations
	s.active = st.ActiveID

	repaired := false
	if len(s.convs) == 0 {
		c, err := s.seeded()
		if err != nil {
			return err
		}
		s.convs = []Conversation{c}
		repaired = true
	}
	if s.indexOf(s.active) < 0 {
		s.active = s.mostRecent()
		repaired = true
	}
	if repaired {
		return s.save(ctx, s.convs, s.active)
	}
	return nil
}

func (s *Store) seeded() (Conversation, error) {
	now := s.now().Round(0)
	id, err := ids.New(now)
	if err != nil {
		return Conversation{}, errors.NewInternal(err)
	}
	return Conversation{
		ID:        id,
		Title:     DefaultTitle,
		Messages:  []Message{{Role: RoleBot, Content: Greeting}},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// mostRecent returns the id of the latest-updated thread; ties go to the
// later one in the collection.
func (s *Store) mostRecent() string {
	best := -1
	for i, c := range s.convs {
		if best < 0 || !c.UpdatedAt.Before(s.convs[best].UpdatedAt) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return s.convs[best].ID
}

func (s *Store) save(ctx context.Context, convs []Conversation, active string) error {
	return s.repo.Save(ctx, State{Conversations: convs, ActiveID: active})
}

func (s *Store) snapshot() []Conversation {
	out := make([]Conversation, len(s.convs))
	copy(out, s.convs)
	return out
}

// CreateConversation starts a seeded thread and makes it active.
func (s *Store) CreateConversation(ctx context.Context) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.seeded()
	if err != nil {
		return Conversation{}, err
	}
	updated := append(s.snapshot(), c)
	if err := s.save(ctx, updated, c.ID); err != nil {
		return Conversation{}, err
	}
	s.convs, s.active = updated, c.ID
	return c.clone(), nil
}

// DeleteConversation removes a thread. Deleting the last thread replaces it
// with a fresh seeded one. Deleting the active thread activates the most
// recently updated survivor.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return errors.NewNotFound("conversation", id)
	}

	prev, prevActive := s.convs, s.active
	updated := make([]Conversation, 0, len(s.convs))
	updated = append(updated, s.convs[:idx]...)
	updated = append(updated, s.convs[idx+1:]...)
	if len(updated) == 0 {
		c, err := s.seeded()
		if err != nil {
			return err
		}
		updated = append(updated, c)
	}

	s.convs = updated
	if s.active == id || s.indexOf(s.active) < 0 {
		s.active = s.mostRecent()
	}
	if err := s.save(ctx, s.convs, s.active); err != nil {
		s.convs, s.active = prev, prevActive
		return err
	}
	return nil
}

// Select makes the thread with id active.
func (s *Store) Select(ctx context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return Conversation{}, errors.NewNotFound("conversation", id)
	}
	if s.active != id {
		if err := s.save(ctx, s.convs, id); err != nil {
			return Conversation{}, err
		}
		s.active = id
	}
	return s.convs[idx].clone(), nil
}

// Reset clears a thread back to the greeting and the default title.
func (s *Store) Reset(ctx context.Context, id string) (Conversation, error) {
	return s.update(ctx, id, func(c *Conversation) error {
		c.Title = DefaultTitle
		c.Messages = []Message{{Role: RoleBot, Content: Greeting}}
		return nil
	})
}

// AppendUserTurn adds a user message to the active thread. The first user
// message also names the thread.
func (s *Store) AppendUserTurn(ctx context.Context, content string) (Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Conversation{}, errors.NewInvalidRequest("message is required")
	}
	return s.update(ctx, "", func(c *Conversation) error {
		if !c.HasUserTurn() {
			c.Title = DeriveTitle(content)
		}
		c.Messages = append(c.Messages, Message{Role: RoleUser, Content: content})
		return nil
	})
}

// AppendBotTurn adds a bot message to thread id, or to the active thread
// when id is empty. Replies pass the id of the thread that was asked, which
// may no longer be active by the time the answer arrives.
func (s *Store) AppendBotTurn(ctx context.Context, id, content string) (Conversation, error) {
	return s.update(ctx, id, func(c *Conversation) error {
		c.Messages = append(c.Messages, Message{Role: RoleBot, Content: content})
		return nil
	})
}

// update applies fn to a copy of thread id (the active thread when id is
// empty), bumps UpdatedAt, and persists.
func (s *Store) update(ctx context.Context, id string, fn func(*Conversation) error) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = s.active
	}
	idx := s.indexOf(id)
	if idx < 0 {
		return Conversation{}, errors.NewNotFound("conversation", id)
	}

	c := s.convs[idx].clone()
	if err := fn(&c); err != nil {
		return Conversation{}, err
	}
	c.UpdatedAt = s.now().Round(0)

	updated := s.snapshot()
	updated[idx] = c
	if err := s.save(ctx, updated, s.active); err != nil {
		return Conversation{}, err
	}
	s.convs = updated
	return c.clone(), nil
}

// Active returns the active thread.
func (s *Store) Active() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[s.indexOf(s.active)].clone()
}

// ActiveID returns the id of the active thread.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// List returns every thread, most recently updated first.
func (s *Store) List() []Conversation {
	s.mu.Lock()
	out := make([]Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.clone()
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Get returns the thread with id.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Conversation{}, false
	}
	return s.convs[idx].clone(), true
}

// ImportMode controls id collisions when importing threads.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"
	ImportModeSkip    ImportMode = "skip"
	ImportModeReplace ImportMode = "replace"
)

// ImportResult counts what Import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Replaced int `json:"replaced"`
}

// Import adds already-built threads, keeping their ids and history. The
// active thread is unchanged. Nothing is written if any thread collides
// under ImportModeError.
func (s *Store) Import(ctx context.Context, incoming []Conversation, mode ImportMode) (*ImportResult, error) {
	if mode == "" {
		mode = ImportModeError
	}
	if mode != ImportModeError && mode != ImportModeSkip && mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, skip, replace")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := s.snapshot()
	index := make(map[string]int, len(updated))
	for i, c := range updated {
		index[c.ID] = i
	}

	result := &ImportResult{}
	for i, c := range incoming {
		if strings.TrimSpace(c.ID) == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("conversation %d: id is required", i))
		}
		for j, m := range c.Messages {
			if m.Role != RoleUser && m.Role != RoleBot {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("conversation %d: message %d: role must be user or bot", i, j))
			}
		}
		if c.Title == "" {
			c.Title = DefaultTitle
		}
		c = c.clone()
		pos, exists := index[c.ID]
		switch {
		case !exists:
			index[c.ID] = len(updated)
			updated = append(updated, c)
			result.Imported++
		case mode == ImportModeSkip:
			result.Skipped++
		case mode == ImportModeReplace:
			updated[pos] = c
			result.Replaced++
		default:
			return nil, errors.NewConflict(fmt.Sprintf("conversation with id %q already exists", c.ID))
		}
	}

	if result.Imported+result.Replaced == 0 {
		return result, nil
	}
	if err := s.save(ctx, updated, s.active); err != nil {
		return nil, err
	}
	s.convs = updated
	return result, nil
}

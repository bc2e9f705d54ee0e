package convo

import (
	"errors"
	"sync"

	"vandvik/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("conversation not found")
	ErrNoMessages = errors.New("conversation has no messages")
)

// Store owns the conversation list (newest first) and the active pointer.
// Every mutation goes through a named operation; each operation is atomic
// under the store mutex, so concurrent stream callbacks never observe a
// half-applied update.
type Store struct {
	mu       sync.Mutex
	convos   []*models.Conversation
	activeID string
	greeting string
}

func NewStore(greeting string) *Store {
	if greeting == "" {
		greeting = models.DefaultGreeting
	}
	return &Store{greeting: greeting}
}

// Create seeds a fresh conversation with the companion greeting, prepends it
// and makes it active.
func (s *Store) Create() models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Store) createLocked() models.Conversation {
	c := &models.Conversation{
		ID:    uuid.NewString(),
		Title: models.DefaultTitle,
		Messages: []models.Message{
			{Author: models.AuthorCompanion, Text: s.greeting},
		},
	}
	s.convos = append([]*models.Conversation{c}, s.convos...)
	s.activeID = c.ID
	return c.Clone()
}

// Select is a no-op when the id is absent.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return false
	}
	s.activeID = id
	return true
}

// Delete removes the conversation. When the active one is deleted the first
// remaining entry becomes active; an empty list yields a fresh conversation,
// returned to the caller so it can rebind. The active pointer never ends up
// referencing a removed id.
func (s *Store) Delete(id string) (created *models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, c := range s.convos {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	s.convos = append(s.convos[:idx], s.convos[idx+1:]...)
	if s.activeID != id {
		return nil
	}
	if len(s.convos) > 0 {
		s.activeID = s.convos[0].ID
		return nil
	}
	c := s.createLocked()
	return &c
}

// AppendMessages appends to the named conversation as one atomic update.
// A deleted conversation drops the update (mid-stream delete race).
func (s *Store) AppendMessages(id string, msgs ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	c.Messages = append(c.Messages, msgs...)
	return nil
}

// MutateLastMessage replaces the text of the final message only.
func (s *Store) MutateLastMessage(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	if len(c.Messages) == 0 {
		return ErrNoMessages
	}
	c.Messages[len(c.Messages)-1].Text = text
	return nil
}

// TruncateTail removes the n most recently appended messages.
func (s *Store) TruncateTail(id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	if n > len(c.Messages) {
		n = len(c.Messages)
	}
	c.Messages = c.Messages[:len(c.Messages)-n]
	return nil
}

func (s *Store) SetTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return ErrNotFound
	}
	c.Title = title
	return nil
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Active returns a copy of the active conversation.
func (s *Store) Active() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(s.activeID)
	if c == nil {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

func (s *Store) Get(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

// List snapshots every conversation, newest first.
func (s *Store) List() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := make([]models.Conversation, len(s.convos))
	for i, c := range s.convos {
		resp[i] = c.Clone()
	}
	return resp
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convos)
}

// Replace swaps in a persisted conversation list and activates the first
// (most recent) entry. An empty list leaves the store untouched.
func (s *Store) Replace(convos []models.Conversation) {
	if len(convos) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convos = make([]*models.Conversation, len(convos))
	for i := range convos {
		c := convos[i].Clone()
		s.convos[i] = &c
	}
	s.activeID = s.convos[0].ID
}

func (s *Store) findLocked(id string) *models.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.convos {
		if c.ID == id {
			return c
		}
	}
	return nil
}

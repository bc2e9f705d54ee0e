package storage

import (
	"log/slog"
	"sync"
	"time"

	"vandvik/models"

	"github.com/bep/debounce"
)

// DebouncedSaver coalesces rapid snapshot requests (every stream fragment
// mutates the list) into one write after a quiet period.
type DebouncedSaver struct {
	store     SnapshotStore
	logger    *slog.Logger
	debounced func(func())

	mu      sync.Mutex
	pending []models.Conversation
}

func NewDebouncedSaver(store SnapshotStore, logger *slog.Logger, wait time.Duration) *DebouncedSaver {
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	return &DebouncedSaver{
		store:     store,
		logger:    logger,
		debounced: debounce.New(wait),
	}
}

func (s *DebouncedSaver) Save(convos []models.Conversation) {
	s.mu.Lock()
	s.pending = convos
	s.mu.Unlock()
	s.debounced(s.flush)
}

// Flush writes the latest snapshot immediately (shutdown path).
func (s *DebouncedSaver) Flush() {
	s.flush()
}

func (s *DebouncedSaver) flush() {
	s.mu.Lock()
	convos := s.pending
	s.pending = nil
	s.mu.Unlock()
	if convos == nil {
		return
	}
	if err := s.store.SaveConversations(convos); err != nil {
		s.logger.Warn("failed to persist conversations", "error", err)
	}
}

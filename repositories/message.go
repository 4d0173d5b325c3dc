package repositories

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"
)

var _ contract.IMessageStore = (*MessageStore)(nil)

// MessageStore keeps the ordered message log in memory.
// Every operation runs under a single lock; ids are allocated under the
// same lock so two concurrent appends never share an id.
type MessageStore struct {
	mu       sync.RWMutex
	log      *slog.Logger
	lastID   domain.MessageID
	messages []domain.Message // sorted by ID
	now      func() time.Time
}

func NewMessageStore(log *slog.Logger) *MessageStore {
	return &MessageStore{log: log, now: time.Now}
}

// WithClock replaces the time source, mostly for tests.
func (s *MessageStore) WithClock(now func() time.Time) *MessageStore {
	s.now = now
	return s
}

func (s *MessageStore) Append(content, author string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	message := domain.Message{
		ID:        s.lastID,
		Content:   content,
		Author:    author,
		CreatedAt: stamp(s.now()),
	}
	s.messages = append(s.messages, message)
	return message, nil
}

func (s *MessageStore) FindByID(id domain.MessageID) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexOf(id)
	if !ok {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, errors.ErrMessageNotFound)
	}
	return s.messages[idx], nil
}

func (s *MessageStore) Update(id domain.MessageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf(id)
	if !ok {
		return fmt.Errorf("message %d: %w", id, errors.ErrMessageNotFound)
	}
	s.messages[idx].Content = content
	return nil
}

func (s *MessageStore) Delete(id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexOf(id)
	if !ok {
		return fmt.Errorf("message %d: %w", id, errors.ErrMessageNotFound)
	}
	s.messages = slices.Delete(s.messages, idx, idx+1)
	return nil
}

func (s *MessageStore) UpdateByAuthor(id domain.MessageID, requester, content string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.authorize(id, requester)
	if err != nil {
		return domain.Message{}, err
	}
	s.messages[idx].Content = content
	return s.messages[idx], nil
}

func (s *MessageStore) DeleteByAuthor(id domain.MessageID, requester string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.authorize(id, requester)
	if err != nil {
		return domain.Message{}, err
	}
	deleted := s.messages[idx]
	s.messages = slices.Delete(s.messages, idx, idx+1)
	return deleted, nil
}

// All returns a copy of the log in creation order.
func (s *MessageStore) All() ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages), nil
}

func (s *MessageStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

// authorize must be called with the write lock held.
func (s *MessageStore) authorize(id domain.MessageID, requester string) (int, error) {
	idx, ok := s.indexOf(id)
	if !ok {
		return 0, fmt.Errorf("message %d: %w", id, errors.ErrMessageNotFound)
	}
	if !s.messages[idx].IsAuthoredBy(requester) {
		s.log.Debug("Authorship mismatch",
			"message_id", id, "author", s.messages[idx].Author, "requester", requester)
		return 0, fmt.Errorf("message %d: %w", id, errors.ErrNotAuthor)
	}
	return idx, nil
}

func (s *MessageStore) indexOf(id domain.MessageID) (int, bool) {
	return slices.BinarySearchFunc(s.messages, id, func(m domain.Message, target domain.MessageID) int {
		switch {
		case m.ID < target:
			return -1
		case m.ID > target:
			return 1
		default:
			return 0
		}
	})
}

// stamp truncates to the millisecond precision exposed on the wire.
func stamp(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

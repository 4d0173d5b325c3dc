package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/errors"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ contract.IMessageStore = (*BadgerMessageStore)(nil)

const (
	messagePrefix       = "msg:"
	sequenceKey         = "seq:msg"
	sequenceBandwidth   = 100
	maxConflictAttempts = 5
)

// BadgerMessageStore keeps the message log in a BadgerDB instance.
// Open the database with WithInMemory(true) to keep messages process local.
type BadgerMessageStore struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
	now func() time.Time
}

func NewBadgerMessageStore(db *badger.DB, log *slog.Logger) (*BadgerMessageStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerMessageStore{db: db, seq: seq, log: log, now: time.Now}, nil
}

func (s *BadgerMessageStore) WithClock(now func() time.Time) *BadgerMessageStore {
	s.now = now
	return s
}

// Close releases the leased id range. The database itself is owned by the caller.
func (s *BadgerMessageStore) Close() error {
	return s.seq.Release()
}

// Append stores a new message.
// The key is formatted as "msg:{id_padded}" so a prefix scan returns
// messages in creation order.
func (s *BadgerMessageStore) Append(content, author string) (domain.Message, error) {
	next, err := s.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("allocate message id: %w", err)
	}
	message := domain.Message{
		ID:        domain.MessageID(next + 1), // sequences start at 0
		Content:   content,
		Author:    author,
		CreatedAt: stamp(s.now()),
	}
	bytes, err := encodeMessage(message)
	if err != nil {
		return domain.Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ID), bytes)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

func (s *BadgerMessageStore) FindByID(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		message, err = getMessage(txn, id)
		return err
	})
	return message, err
}

func (s *BadgerMessageStore) Update(id domain.MessageID, content string) error {
	return s.update(func(txn *badger.Txn) error {
		message, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		message.Content = content
		return setMessage(txn, message)
	})
}

func (s *BadgerMessageStore) Delete(id domain.MessageID) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := getMessage(txn, id); err != nil {
			return err
		}
		return txn.Delete(messageKey(id))
	})
}

func (s *BadgerMessageStore) UpdateByAuthor(id domain.MessageID, requester, content string) (domain.Message, error) {
	var updated domain.Message
	err := s.update(func(txn *badger.Txn) error {
		message, err := authorize(txn, id, requester)
		if err != nil {
			return err
		}
		message.Content = content
		updated = message
		return setMessage(txn, message)
	})
	return updated, err
}

func (s *BadgerMessageStore) DeleteByAuthor(id domain.MessageID, requester string) (domain.Message, error) {
	var deleted domain.Message
	err := s.update(func(txn *badger.Txn) error {
		message, err := authorize(txn, id, requester)
		if err != nil {
			return err
		}
		deleted = message
		return txn.Delete(messageKey(id))
	})
	return deleted, err
}

// All retrieves every message with a forward prefix scan.
func (s *BadgerMessageStore) All() ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

func (s *BadgerMessageStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// update retries a read-write transaction when Badger detects a conflicting commit.
func (s *BadgerMessageStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		err = s.db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func authorize(txn *badger.Txn, id domain.MessageID, requester string) (domain.Message, error) {
	message, err := getMessage(txn, id)
	if err != nil {
		return domain.Message{}, err
	}
	if !message.IsAuthoredBy(requester) {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, errors.ErrNotAuthor)
	}
	return message, nil
}

func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, fmt.Errorf("message %d: %w", id, errors.ErrMessageNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err = item.Value(func(value []byte) error {
		message, err = decodeMessage(value)
		return err
	})
	return message, err
}

func setMessage(txn *badger.Txn, message domain.Message) error {
	bytes, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(message.ID), bytes)
}

func messageKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%019d", messagePrefix, id))
}

// encodeMessage stores a message as a protobuf Struct.
// Numbers travel as float64, exact for ids and millisecond timestamps below 2^53.
func encodeMessage(message domain.Message) ([]byte, error) {
	record, err := structpb.NewStruct(map[string]any{
		"id":        int64(message.ID),
		"content":   message.Content,
		"author":    message.Author,
		"timestamp": message.Timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode message %d: %w", message.ID, err)
	}
	return proto.Marshal(record)
}

func decodeMessage(value []byte) (domain.Message, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(value, &record); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	fields := record.GetFields()
	return domain.Message{
		ID:        domain.MessageID(fields["id"].GetNumberValue()),
		Content:   fields["content"].GetStringValue(),
		Author:    fields["author"].GetStringValue(),
		CreatedAt: time.UnixMilli(int64(fields["timestamp"].GetNumberValue())),
	}, nil
}

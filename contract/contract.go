//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"groupchat/domain"
	"groupchat/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Connection is one live transport session.
// Sends never block indefinitely: a stalled peer reports an error instead.
// SendBatch queues payloads as one unit that keeps their order.
type Connection interface {
	ID() string
	Send(payload []byte) error
	SendBatch(payloads [][]byte) error
}

// SessionHandler receives the lifecycle events of the transport.
type SessionHandler interface {
	OnOpen(conn Connection)
	OnMessage(conn Connection, raw []byte)
	OnClose(conn Connection)
	OnError(conn Connection, err error)
}

type IRegistry interface {
	Register(conn Connection, name string) error
	Unregister(conn Connection) (string, bool)
	LookupName(conn Connection) (string, bool)
	ListNames() []string
	Connections() []Connection
}

type IMessageStore interface {
	Append(content, author string) (domain.Message, error)
	FindByID(id domain.MessageID) (domain.Message, error)
	Update(id domain.MessageID, content string) error
	Delete(id domain.MessageID) error
	All() ([]domain.Message, error)
	Count() (int, error)
	// UpdateByAuthor and DeleteByAuthor check authorship and mutate in one critical section.
	UpdateByAuthor(id domain.MessageID, requester, content string) (domain.Message, error)
	DeleteByAuthor(id domain.MessageID, requester string) (domain.Message, error)
}

type IBroadcaster interface {
	Whisper(conn Connection, events ...event.Event)
	Broadcast(e event.Event)
}

// ContentFilter rewrites posted content, returning the matched words.
type ContentFilter interface {
	Censor(content string) (string, []string)
}

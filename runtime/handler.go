// Package runtime holds the chat core: who is connected, what was said,
// and how state changes reach every connection.
package runtime

import (
	goerrors "errors"
	"log/slog"
	"sync"

	"groupchat/contract"
	"groupchat/domain"
	"groupchat/domain/event"
	"groupchat/errors"

	"github.com/samber/lo"
)

var _ contract.SessionHandler = (*ProtocolHandler)(nil)

// ProtocolHandler is the protocol state machine.
//
// It holds no chat state itself. Decoding and validation run concurrently
// for every connection; the store mutation and the enqueueing of the
// resulting envelopes run under seq, so every connection observes
// envelopes in the order actions completed.
type ProtocolHandler struct {
	seq         sync.Mutex
	log         *slog.Logger
	registry    contract.IRegistry
	store       contract.IMessageStore
	broadcaster contract.IBroadcaster
	filter      contract.ContentFilter
}

func NewProtocolHandler(log *slog.Logger, registry contract.IRegistry,
	store contract.IMessageStore, broadcaster contract.IBroadcaster) *ProtocolHandler {
	return &ProtocolHandler{
		log:         log,
		registry:    registry,
		store:       store,
		broadcaster: broadcaster,
	}
}

// WithContentFilter censors added and updated content before it is stored.
func (h *ProtocolHandler) WithContentFilter(filter contract.ContentFilter) *ProtocolHandler {
	h.filter = filter
	return h
}

func (h *ProtocolHandler) OnOpen(conn contract.Connection) {
	h.log.Debug("Connection opened", "conn_id", conn.ID())
}

func (h *ProtocolHandler) OnMessage(conn contract.Connection, raw []byte) {
	h.Dispatch(conn, raw)
}

func (h *ProtocolHandler) OnClose(conn contract.Connection) {
	h.Disconnect(conn)
}

func (h *ProtocolHandler) OnError(conn contract.Connection, err error) {
	h.log.Error("Transport error", "conn_id", conn.ID(), "error", err)
}

// Dispatch decodes one inbound envelope, executes it and applies its outcome.
// Failures never escape: the connection stays usable for the next envelope.
func (h *ProtocolHandler) Dispatch(conn contract.Connection, raw []byte) Outcome {
	cmd, err := domain.DecodeCommand(raw)
	if err != nil {
		outcome := failed("", err)
		h.report(conn, outcome)
		return outcome
	}
	return h.Execute(conn, cmd)
}

// Execute runs an already decoded command.
func (h *ProtocolHandler) Execute(conn contract.Connection, cmd domain.Command) Outcome {
	if err := cmd.Validate(); err != nil {
		outcome := h.rejected(cmd, err)
		h.apply(conn, outcome)
		h.report(conn, outcome)
		return outcome
	}

	h.seq.Lock()
	outcome := h.execute(conn, cmd)
	h.apply(conn, outcome)
	h.seq.Unlock()

	h.report(conn, outcome)
	return outcome
}

// Disconnect frees the name held by conn and announces the departure.
// A connection that never chose a name leaves silently.
func (h *ProtocolHandler) Disconnect(conn contract.Connection) Outcome {
	h.seq.Lock()
	defer h.seq.Unlock()

	name, ok := h.registry.Unregister(conn)
	if !ok {
		h.log.Debug("Anonymous connection closed", "conn_id", conn.ID())
		return Outcome{}
	}

	outcome := succeeded("", nil, event.ParticipantLeft{Username: name})
	h.apply(conn, outcome)
	h.log.Info("Participant left", "conn_id", conn.ID(), "username", name)
	return outcome
}

func (h *ProtocolHandler) execute(conn contract.Connection, cmd domain.Command) Outcome {
	switch c := cmd.(type) {
	case domain.ChooseName:
		return h.chooseName(conn, c)
	case domain.AddMessage:
		return h.addMessage(conn, c)
	case domain.DeleteMessage:
		return h.deleteMessage(conn, c)
	case domain.UpdateMessage:
		return h.updateMessage(conn, c)
	case domain.ListParticipants:
		return succeeded(c.Action(), []event.Event{event.ParticipantList{Names: h.registry.ListNames()}})
	case domain.Unrecognized:
		return failed(c.Action(), c.Validate())
	default:
		return failed(cmd.Action(), errors.ErrUnknownAction)
	}
}

// chooseName registers the name, replays the whole history to the newcomer
// and announces the arrival. Registration and the history snapshot happen
// under seq, so no message is both replayed and broadcast to the newcomer.
// Repeating the name already held is a no-op.
func (h *ProtocolHandler) chooseName(conn contract.Connection, cmd domain.ChooseName) Outcome {
	if current, ok := h.registry.LookupName(conn); ok && current == cmd.Username {
		h.log.Debug("Name already held", "conn_id", conn.ID(), "username", current)
		return succeeded(cmd.Action(), nil)
	}
	if err := h.registry.Register(conn, cmd.Username); err != nil {
		return failed(cmd.Action(), err, alertFor(cmd.Action(), err))
	}

	history, err := h.store.All()
	if err != nil {
		h.log.Error("Failed to load history", "conn_id", conn.ID(), "error", err)
	}
	replay := lo.Map(history, func(m domain.Message, _ int) event.Event {
		return event.MessagePosted{Message: m}
	})
	return succeeded(cmd.Action(), replay, event.ParticipantJoined{Username: cmd.Username})
}

func (h *ProtocolHandler) addMessage(conn contract.Connection, cmd domain.AddMessage) Outcome {
	author := h.requester(conn, cmd.Username)
	if author == "" {
		return failed(cmd.Action(), errors.ErrEmptyName)
	}

	message, err := h.store.Append(h.censor(cmd.Content), author)
	if err != nil {
		return failed(cmd.Action(), err)
	}
	return succeeded(cmd.Action(), nil, event.MessagePosted{Message: message})
}

func (h *ProtocolHandler) deleteMessage(conn contract.Connection, cmd domain.DeleteMessage) Outcome {
	requester := h.requester(conn, cmd.Username)
	if _, err := h.store.DeleteByAuthor(cmd.ID, requester); err != nil {
		return failed(cmd.Action(), err, alertFor(cmd.Action(), err))
	}
	return succeeded(cmd.Action(), nil, event.MessageDeleted{ID: cmd.ID, By: requester})
}

func (h *ProtocolHandler) updateMessage(conn contract.Connection, cmd domain.UpdateMessage) Outcome {
	requester := h.requester(conn, cmd.Username)
	message, err := h.store.UpdateByAuthor(cmd.ID, requester, h.censor(cmd.Content))
	if err != nil {
		return failed(cmd.Action(), err, alertFor(cmd.Action(), err))
	}
	return succeeded(cmd.Action(), nil, event.MessageUpdated{
		ID:      message.ID,
		Content: message.Content,
		Author:  message.Author,
	})
}

// rejected builds the outcome of a command that failed validation.
func (h *ProtocolHandler) rejected(cmd domain.Command, err error) Outcome {
	if u, ok := cmd.(domain.Unrecognized); ok {
		h.log.Debug("Unknown action", "tag", u.Tag, "raw", u.Raw)
	}
	return failed(cmd.Action(), err, alertFor(cmd.Action(), err))
}

// requester resolves who is acting. A registered connection always acts
// under its registered name; an anonymous one under the name it claims.
func (h *ProtocolHandler) requester(conn contract.Connection, claimed string) string {
	if name, ok := h.registry.LookupName(conn); ok {
		return name
	}
	return claimed
}

func (h *ProtocolHandler) censor(content string) string {
	if h.filter == nil {
		return content
	}
	censored, words := h.filter.Censor(content)
	if len(words) > 0 {
		h.log.Debug("Content censored", "words", len(words))
	}
	return censored
}

func (h *ProtocolHandler) apply(conn contract.Connection, outcome Outcome) {
	if len(outcome.Whisper) > 0 {
		h.broadcaster.Whisper(conn, outcome.Whisper...)
	}
	for _, e := range outcome.Broadcast {
		h.broadcaster.Broadcast(e)
	}
}

func (h *ProtocolHandler) report(conn contract.Connection, outcome Outcome) {
	attrs := []any{"conn_id", conn.ID(), "action", outcome.Action}
	switch outcome.Kind {
	case errors.KindNone:
		h.log.Debug("Action completed", attrs...)
	case errors.KindValidation:
		h.log.Warn("Invalid envelope", append(attrs, "error", outcome.Err)...)
	case errors.KindConflict, errors.KindAuthorization:
		h.log.Info("Action refused", append(attrs, "kind", outcome.Kind.String(), "error", outcome.Err)...)
	case errors.KindNotFound:
		h.log.Warn("Message not found", append(attrs, "error", outcome.Err)...)
	default:
		h.log.Warn("Action failed", append(attrs, "kind", outcome.Kind.String(), "error", outcome.Err)...)
	}
}

// alertFor returns the alert whispered back for failures the requester
// should hear about. Not found and malformed requests stay silent.
func alertFor(action domain.Action, err error) event.Event {
	switch errors.KindOf(err) {
	case errors.KindConflict:
		if action == domain.ActionChooseName && goerrors.Is(err, errors.ErrAlreadyRegistered) {
			return event.Alert{Text: event.AlertAlreadyRegistered}
		}
		return event.Alert{Text: event.AlertNameTaken}
	case errors.KindAuthorization:
		if action == domain.ActionUpdateMessage {
			return event.Alert{Text: event.AlertUpdateUnauthorized}
		}
		return event.Alert{Text: event.AlertDeleteUnauthorized}
	case errors.KindValidation:
		if action == domain.ActionChooseName {
			return event.Alert{Text: event.AlertNameEmpty}
		}
	}
	return nil
}

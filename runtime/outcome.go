package runtime

import (
	"groupchat/domain"
	"groupchat/domain/event"
	"groupchat/errors"

	"github.com/samber/lo"
)

// Outcome is the explicit result of one protocol action.
// The handler turns it into network effects: whispers go to the requester
// first, then broadcasts go to every registered connection.
type Outcome struct {
	Action    domain.Action
	Kind      errors.Kind
	Err       error
	Whisper   []event.Event
	Broadcast []event.Event
}

func succeeded(action domain.Action, whisper []event.Event, broadcast ...event.Event) Outcome {
	return Outcome{Action: action, Kind: errors.KindNone, Whisper: whisper, Broadcast: broadcast}
}

// failed drops nil whispers, so silent failures can pass alertFor's result as is.
func failed(action domain.Action, err error, whisper ...event.Event) Outcome {
	whisper = lo.Filter(whisper, func(e event.Event, _ int) bool { return e != nil })
	return Outcome{Action: action, Kind: errors.KindOf(err), Err: err, Whisper: whisper}
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

package runtime

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"groupchat/domain"
	"groupchat/domain/event"
	"groupchat/errors"
	"groupchat/mocks"
	"groupchat/repositories"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	handler  *ProtocolHandler
	registry *Registry
	store    *repositories.MessageStore
}

func newFixture() fixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	store := repositories.NewMessageStore(log)
	handler := NewProtocolHandler(log, registry, store, NewBroadcaster(log, registry))
	return fixture{handler: handler, registry: registry, store: store}
}

func (f fixture) send(conn *recordingConn, raw string) Outcome {
	return f.handler.Dispatch(conn, []byte(raw))
}

func (f fixture) join(t *testing.T, name string) *recordingConn {
	t.Helper()
	conn := newRecordingConn()
	f.handler.OnOpen(conn)
	outcome := f.send(conn, fmt.Sprintf(`{"action":"username","username":%q}`, name))
	require.True(t, outcome.OK(), "join %s: %v", name, outcome.Err)
	return conn
}

func messageIDs(t *testing.T, conn *recordingConn) []int64 {
	t.Helper()
	var ids []int64
	for _, f := range conn.received(t) {
		if f["action"] == event.ActionMessage {
			ids = append(ids, int64(f["ID"].(float64)))
		}
	}
	return ids
}

func TestProtocolHandler_Scenario(t *testing.T) {
	req := require.New(t)
	f := newFixture()

	// Given alice joins and posts "hi"
	alice := f.join(t, "alice")
	req.Equal([]string{event.ActionJoin}, alice.actions(t))
	outcome := f.send(alice, `{"action":"add","message":"hi","username":"alice"}`)
	req.True(outcome.OK())
	posted := alice.received(t)[1]
	req.Equal(float64(1), posted["ID"])
	req.Equal("hi", posted["message"])
	req.Equal("alice", posted["username"])
	t1 := posted["timestamp"]

	// When bob joins
	alice.reset()
	bob := f.join(t, "bob")

	// Then bob's replay holds exactly alice's message, before the join notice
	frames := bob.received(t)
	req.Len(frames, 2)
	req.Equal(frame{"action": "message", "ID": float64(1), "message": "hi", "timestamp": t1, "username": "alice"}, frames[0])
	req.Equal("join", frames[1]["action"])
	req.Equal("bob", frames[1]["username"])
	req.Equal([]string{event.ActionJoin}, alice.actions(t))

	// When bob posts "yo"
	bob.reset()
	alice.reset()
	req.True(f.send(bob, `{"action":"add","message":"yo","username":"bob"}`).OK())
	req.Equal([]int64{2}, messageIDs(t, alice))
	req.Equal([]int64{2}, messageIDs(t, bob))

	// When alice deletes her message
	bob.reset()
	alice.reset()
	req.True(f.send(alice, `{"action":"del","id":"1","username":"alice"}`).OK())
	for _, conn := range []*recordingConn{alice, bob} {
		received := conn.received(t)
		req.Len(received, 1)
		req.Equal("del", received[0]["action"])
		req.Equal(float64(1), received[0]["id"])
	}

	// When alice tries to delete bob's message
	bob.reset()
	alice.reset()
	outcome = f.send(alice, `{"action":"del","id":"2","username":"alice"}`)

	// Then only alice is alerted and message 2 survives
	req.Equal(errors.KindAuthorization, outcome.Kind)
	received := alice.received(t)
	req.Len(received, 1)
	req.Equal(frame{"action": "alert", "message": event.AlertDeleteUnauthorized}, received[0])
	req.Empty(bob.received(t))
	_, err := f.store.FindByID(2)
	req.NoError(err)
}

func TestProtocolHandler_NameTaken(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	sam := f.join(t, "sam")
	sam.reset()
	impostor := newRecordingConn()

	outcome := f.send(impostor, `{"action":"username","username":"sam"}`)

	req.Equal(errors.KindConflict, outcome.Kind)
	req.Equal([]frame{{"action": "alert", "message": event.AlertNameTaken}}, impostor.received(t))
	req.Empty(sam.received(t))
	req.Equal([]string{"sam"}, f.registry.ListNames())
}

func TestProtocolHandler_EmptyName(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	conn := newRecordingConn()

	outcome := f.send(conn, `{"action":"username","username":"   "}`)

	req.Equal(errors.KindValidation, outcome.Kind)
	req.Equal([]frame{{"action": "alert", "message": event.AlertNameEmpty}}, conn.received(t))
	req.Empty(f.registry.ListNames())
}

func TestProtocolHandler_SecondNameIsRefused(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	alice.reset()

	outcome := f.send(alice, `{"action":"username","username":"alicia"}`)

	req.Equal(errors.KindConflict, outcome.Kind)
	req.Equal([]frame{{"action": "alert", "message": event.AlertAlreadyRegistered}}, alice.received(t))
	req.Equal([]string{"alice"}, f.registry.ListNames())
}

func TestProtocolHandler_SameNameAgainIsNoop(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	req.True(f.send(alice, `{"action":"add","message":"hi","username":"alice"}`).OK())
	alice.reset()
	bob.reset()

	// When alice claims her own name again
	outcome := f.send(alice, `{"action":"username","username":"alice"}`)

	// Then it succeeds with no replay, no alert and no join notice
	req.True(outcome.OK())
	req.Empty(outcome.Whisper)
	req.Empty(outcome.Broadcast)
	req.Empty(alice.received(t))
	req.Empty(bob.received(t))
	req.ElementsMatch([]string{"alice", "bob"}, f.registry.ListNames())
}

func TestProtocolHandler_ReplayLongerThanQueue(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	const posted = 200
	for i := 0; i < posted; i++ {
		msg := fmt.Sprintf(`{"action":"add","message":"m%d","username":"alice"}`, i)
		req.True(f.send(alice, msg).OK())
	}

	// Given a newcomer whose queue holds far fewer slots than the history
	bob := newBoundedConn(4)

	// When bob joins
	outcome := f.handler.Dispatch(bob, []byte(`{"action":"username","username":"bob"}`))

	// Then every stored message arrives in order, followed by his own join
	req.True(outcome.OK())
	frames := bob.received(t)
	req.Len(frames, posted+1)
	for i := 0; i < posted; i++ {
		req.Equal(event.ActionMessage, frames[i]["action"])
		req.Equal(float64(i+1), frames[i]["ID"])
		req.Equal(fmt.Sprintf("m%d", i), frames[i]["message"])
	}
	req.Equal(event.ActionJoin, frames[posted]["action"])
	req.Equal("bob", frames[posted]["username"])
}

func TestProtocolHandler_NotFoundIsSilent_NotAuthorizedAlerts(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	req.True(f.send(bob, `{"action":"add","message":"mine","username":"bob"}`).OK())
	alice.reset()
	bob.reset()

	// Not found: logged only
	outcome := f.send(alice, `{"action":"update","id":"99","updatedMessage":"x","username":"alice"}`)
	req.Equal(errors.KindNotFound, outcome.Kind)
	req.Empty(outcome.Whisper)
	req.Empty(alice.received(t))

	outcome = f.send(alice, `{"action":"del","id":"99","username":"alice"}`)
	req.Equal(errors.KindNotFound, outcome.Kind)
	req.Empty(alice.received(t))

	// Not authorized: alert to requester only
	outcome = f.send(alice, `{"action":"update","id":"1","updatedMessage":"stolen","username":"alice"}`)
	req.Equal(errors.KindAuthorization, outcome.Kind)
	req.Equal([]frame{{"action": "alert", "message": event.AlertUpdateUnauthorized}}, alice.received(t))
	req.Empty(bob.received(t))

	found, err := f.store.FindByID(1)
	req.NoError(err)
	req.Equal("mine", found.Content)
}

func TestProtocolHandler_Update(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	req.True(f.send(alice, `{"action":"add","message":"helo","username":"alice"}`).OK())
	original, err := f.store.FindByID(1)
	req.NoError(err)
	alice.reset()
	bob.reset()

	outcome := f.send(alice, `{"action":"update","id":1,"updatedMessage":"hello","username":"alice"}`)

	req.True(outcome.OK())
	expected := frame{"action": "update", "message": "hello", "username": "alice", "id": float64(1)}
	req.Equal([]frame{expected}, alice.received(t))
	req.Equal([]frame{expected}, bob.received(t))
	updated, err := f.store.FindByID(1)
	req.NoError(err)
	req.Equal("hello", updated.Content)
	req.Equal(original.CreatedAt, updated.CreatedAt)
}

func TestProtocolHandler_RegisteredConnectionCannotImpersonate(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	req.True(f.send(alice, `{"action":"add","message":"hi","username":"alice"}`).OK())
	bob.reset()

	// When bob claims to be alice
	outcome := f.send(bob, `{"action":"del","id":"1","username":"alice"}`)

	// Then he is still bob
	req.Equal(errors.KindAuthorization, outcome.Kind)
	req.Equal([]string{event.ActionAlert}, bob.actions(t))
	count, err := f.store.Count()
	req.NoError(err)
	req.Equal(1, count)
}

func TestProtocolHandler_AnonymousAuthorship(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	watcher := f.join(t, "watcher")
	watcher.reset()
	anonymous := newRecordingConn()

	// An anonymous connection acts under the claimed name
	req.True(f.send(anonymous, `{"action":"add","message":"boo","username":"ghost"}`).OK())
	frames := watcher.received(t)
	req.Len(frames, 1)
	req.Equal("ghost", frames[0]["username"])
	req.Empty(anonymous.received(t))

	// Without any name there is no author
	outcome := f.send(anonymous, `{"action":"add","message":"boo"}`)
	req.Equal(errors.KindValidation, outcome.Kind)
	req.Len(watcher.received(t), 1)
}

func TestProtocolHandler_MalformedEnvelopes(t *testing.T) {
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	req := require.New(t)
	req.True(f.send(alice, `{"action":"add","message":"keep","username":"alice"}`).OK())
	alice.reset()
	bob.reset()

	tests := []struct {
		name string
		raw  string
		kind errors.Kind
	}{
		{name: "Not JSON", raw: `not json`, kind: errors.KindValidation},
		{name: "Alphabetic id", raw: `{"action":"del","id":"one","username":"alice"}`, kind: errors.KindValidation},
		{name: "Zero id", raw: `{"action":"del","id":"0","username":"alice"}`, kind: errors.KindValidation},
		{name: "Empty add", raw: `{"action":"add","message":"","username":"alice"}`, kind: errors.KindValidation},
		{name: "Empty update", raw: `{"action":"update","id":"1","updatedMessage":"","username":"alice"}`, kind: errors.KindValidation},
		{name: "Unknown action", raw: `{"action":"dance"}`, kind: errors.KindUnknown},
		{name: "Missing action", raw: `{}`, kind: errors.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			outcome := f.send(alice, tt.raw)
			req.Equal(tt.kind, outcome.Kind)
			req.Empty(alice.received(t))
			req.Empty(bob.received(t))
		})
	}

	all, err := f.store.All()
	req.NoError(err)
	req.Len(all, 1)
	req.Equal("keep", all[0].Content)
}

func TestProtocolHandler_UnknownActionLogsRawEnvelope(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	registry := NewRegistry()
	handler := NewProtocolHandler(log, registry, repositories.NewMessageStore(log), NewBroadcaster(log, registry))
	conn := newRecordingConn()

	// When an envelope carries an action nobody knows
	outcome := handler.Dispatch(conn, []byte(`{"action":"dance","steps":3}`))

	// Then it is dropped silently, and the raw envelope lands in the log
	req.Equal(errors.KindUnknown, outcome.Kind)
	req.Empty(conn.received(t))
	req.Contains(buf.String(), `"msg":"Unknown action"`)
	req.Contains(buf.String(), `"tag":"dance"`)
	req.Contains(buf.String(), `steps`)
}

func TestProtocolHandler_ListParticipants(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	bob := f.join(t, "bob")
	alice := f.join(t, "alice")
	anonymous := newRecordingConn()
	alice.reset()
	bob.reset()

	req.True(f.send(anonymous, `{"action":"getParticipants"}`).OK())

	req.Equal([]frame{{"action": "participants", "participants": []any{"alice", "bob"}}}, anonymous.received(t))
	req.Empty(alice.received(t))
	req.Empty(bob.received(t))
}

func TestProtocolHandler_Disconnect(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	bob := f.join(t, "bob")
	anonymous := newRecordingConn()
	alice.reset()

	// When bob's transport closes
	f.handler.OnClose(bob)

	// Then alice hears he left and his name is free
	req.Equal([]frame{{"action": "left", "message": "bob left the group chat", "username": "bob", "id": float64(0)}}, alice.received(t))
	req.Equal([]string{"alice"}, f.registry.ListNames())

	// When an anonymous connection closes nobody is told
	alice.reset()
	outcome := f.handler.Disconnect(anonymous)
	req.Empty(outcome.Broadcast)
	req.Empty(alice.received(t))
}

func TestProtocolHandler_AuthorshipSurvivesDisconnection(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	alice := f.join(t, "alice")
	req.True(f.send(alice, `{"action":"add","message":"hi","username":"alice"}`).OK())
	f.handler.OnClose(alice)

	// A later connection presenting the same name is the author again
	again := f.join(t, "alice")
	req.True(f.send(again, `{"action":"update","id":"1","updatedMessage":"back","username":"alice"}`).OK())
	found, err := f.store.FindByID(1)
	req.NoError(err)
	req.Equal("back", found.Content)
}

func TestProtocolHandler_ConcurrentChooseName(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	first, second := newRecordingConn(), newRecordingConn()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	start := make(chan struct{})
	for i, conn := range []*recordingConn{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			outcomes[i] = f.send(conn, `{"action":"username","username":"sam"}`)
		}()
	}
	close(start)
	wg.Wait()

	winners := 0
	for i, outcome := range outcomes {
		if outcome.OK() {
			winners++
			continue
		}
		req.Equal(errors.KindConflict, outcome.Kind)
		loser := []*recordingConn{first, second}[i]
		req.Equal([]frame{{"action": "alert", "message": event.AlertNameTaken}}, loser.received(t))
	}
	req.Equal(1, winners)
	req.Equal([]string{"sam"}, f.registry.ListNames())
}

func TestProtocolHandler_ConcurrentPosts_SameOrderEverywhere(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	const writers, perWriter = 6, 40

	conns := make([]*recordingConn, writers)
	for i := range conns {
		conns[i] = f.join(t, fmt.Sprintf("user-%d", i))
	}
	for _, conn := range conns {
		conn.reset()
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				f.send(conn, fmt.Sprintf(`{"action":"add","message":"m%d-%d","username":"user-%d"}`, i, j, i))
			}
		}()
	}

	// A newcomer joins while everybody is talking
	var newcomer *recordingConn
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		newcomer = f.join(t, "newcomer")
	}()
	wg.Wait()

	reference := messageIDs(t, conns[0])
	req.Len(reference, writers*perWriter)
	for i := 1; i < len(reference); i++ {
		req.Less(reference[i-1], reference[i])
	}
	for _, conn := range conns[1:] {
		req.Equal(reference, messageIDs(t, conn))
	}

	// The newcomer sees every message exactly once, replay before its own join notice
	ids := messageIDs(t, newcomer)
	req.Equal(reference, ids)
	actions := newcomer.actions(t)
	joinAt := -1
	for i, action := range actions {
		if action == event.ActionJoin {
			joinAt = i
			break
		}
	}
	req.GreaterOrEqual(joinAt, 0)
	last := domain.MessageID(0)
	for _, fr := range newcomer.received(t)[:joinAt] {
		req.Equal(event.ActionMessage, fr["action"])
		id := domain.MessageID(fr["ID"].(float64))
		req.Greater(id, last)
		last = id
	}
}

func TestProtocolHandler_WithMocks(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	store := mocks.NewMockIMessageStore(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	filter := mocks.NewMockContentFilter(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	handler := NewProtocolHandler(log, registry, store, broadcaster).WithContentFilter(filter)

	at := time.UnixMilli(1_700_000_000_000)
	stored := domain.Message{ID: 3, Content: "you ****", Author: "alice", CreatedAt: at}

	// Given a registered connection posting a rude message
	conn.EXPECT().ID().Return("conn-1").AnyTimes()
	registry.EXPECT().LookupName(conn).Return("alice", true).Times(1)
	filter.EXPECT().Censor("you rude").Return("you ****", []string{"rude"}).Times(1)
	store.EXPECT().Append("you ****", "alice").Return(stored, nil).Times(1)
	broadcaster.EXPECT().Broadcast(event.MessagePosted{Message: stored}).Times(1)

	// When the envelope is dispatched
	outcome := handler.Dispatch(conn, []byte(`{"action":"add","message":"you rude","username":"mallory"}`))

	// Then the censored content is stored under the registered name
	req.True(outcome.OK())
	req.Equal([]event.Event{event.MessagePosted{Message: stored}}, outcome.Broadcast)
}

func TestProtocolHandler_StoreFailureOnDelete(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	store := mocks.NewMockIMessageStore(ctrl)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	handler := NewProtocolHandler(log, registry, store, broadcaster)

	// Given the message vanished between the client's view and the request
	conn.EXPECT().ID().Return("conn-1").AnyTimes()
	registry.EXPECT().LookupName(conn).Return("alice", true).Times(1)
	store.EXPECT().DeleteByAuthor(domain.MessageID(8), "alice").
		Return(domain.Message{}, fmt.Errorf("message 8: %w", errors.ErrMessageNotFound)).Times(1)
	// Then nothing is whispered nor broadcast
	broadcaster.EXPECT().Whisper(gomock.Any(), gomock.Any()).Times(0)
	broadcaster.EXPECT().Broadcast(gomock.Any()).Times(0)

	outcome := handler.Dispatch(conn, []byte(`{"action":"del","id":"8","username":"alice"}`))

	req.Equal(errors.KindNotFound, outcome.Kind)
}

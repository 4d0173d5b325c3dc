package e2e

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupchat/infrastructure/web"
	"groupchat/infrastructure/ws"
	"groupchat/repositories"
	"groupchat/runtime"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const readTimeout = 3 * time.Second

type BaseWsSuite struct {
	suite.Suite
	Config Config
	addr   string
	local  *httptest.Server
}

// SetupSuite loads the configuration and starts a local server when no
// address is configured.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	s.addr = s.Config.ChatAddr
	if s.addr != "" {
		return
	}
	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	registry := runtime.NewRegistry()
	store := repositories.NewMessageStore(log)
	handler := runtime.NewProtocolHandler(log, registry, store, runtime.NewBroadcaster(log, registry))
	s.local = httptest.NewServer(web.NewSocketRouter(log, ws.NewServer(log, handler, ws.DefaultOptions())))
	s.addr = "ws" + strings.TrimPrefix(s.local.URL, "http") + "/ws"
}

func (s *BaseWsSuite) TearDownSuite() {
	if s.local != nil {
		s.local.Close()
	}
}

// Peer is one client session seen from the test.
type Peer struct {
	s    *BaseWsSuite
	t    *testing.T
	name string
	conn *websocket.Conn
}

// Dial opens a session and prints a header naming the step.
func (s *BaseWsSuite) Dial(t *testing.T, name string) *Peer {
	header := fmt.Sprintf("  ====== %s connects ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	conn, _, err := websocket.DefaultDialer.Dial(s.addr, nil)
	s.Require().NoError(err, "Failed to connect to chat server at "+s.addr)
	t.Cleanup(func() { _ = conn.Close() })
	return &Peer{s: s, t: t, name: name, conn: conn}
}

func (p *Peer) Send(envelope map[string]any) {
	raw, err := json.Marshal(envelope)
	p.s.Require().NoError(err)
	if p.s.Config.DebugJSON {
		p.t.Logf("%s >>> %s", p.name, raw)
	}
	p.s.Require().NoError(p.conn.WriteMessage(websocket.TextMessage, raw))
}

// Next returns the next envelope received by the peer.
func (p *Peer) Next() map[string]any {
	p.s.Require().NoError(p.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := p.conn.ReadMessage()
	p.s.Require().NoError(err, "%s expected an envelope", p.name)
	if p.s.Config.DebugJSON {
		p.t.Logf("%s <<< %s", p.name, raw)
	}
	var envelope map[string]any
	p.s.Require().NoError(json.Unmarshal(raw, &envelope))
	return envelope
}

// Expect reads envelopes until one with the given action arrives.
// Envelopes produced by other suites sharing a remote server are skipped.
func (p *Peer) Expect(action string, match func(map[string]any) bool) map[string]any {
	for {
		envelope := p.Next()
		if envelope["action"] == action && (match == nil || match(envelope)) {
			return envelope
		}
	}
}

// Silent asserts nothing arrives for a short while. A timed out read
// breaks the connection, so Silent is the last call made on a peer.
func (p *Peer) Silent() {
	p.s.Require().NoError(p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, raw, err := p.conn.ReadMessage()
	p.s.Require().Error(err, "%s received unexpected %s", p.name, raw)
}

func (p *Peer) Close() {
	_ = p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = p.conn.Close()
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"groupchat/domain"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=ws://localhost:8080/ws"`
	Username      string `env:"CHAT_USERNAME,required=true"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerAddress, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	s := newSession(log, conn, config.Username, os.Stdout)
	fmt.Fprintln(os.Stdout, usage)
	if err := s.run(ctx, os.Stdin); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

// session pumps server envelopes to out and user lines to the server.
type session struct {
	log      *slog.Logger
	conn     *websocket.Conn
	username string
	out      io.Writer
	writeMu  sync.Mutex
}

func newSession(log *slog.Logger, conn *websocket.Conn, username string, out io.Writer) *session {
	return &session{log: log, conn: conn, username: domain.NormalizeName(username), out: &syncWriter{w: out}}
}

// run returns when the user quits, ctx ends, input closes or the server goes away.
func (s *session) run(ctx context.Context, in io.Reader) error {
	if err := s.send(outbound{Action: domain.ActionChooseName, Username: s.username}); err != nil {
		return fmt.Errorf("failed to choose username: %w", err)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- s.readLoop() }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.close()
			return nil
		case err := <-readErr:
			return err
		case line, ok := <-lines:
			if !ok {
				s.close()
				return nil
			}
			envelope, quit, err := parseInput(line, s.username)
			if quit {
				s.close()
				return nil
			}
			if err != nil {
				fmt.Fprintln(s.out, err)
				continue
			}
			if envelope == nil {
				continue
			}
			if err := s.send(*envelope); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

func (s *session) readLoop() error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				fmt.Fprintln(s.out, "Server closed the connection")
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}
		if err := render(s.out, data, s.username); err != nil {
			s.log.Warn("Failed to render envelope", "error", err)
		}
	}
}

func (s *session) send(envelope outbound) error {
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *session) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// syncWriter serializes writes coming from the reader and the input loop.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,required=true"`
	Host                 string        `env:"HOST,default=localhost"`
	WSPort               int           `env:"WS_PORT,default=8080"`
	HTTPPort             int           `env:"HTTP_PORT,default=8081"`
	GRPCPort             int           `env:"GRPC_PORT,default=8082"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=15s"`
	MaxMessageBytes      int64         `env:"MAX_MESSAGE_BYTES,default=65536"`
	MessageStore         string        `env:"MESSAGE_STORE,default=memory"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CensorCharacter      string        `env:"CENSOR_CHARACTER,default=*"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate catches values env decoding accepts but the server cannot run with.
func (c Config) Validate() error {
	if c.MessageStore != StoreMemory && c.MessageStore != StoreBadger {
		return fmt.Errorf("MESSAGE_STORE must be %q or %q, got %q", StoreMemory, StoreBadger, c.MessageStore)
	}
	if c.ConnectionBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.PingInterval <= 0 || c.WriteTimeout <= 0 || c.MetricInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL, WRITE_TIMEOUT and METRIC_INTERVAL must be positive")
	}
	if _, err := CharacterRune(c.CensorCharacter); err != nil {
		return err
	}
	return nil
}

// Words splits CENSORED_WORDS on commas, dropping blanks.
func (c Config) Words() []string {
	return lo.FilterMap(strings.Split(c.CensoredWords, ","), func(w string, _ int) (string, bool) {
		w = strings.TrimSpace(w)
		return w, w != ""
	})
}

func (c Config) SocketURL() string {
	return fmt.Sprintf("ws://%s:%d/ws", c.Host, c.WSPort)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CENSOR_CHARACTER must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

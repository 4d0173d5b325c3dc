package runtime

import (
	"encoding/json"
	"sync"
	"testing"

	"groupchat/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingConn keeps every payload it was asked to send.
type recordingConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func newRecordingConn() *recordingConn {
	return &recordingConn{id: uuid.NewString()}
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *recordingConn) SendBatch(payloads [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payloads...)
	return nil
}

// boundedConn behaves like a peer that never drains its queue: it accepts
// at most capacity sends, a batch counting as one.
type boundedConn struct {
	*recordingConn
	capacity int
	used     int
}

func newBoundedConn(capacity int) *boundedConn {
	return &boundedConn{recordingConn: newRecordingConn(), capacity: capacity}
}

func (c *boundedConn) Send(payload []byte) error {
	return c.SendBatch([][]byte{payload})
}

func (c *boundedConn) SendBatch(payloads [][]byte) error {
	c.mu.Lock()
	if c.used == c.capacity {
		c.mu.Unlock()
		return errors.ErrSendBufferFull
	}
	c.used++
	c.mu.Unlock()
	return c.recordingConn.SendBatch(payloads)
}

type frame map[string]any

func (c *recordingConn) received(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	res := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		res = append(res, f)
	}
	return res
}

func (c *recordingConn) actions(t *testing.T) []string {
	t.Helper()
	var res []string
	for _, f := range c.received(t) {
		res = append(res, f["action"].(string))
	}
	return res
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/petcare-core/internal/infrastructure/logging"
)

var fixedNow = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

// frame is a decoded outbound message.
type frame struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

// fakeConn records every frame sent to it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeConn) received(t *testing.T) []frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]frame, 0, len(c.frames))
	for _, data := range c.frames {
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		out = append(out, f)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, f := range c.received(t) {
		out = append(out, f.Type)
	}
	return out
}

func (c *fakeConn) waitFor(t *testing.T, n int) []frame {
	t.Helper()
	require.Eventually(t, func() bool { return c.count() >= n }, 2*time.Second, 5*time.Millisecond)
	return c.received(t)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// newAttached returns a broadcaster attached to a fresh registry with a
// fixed clock.
func newAttached() (*Broadcaster, *Registry) {
	b := NewBroadcaster(logging.Discard(), nil)
	b.now = func() time.Time { return fixedNow }
	r := NewRegistry()
	b.Attach(r)
	return b, r
}

func registerAll(r *Registry, conns ...*fakeConn) {
	for _, c := range conns {
		r.Register(c)
	}
}

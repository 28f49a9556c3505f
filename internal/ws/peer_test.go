package ws

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu     sync.Mutex
	events []string
	block  chan struct{}
}

func (c *recordingConn) ID() string { return "sid-1" }

func (c *recordingConn) Emit(event string, v ...interface{}) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *recordingConn) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func TestPeerPreservesOrder(t *testing.T) {
	conn := &recordingConn{}
	p := newPeer(conn, 8)
	defer p.close()

	want := []string{"roomInfo", "prepareGame", "countdown", "gameStarted"}
	for _, ev := range want {
		p.Emit(ev)
	}
	require.Eventually(t, func() bool { return len(conn.seen()) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, conn.seen())
	assert.Equal(t, "sid-1", p.ID())
}

func TestPeerNeverBlocksSender(t *testing.T) {
	conn := &recordingConn{block: make(chan struct{})}
	p := newPeer(conn, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			p.Emit("gameInfo", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a stalled connection")
	}
	p.close()
	close(conn.block)
}

func TestPeerDropsAfterClose(t *testing.T) {
	conn := &recordingConn{}
	p := newPeer(conn, 4)
	p.close()
	p.close()
	p.Emit("roomInfo")
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.seen())
}

type closingConn struct {
	*recordingConn
	closed atomic.Bool
}

func (c *closingConn) Close() error {
	c.closed.Store(true)
	return nil
}

func TestPeerWaitsForOneShotEvents(t *testing.T) {
	conn := &recordingConn{block: make(chan struct{})}
	p := newPeer(conn, 1)
	defer p.close()

	p.Emit("gameInfo", 0)
	p.Emit("gameInfo", 1)

	sent := make(chan struct{})
	go func() {
		p.Emit("gameStarted")
		close(sent)
	}()
	time.Sleep(50 * time.Millisecond)
	close(conn.block)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("gameStarted never queued")
	}
	require.Eventually(t, func() bool {
		seen := conn.seen()
		return len(seen) > 0 && seen[len(seen)-1] == "gameStarted"
	}, time.Second, time.Millisecond)
}

func TestPeerDisconnectsStalledClient(t *testing.T) {
	conn := &closingConn{recordingConn: &recordingConn{block: make(chan struct{})}}
	p := newPeer(conn, 1)
	defer close(conn.block)

	p.Emit("roomInfo")
	p.Emit("roomInfo")

	start := time.Now()
	p.Emit("endGameStats")
	assert.GreaterOrEqual(t, time.Since(start), deliverTimeout)
	assert.Less(t, time.Since(start), time.Second)

	require.Eventually(t, conn.closed.Load, time.Second, time.Millisecond)
	select {
	case <-p.done:
	default:
		t.Fatal("peer still open after stalling")
	}
}

package game

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/stretchr/testify/require"
)

// --- Conn ---

type emitted struct {
	event string
	args  []interface{}
}

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []emitted

	// onEmit runs after an event is recorded, on the emitting goroutine.
	onEmit func(event string)
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, v ...interface{}) {
	c.mu.Lock()
	c.events = append(c.events, emitted{event: event, args: v})
	hook := c.onEmit
	c.mu.Unlock()
	if hook != nil {
		hook(event)
	}
}

func (c *fakeConn) all(event string) []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []emitted
	for _, e := range c.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) count(event string) int { return len(c.all(event)) }

func (c *fakeConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.event)
	}
	return out
}

func (c *fakeConn) countdowns() []int {
	var out []int
	for _, e := range c.all(EventCountdown) {
		out = append(out, e.args[0].(int))
	}
	return out
}

func (c *fakeConn) lastGameInfo(t *testing.T) []GameInfo {
	evs := c.all(EventGameInfo)
	require.NotEmpty(t, evs)
	return evs[len(evs)-1].args[0].([]GameInfo)
}

func (c *fakeConn) endGameStats(t *testing.T) []EndGameStats {
	evs := c.all(EventEndGameStats)
	require.Len(t, evs, 1)
	return evs[0].args[0].([]EndGameStats)
}

// --- Tickers ---

type manualTicker struct {
	every time.Duration
	c     chan time.Time
	stops atomic.Int32
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.stops.Add(1) }

type manualTickers struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (m *manualTickers) Create(every time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{every: every, c: make(chan time.Time)}
	m.tickers = append(m.tickers, t)
	return t
}

func (m *manualTickers) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *manualTickers) last(t *testing.T) *manualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.tickers)
	return m.tickers[len(m.tickers)-1]
}

// fire delivers one tick and fails if no timer goroutine is listening.
func fire(t *testing.T, tk *manualTicker) {
	t.Helper()
	select {
	case tk.c <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("ticker is not being listened to")
	}
}

// tryFire delivers a tick if anyone is still listening.
func tryFire(tk *manualTicker) bool {
	select {
	case tk.c <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Fixtures ---

const testQuote = "the quick fox"

type harness struct {
	rm      *RoomManager
	tickers *manualTickers
	clock   *fakeClock
}

func newHarness(t *testing.T, mutate ...func(*Settings)) *harness {
	t.Helper()
	settings := DefaultSettings()
	settings.Capacity = 2
	for _, m := range mutate {
		m(&settings)
	}
	h := &harness{tickers: &manualTickers{}, clock: newClock()}
	h.rm = NewRoomManager(settings,
		quote.NewStatic(quote.Quote{Content: testQuote, Author: "tester"}),
		WithTickers(h.tickers),
		WithClock(h.clock.Now),
	)
	t.Cleanup(h.rm.Close)
	return h
}

func guest(name string) identity.Identity {
	return identity.Identity{Username: name, IsGuest: true}
}

func account(id int64, name string) identity.Identity {
	return identity.Identity{ID: &id, Username: name}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

// createAndStart makes a room hosted by a with b joined, then runs the
// countdown through to Racing.
func (h *harness) createAndStart(t *testing.T, a, b *fakeConn) string {
	t.Helper()
	code, err := h.rm.CreateRoom(context.Background(), a, guest("alice"))
	require.NoError(t, err)
	require.NoError(t, h.rm.JoinRoom(b, guest("bob"), code))
	require.NoError(t, h.rm.StartGame(a.ID()))

	cd := h.tickers.last(t)
	for i := 0; i < h.rm.Settings().Countdown; i++ {
		fire(t, cd)
	}
	waitFor(t, func() bool { return a.count(EventGameStarted) == 1 }, "race should start")
	h.waitTickers(t, 2)
	return code
}

// waitTickers blocks until n tickers exist and returns the newest.
func (h *harness) waitTickers(t *testing.T, n int) *manualTicker {
	t.Helper()
	waitFor(t, func() bool { return h.tickers.count() >= n }, "timer should be armed")
	return h.tickers.last(t)
}

func (h *harness) phase(t *testing.T, code string) Phase {
	t.Helper()
	sum, err := h.rm.Lookup(code)
	require.NoError(t, err)
	return sum.Phase
}

package ws

import (
	"sync"
	"time"

	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/rs/zerolog/log"
)

const defaultOutboxSize = 64

// How long a full outbox may hold up an event that must not be lost.
const deliverTimeout = 250 * time.Millisecond

// lossy events are repeated every tick, so the next one replaces a dropped one.
var lossy = map[string]bool{
	game.EventCountdown: true,
	game.EventGameInfo:  true,
}

type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

type outgoing struct {
	event string
	args  []interface{}
}

// peer queues events for one socket and writes them from its own goroutine,
// so rooms can emit while locked without waiting on the network. A peer that
// falls a full outbox behind loses lossy events; for any other event it gets
// deliverTimeout to catch up and is then disconnected.
type peer struct {
	conn emitter
	out  chan outgoing
	done chan struct{}
	once sync.Once
}

func newPeer(conn emitter, size int) *peer {
	if size <= 0 {
		size = defaultOutboxSize
	}
	p := &peer{conn: conn, out: make(chan outgoing, size), done: make(chan struct{})}
	go p.writePump()
	return p
}

func (p *peer) ID() string { return p.conn.ID() }

func (p *peer) Emit(event string, v ...interface{}) {
	select {
	case <-p.done:
		return
	default:
	}
	m := outgoing{event: event, args: v}
	select {
	case p.out <- m:
		return
	default:
	}
	if lossy[event] {
		log.Warn().Str("sid", p.conn.ID()).Str("event", event).Msg("outbox full, dropping event")
		return
	}

	timer := time.NewTimer(deliverTimeout)
	defer timer.Stop()
	select {
	case p.out <- m:
	case <-p.done:
	case <-timer.C:
		log.Warn().Str("sid", p.conn.ID()).Str("event", event).Msg("outbox stalled, disconnecting")
		p.close()
		if c, ok := p.conn.(interface{ Close() error }); ok {
			// Close runs the disconnect handler, which needs the room lock
			// the caller may be holding.
			go func() { _ = c.Close() }()
		}
	}
}

func (p *peer) writePump() {
	for {
		select {
		case <-p.done:
			return
		case m := <-p.out:
			p.conn.Emit(m.event, m.args...)
		}
	}
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

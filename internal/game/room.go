package game

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/rs/zerolog/log"
)

// Room is a group of sessions racing one quote. Every mutation, including
// timer ticks, happens with mu held.
type Room struct {
	id       string
	settings Settings
	tickers  TickerFactory
	now      func() time.Time
	onClosed func(id string)

	mu                 sync.Mutex
	phase              Phase
	quote              quote.Quote
	words              [][]rune
	totalRunes         int
	raceID             string
	sessions           []*PlayerSession // join order
	byConn             map[string]*PlayerSession
	hostConn           string
	joins              int
	countdownRemaining int
	startedAt          time.Time
	finishedCount      int
	timer              *roomTimer
	closed             bool
}

type roomTimer struct {
	ticker Ticker
	done   chan struct{}
}

func newRoom(id string, settings Settings, q quote.Quote, tickers TickerFactory, now func() time.Time, onClosed func(string)) *Room {
	r := &Room{
		id:       id,
		settings: settings,
		tickers:  tickers,
		now:      now,
		onClosed: onClosed,
		phase:    PhaseWaiting,
		byConn:   make(map[string]*PlayerSession),
	}
	r.setQuote(q)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) setQuote(q quote.Quote) {
	r.quote = q
	r.words, r.totalRunes = splitWords(q.Content)
	r.raceID = uuid.NewString()
}

func (r *Room) join(conn Conn, id identity.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if _, ok := r.byConn[conn.ID()]; ok {
		return nil
	}
	if len(r.sessions) >= r.settings.Capacity {
		return ErrRoomFull
	}
	if r.phase != PhaseWaiting {
		return ErrRoomNotJoinable
	}

	s := newPlayerSession(conn, id, palette[r.joins%len(palette)])
	r.joins++
	r.sessions = append(r.sessions, s)
	r.byConn[conn.ID()] = s
	if r.hostConn == "" {
		r.hostConn = conn.ID()
	}
	log.Info().Str("room", r.id).Str("sid", conn.ID()).Str("user", id.Username).Int("players", len(r.sessions)).Msg("player joined")
	r.emitRoomInfo()
	return nil
}

// leave removes a session and reports whether the room is now empty, in
// which case the room is closed and its timers are stopped.
func (r *Room) leave(connID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[connID]
	if !ok {
		return len(r.sessions) == 0
	}
	delete(r.byConn, connID)
	for i, other := range r.sessions {
		if other == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	log.Info().Str("room", r.id).Str("sid", connID).Str("user", s.identity.Username).Str("phase", string(r.phase)).Msg("player left")

	if len(r.sessions) == 0 {
		r.closeLocked()
		return true
	}

	if r.hostConn == connID {
		r.hostConn = r.sessions[0].conn.ID()
		r.emitAll(EventHostChanged, map[string]any{"username": r.sessions[0].identity.Username})
	}

	switch r.phase {
	case PhaseWaiting, PhaseFinished:
		r.emitRoomInfo()
	case PhaseRacing:
		if r.allFinished() {
			r.finishRaceLocked()
		}
	}
	return false
}

func (r *Room) start(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; !ok || r.closed {
		return ErrNotInRoom
	}
	if r.hostConn != connID {
		return ErrNotHost
	}
	if r.phase != PhaseWaiting || len(r.sessions) == 0 {
		return ErrInvalidState
	}

	r.phase = PhaseCountdown
	r.finishedCount = 0
	for _, s := range r.sessions {
		s.reset(r.words, r.totalRunes)
	}
	r.countdownRemaining = r.settings.Countdown
	log.Info().Str("room", r.id).Int("players", len(r.sessions)).Str("race", r.raceID).Msg("countdown started")

	r.emitAll(EventPrepareGame, r.quote)
	r.emitAll(EventCountdown, r.countdownRemaining)
	if r.countdownRemaining == 0 {
		r.enterRacingLocked()
		return nil
	}
	r.armTimer(time.Second, r.countdownTick)
	return nil
}

func (r *Room) countdownTick() bool {
	if r.phase != PhaseCountdown || r.countdownRemaining <= 0 {
		return false
	}
	r.countdownRemaining--
	r.emitAll(EventCountdown, r.countdownRemaining)
	if r.countdownRemaining == 0 {
		r.enterRacingLocked()
	}
	return false
}

func (r *Room) enterRacingLocked() {
	r.stopTimer()
	r.phase = PhaseRacing
	r.startedAt = r.now()
	log.Info().Str("room", r.id).Str("race", r.raceID).Msg("race started")
	r.emitAll(EventGameStarted)
	r.emitAll(EventGameInfo, r.snapshot(0))
	r.armTimer(r.settings.BroadcastInterval, r.racingTick)
}

func (r *Room) racingTick() bool {
	if r.phase != PhaseRacing {
		return false
	}
	elapsed := r.now().Sub(r.startedAt)
	if r.settings.RaceTimeout > 0 && elapsed >= r.settings.RaceTimeout {
		log.Info().Str("room", r.id).Dur("elapsed", elapsed).Msg("race timed out")
		r.finishRaceLocked()
		return false
	}
	for _, s := range r.sessions {
		if !s.finished {
			s.sample(elapsed)
		}
	}
	r.emitAll(EventGameInfo, r.snapshot(elapsed))
	return false
}

func (r *Room) submitWord(connID, word string) (WordResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[connID]
	if !ok || r.closed {
		return WordIgnored, ErrNotInRoom
	}
	if r.phase != PhaseRacing {
		return WordIgnored, ErrInvalidState
	}

	res := s.submit(word)
	if res == WordAccepted && s.complete() {
		r.finishSessionLocked(s)
		if r.allFinished() {
			r.finishRaceLocked()
		}
	}
	return res, nil
}

func (r *Room) finishSessionLocked(s *PlayerSession) {
	elapsed := r.now().Sub(r.startedAt)
	r.finishedCount++
	s.finished = true
	s.finishRank = r.finishedCount
	s.finishElapsed = elapsed
	s.sample(elapsed)
	net, _ := s.speedAt(elapsed)
	log.Info().Str("room", r.id).Str("user", s.identity.Username).Int("rank", s.finishRank).Float64("wpm", net).Msg("player finished")
	r.emitAll(EventPlayerFinished, PlayerFinished{Username: s.identity.Username, Placement: s.finishRank, WPM: net})
}

func (r *Room) allFinished() bool {
	for _, s := range r.sessions {
		if !s.finished {
			return false
		}
	}
	return true
}

// finishRaceLocked moves Racing to Finished and sends the end-of-race stats.
// Sessions still typing are left without a placement.
func (r *Room) finishRaceLocked() {
	r.stopTimer()
	elapsed := r.now().Sub(r.startedAt)
	for _, s := range r.sessions {
		if !s.finished {
			s.sample(elapsed)
		}
	}
	r.phase = PhaseFinished
	log.Info().Str("room", r.id).Str("race", r.raceID).Int("finishers", r.finishedCount).Msg("race finished")

	r.emitAll(EventGameInfo, r.snapshot(elapsed))
	r.emitAll(EventEndGameStats, r.endGameStats(elapsed))
	if r.settings.FinishedTTL > 0 {
		r.armTimer(r.settings.FinishedTTL, r.expire)
	}
}

func (r *Room) expire() bool {
	if r.phase != PhaseFinished {
		return false
	}
	log.Info().Str("room", r.id).Msg("finished room expired")
	r.emitAll(EventRoomClosed, map[string]any{"roomId": r.id})
	r.closeLocked()
	return true
}

func (r *Room) playAgain(connID string, q quote.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[connID]; !ok || r.closed {
		return ErrNotInRoom
	}
	if r.hostConn != connID {
		return ErrNotHost
	}
	if r.phase != PhaseFinished {
		return ErrInvalidState
	}

	r.stopTimer()
	r.setQuote(q)
	r.phase = PhaseWaiting
	r.finishedCount = 0
	r.countdownRemaining = 0
	r.startedAt = time.Time{}
	for _, s := range r.sessions {
		s.reset(r.words, r.totalRunes)
	}
	log.Info().Str("room", r.id).Str("race", r.raceID).Msg("rematch")
	r.emitRoomInfo()
	return nil
}

func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.stopTimer()
	r.closed = true
	r.sessions = nil
	r.byConn = map[string]*PlayerSession{}
	log.Info().Str("room", r.id).Msg("room closed")
}

func (r *Room) summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomSummary{
		ID:       r.id,
		Phase:    r.phase,
		Players:  r.members(),
		Capacity: r.settings.Capacity,
		Joinable: !r.closed && r.phase == PhaseWaiting && len(r.sessions) < r.settings.Capacity,
	}
}

func (r *Room) members() []RoomMember {
	out := make([]RoomMember, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.member(s.conn.ID() == r.hostConn))
	}
	return out
}

func (r *Room) snapshot(elapsed time.Duration) []GameInfo {
	out := make([]GameInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		net, _ := s.speedAt(elapsed)
		out = append(out, GameInfo{
			Username:           s.identity.Username,
			WPM:                net,
			ProgressPercentage: s.progress(),
			Color:              s.color,
		})
	}
	return out
}

// endGameStats lists finishers by placement, then unfinished sessions in
// join order.
func (r *Room) endGameStats(elapsed time.Duration) []EndGameStats {
	out := make([]EndGameStats, 0, len(r.sessions))
	for _, s := range r.sessions {
		net, _ := s.speedAt(elapsed)
		graph := make([]GraphPoint, len(s.samples))
		copy(graph, s.samples)
		out = append(out, EndGameStats{
			RaceID:         r.raceID,
			Username:       s.identity.Username,
			Placement:      s.finishRank,
			Finished:       s.finished,
			WPM:            net,
			Mistakes:       s.mistakeCount,
			GraphData:      graph,
			MistakeIndices: s.mistakeIndices(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Finished != out[j].Finished {
			return out[i].Finished
		}
		return out[i].Placement < out[j].Placement
	})
	return out
}

func (r *Room) emitRoomInfo() {
	r.emitAll(EventRoomInfo, r.members())
}

func (r *Room) emitAll(event string, v ...interface{}) {
	for _, s := range r.sessions {
		s.conn.Emit(event, v...)
	}
}

// armTimer replaces the room's timer. onTick runs with mu held and reports
// whether the room closed itself.
func (r *Room) armTimer(every time.Duration, onTick func() bool) {
	r.stopTimer()
	t := &roomTimer{ticker: r.tickers.Create(every), done: make(chan struct{})}
	r.timer = t
	go r.runTimer(t, onTick)
}

func (r *Room) runTimer(t *roomTimer, onTick func() bool) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C():
			r.mu.Lock()
			if r.timer != t {
				r.mu.Unlock()
				return
			}
			closed := onTick()
			r.mu.Unlock()
			if closed {
				if r.onClosed != nil {
					r.onClosed(r.id)
				}
				return
			}
		}
	}
}

// stopTimer cancels the current timer exactly once.
func (r *Room) stopTimer() {
	if r.timer == nil {
		return
	}
	r.timer.ticker.Stop()
	close(r.timer.done)
	r.timer = nil
}

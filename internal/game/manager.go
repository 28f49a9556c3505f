package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/rs/zerolog/log"
)

const roomCodeLength = 5

// Disconnected connection ids are remembered this long so a join that was
// already in flight can notice and give its seat back.
const goneTTL = time.Minute

// RoomManager is the registry of live rooms. Its lock guards only the id
// maps; it is never held while a room is locked.
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	pending map[string]struct{} // codes of rooms still seating their host
	members map[string]string   // connID -> roomID
	gone    map[string]time.Time

	settings Settings
	quotes   quote.Source
	tickers  TickerFactory
	now      func() time.Time
}

type Option func(*RoomManager)

func WithTickers(t TickerFactory) Option {
	return func(rm *RoomManager) { rm.tickers = t }
}

func WithClock(now func() time.Time) Option {
	return func(rm *RoomManager) { rm.now = now }
}

func NewRoomManager(settings Settings, quotes quote.Source, opts ...Option) *RoomManager {
	rm := &RoomManager{
		rooms:    make(map[string]*Room),
		pending:  make(map[string]struct{}),
		members:  make(map[string]string),
		gone:     make(map[string]time.Time),
		settings: settings.normalized(),
		quotes:   quotes,
		tickers:  SystemTickers(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

func (rm *RoomManager) Settings() Settings { return rm.settings }

// CreateRoom opens a room with conn as its host and first player. The room is
// published only once the host is seated.
func (rm *RoomManager) CreateRoom(ctx context.Context, conn Conn, id identity.Identity) (string, error) {
	rm.mu.RLock()
	err := rm.canCreateLocked(conn.ID())
	rm.mu.RUnlock()
	if err != nil {
		return "", err
	}

	q, err := rm.quotes.Random(ctx)
	if err != nil {
		return "", fmt.Errorf("pick quote: %w", err)
	}

	rm.mu.Lock()
	if err := rm.canCreateLocked(conn.ID()); err != nil {
		rm.mu.Unlock()
		return "", err
	}
	code := randomCode(roomCodeLength)
	for rm.codeTakenLocked(code) {
		code = randomCode(roomCodeLength)
	}
	rm.pending[code] = struct{}{}
	rm.mu.Unlock()

	room := newRoom(code, rm.settings, q, rm.tickers, rm.now, rm.removeRoom)
	err = room.join(conn, id)

	rm.mu.Lock()
	delete(rm.pending, code)
	if err == nil {
		err = rm.seatedLocked(conn.ID(), code)
	}
	if err == nil {
		rm.rooms[code] = room
		rm.members[conn.ID()] = code
	}
	rm.mu.Unlock()

	if err != nil {
		room.close()
		return "", err
	}
	log.Info().Str("room", code).Str("user", id.Username).Msg("room created")
	return code, nil
}

// JoinRoom adds conn to an existing room. Joining the room conn is already in
// succeeds without a second session.
func (rm *RoomManager) JoinRoom(conn Conn, id identity.Identity, roomID string) error {
	roomID = normalizeCode(roomID)

	rm.mu.RLock()
	current, inRoom := rm.members[conn.ID()]
	_, gone := rm.gone[conn.ID()]
	room := rm.rooms[roomID]
	rm.mu.RUnlock()

	if gone {
		return ErrDisconnected
	}
	if inRoom {
		if current == roomID {
			return nil
		}
		return ErrAlreadyInRoom
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if err := room.join(conn, id); err != nil {
		return err
	}

	rm.mu.Lock()
	err := rm.seatedLocked(conn.ID(), roomID)
	if err == nil && rm.rooms[roomID] != room {
		err = ErrRoomNotFound
	}
	if err == nil {
		rm.members[conn.ID()] = roomID
	}
	rm.mu.Unlock()

	if err != nil && room.leave(conn.ID()) {
		rm.evict(roomID, room)
	}
	return err
}

// LeaveRoom removes conn from its room and destroys the room once empty.
func (rm *RoomManager) LeaveRoom(connID string) error {
	rm.mu.Lock()
	roomID, ok := rm.members[connID]
	delete(rm.members, connID)
	room := rm.rooms[roomID]
	rm.mu.Unlock()

	if !ok {
		return ErrNotInRoom
	}
	if room == nil {
		return nil
	}
	if room.leave(connID) {
		rm.evict(roomID, room)
	}
	return nil
}

// Disconnect is LeaveRoom for a socket that is gone for good. The id is
// remembered so a create or join still in flight for it is undone.
func (rm *RoomManager) Disconnect(connID string) {
	rm.mu.Lock()
	now := rm.now()
	for id, at := range rm.gone {
		if now.Sub(at) > goneTTL {
			delete(rm.gone, id)
		}
	}
	rm.gone[connID] = now
	rm.mu.Unlock()

	if err := rm.LeaveRoom(connID); err != nil && !errors.Is(err, ErrNotInRoom) {
		log.Error().Str("sid", connID).Err(err).Msg("leave on disconnect")
	}
}

func (rm *RoomManager) StartGame(connID string) error {
	room, err := rm.roomOf(connID)
	if err != nil {
		return err
	}
	return room.start(connID)
}

func (rm *RoomManager) SubmitWord(connID, word string) (WordResult, error) {
	room, err := rm.roomOf(connID)
	if err != nil {
		return WordIgnored, err
	}
	return room.submitWord(connID, word)
}

// PlayAgain resets a finished room for a rematch on a fresh quote.
func (rm *RoomManager) PlayAgain(ctx context.Context, connID string) error {
	room, err := rm.roomOf(connID)
	if err != nil {
		return err
	}
	if room.summary().Phase != PhaseFinished {
		return ErrInvalidState
	}
	q, err := rm.quotes.Random(ctx)
	if err != nil {
		return fmt.Errorf("pick quote: %w", err)
	}
	return room.playAgain(connID, q)
}

func (rm *RoomManager) Lookup(roomID string) (RoomSummary, error) {
	rm.mu.RLock()
	room := rm.rooms[normalizeCode(roomID)]
	rm.mu.RUnlock()
	if room == nil {
		return RoomSummary{}, ErrRoomNotFound
	}
	return room.summary(), nil
}

func (rm *RoomManager) roomIDOf(connID string) (string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	id, ok := rm.members[connID]
	return id, ok
}

func (rm *RoomManager) Stats() Stats {
	rm.mu.RLock()
	rooms := make([]*Room, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		rooms = append(rooms, r)
	}
	rm.mu.RUnlock()

	st := Stats{Rooms: len(rooms)}
	for _, r := range rooms {
		sum := r.summary()
		st.Players += len(sum.Players)
		if sum.Phase == PhaseRacing {
			st.Racing++
		}
	}
	return st
}

// Close shuts every room down and stops their timers.
func (rm *RoomManager) Close() {
	rm.mu.Lock()
	rooms := rm.rooms
	rm.rooms = make(map[string]*Room)
	rm.members = make(map[string]string)
	rm.gone = make(map[string]time.Time)
	rm.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}

func (rm *RoomManager) roomOf(connID string) (*Room, error) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	roomID, ok := rm.members[connID]
	if !ok {
		return nil, ErrNotInRoom
	}
	room := rm.rooms[roomID]
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (rm *RoomManager) canCreateLocked(connID string) error {
	if _, gone := rm.gone[connID]; gone {
		return ErrDisconnected
	}
	if _, busy := rm.members[connID]; busy {
		return ErrAlreadyInRoom
	}
	if len(rm.rooms)+len(rm.pending) >= rm.settings.MaxRooms {
		return ErrResourceExhausted
	}
	return nil
}

func (rm *RoomManager) codeTakenLocked(code string) bool {
	_, pending := rm.pending[code]
	return pending || rm.rooms[code] != nil
}

// seatedLocked reports whether a conn that was just seated in roomID may
// keep its seat.
func (rm *RoomManager) seatedLocked(connID, roomID string) error {
	if _, gone := rm.gone[connID]; gone {
		return ErrDisconnected
	}
	if other, ok := rm.members[connID]; ok && other != roomID {
		return ErrAlreadyInRoom
	}
	return nil
}

func (rm *RoomManager) removeRoom(roomID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.removeRoomLocked(roomID, rm.rooms[roomID])
}

// evict removes room unless its code has since been reused by another room.
func (rm *RoomManager) evict(roomID string, room *Room) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.removeRoomLocked(roomID, room)
}

func (rm *RoomManager) removeRoomLocked(roomID string, room *Room) {
	if current, ok := rm.rooms[roomID]; !ok || current != room {
		return
	}
	delete(rm.rooms, roomID)
	for connID, id := range rm.members {
		if id == roomID {
			delete(rm.members, connID)
		}
	}
	log.Info().Str("room", roomID).Int("rooms", len(rm.rooms)).Msg("room removed")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

package game

import (
	"time"
)

type Phase string

const (
	PhaseWaiting   Phase = "Waiting"
	PhaseCountdown Phase = "Countdown"
	PhaseRacing    Phase = "Racing"
	PhaseFinished  Phase = "Finished"
)

// Server to client events.
const (
	EventRoomInfo       = "roomInfo"
	EventPrepareGame    = "prepareGame"
	EventCountdown      = "countdown"
	EventGameStarted    = "gameStarted"
	EventGameInfo       = "gameInfo"
	EventPlayerFinished = "playerFinished"
	EventEndGameStats   = "endGameStats"
	EventHostChanged    = "hostChanged"
	EventRoomClosed     = "roomClosed"
)

// Conn is the part of a client connection the engine needs. Emit must not
// block for long: it is called while the room is locked.
type Conn interface {
	ID() string
	Emit(event string, v ...interface{})
}

// Settings tune every room the manager creates. A zero RaceTimeout lets a
// race run until everyone finishes; a zero FinishedTTL keeps finished rooms
// open until their last player leaves.
type Settings struct {
	Capacity          int           `json:"capacity"`
	MaxRooms          int           `json:"maxRooms"`
	Countdown         int           `json:"countdown"`
	BroadcastInterval time.Duration `json:"broadcastInterval"`
	RaceTimeout       time.Duration `json:"raceTimeout"`
	FinishedTTL       time.Duration `json:"finishedTtl"`
}

const (
	MinCapacity = 2
	MaxCapacity = 8
)

func DefaultSettings() Settings {
	return Settings{
		Capacity:          4,
		MaxRooms:          1000,
		Countdown:         3,
		BroadcastInterval: time.Second,
		RaceTimeout:       5 * time.Minute,
		FinishedTTL:       10 * time.Minute,
	}
}

func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.Capacity < MinCapacity {
		s.Capacity = MinCapacity
	}
	if s.Capacity > MaxCapacity {
		s.Capacity = MaxCapacity
	}
	if s.MaxRooms <= 0 {
		s.MaxRooms = d.MaxRooms
	}
	if s.Countdown < 0 {
		s.Countdown = 0
	}
	if s.BroadcastInterval <= 0 {
		s.BroadcastInterval = d.BroadcastInterval
	}
	if s.RaceTimeout < 0 {
		s.RaceTimeout = 0
	}
	if s.FinishedTTL < 0 {
		s.FinishedTTL = 0
	}
	return s
}

type RoomMember struct {
	Username string `json:"username"`
	IsGuest  bool   `json:"isGuest"`
	IsHost   bool   `json:"isHost"`
}

// GameInfo is one row of the standings pushed while racing.
type GameInfo struct {
	Username           string  `json:"username"`
	WPM                float64 `json:"wpm"`
	ProgressPercentage float64 `json:"progressPercentage"`
	Color              string  `json:"color"`
}

type GraphPoint struct {
	Time   float64 `json:"time"` // seconds since race start
	WPM    float64 `json:"wpm"`
	RawWPM float64 `json:"rawWpm"`
}

type EndGameStats struct {
	RaceID         string       `json:"raceId"`
	Username       string       `json:"username"`
	Placement      int          `json:"placement,omitempty"`
	Finished       bool         `json:"finished"`
	WPM            float64      `json:"wpm"`
	Mistakes       int          `json:"mistakes"`
	GraphData      []GraphPoint `json:"graphData"`
	MistakeIndices []int        `json:"mistakeIndices"`
}

type PlayerFinished struct {
	Username  string  `json:"username"`
	Placement int     `json:"placement"`
	WPM       float64 `json:"wpm"`
}

type RoomSummary struct {
	ID       string       `json:"id"`
	Phase    Phase        `json:"state"`
	Players  []RoomMember `json:"players"`
	Capacity int          `json:"capacity"`
	Joinable bool         `json:"joinable"`
}

type Stats struct {
	Rooms   int `json:"rooms"`
	Players int `json:"players"`
	Racing  int `json:"racing"`
}

// Progress colours, handed out in join order.
var palette = []string{"teal", "purple", "orange", "pink", "blue", "green", "red", "cyan"}

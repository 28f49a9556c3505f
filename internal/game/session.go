package game

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonatan-kruse/typebout/internal/identity"
	"golang.org/x/text/unicode/norm"
)

type WordResult int

const (
	WordIgnored WordResult = iota
	WordPrefix
	WordMistake
	WordDuplicate
	WordAccepted
)

func (w WordResult) String() string {
	switch w {
	case WordPrefix:
		return "prefix"
	case WordMistake:
		return "mistake"
	case WordDuplicate:
		return "duplicate"
	case WordAccepted:
		return "accepted"
	default:
		return "ignored"
	}
}

// PlayerSession is one connection's race state. It is owned by its Room and
// only touched with the room locked.
type PlayerSession struct {
	conn     Conn
	identity identity.Identity
	color    string

	words        [][]rune
	totalRunes   int
	wordIndex    int
	typedChars   int
	mistakeCount int
	mistakeWords map[int]struct{}
	lastAccepted string
	samples      []GraphPoint

	finished      bool
	finishRank    int
	finishElapsed time.Duration
}

func newPlayerSession(conn Conn, id identity.Identity, color string) *PlayerSession {
	return &PlayerSession{conn: conn, identity: id, color: color, mistakeWords: map[int]struct{}{}}
}

// splitWords cuts content into the tokens players type, each keeping its
// trailing space: "the quick fox" -> "the ", "quick ", "fox".
func splitWords(content string) ([][]rune, int) {
	parts := strings.SplitAfter(content, " ")
	words := make([][]rune, 0, len(parts))
	total := 0
	for _, p := range parts {
		if p == "" {
			continue
		}
		r := []rune(p)
		words = append(words, r)
		total += len(r)
	}
	return words, total
}

func (p *PlayerSession) reset(words [][]rune, total int) {
	p.words = words
	p.totalRunes = total
	p.wordIndex = 0
	p.typedChars = 0
	p.mistakeCount = 0
	p.mistakeWords = map[int]struct{}{}
	p.lastAccepted = ""
	p.samples = nil
	p.finished = false
	p.finishRank = 0
	p.finishElapsed = 0
}

// submit checks a typed word against the word at wordIndex. Only a full match
// advances; the first diverging character marks the word as mistaken, once.
func (p *PlayerSession) submit(word string) WordResult {
	if p.finished || p.wordIndex >= len(p.words) {
		return WordIgnored
	}
	want := p.words[p.wordIndex]
	got := []rune(norm.NFC.String(word))
	if len(got) > len(want) {
		got = []rune(strings.TrimRight(string(got), " "))
	}
	if len(got) == 0 || len(got) > len(want) {
		return WordIgnored
	}

	diverged := false
	for i := range got {
		if got[i] != want[i] {
			diverged = true
			break
		}
	}

	if !diverged {
		complete := len(got) == len(want) || (len(got) == len(want)-1 && want[len(want)-1] == ' ')
		if !complete {
			return WordPrefix
		}
		p.lastAccepted = strings.TrimRight(string(want), " ")
		p.typedChars += len(want)
		p.wordIndex++
		return WordAccepted
	}

	if p.lastAccepted != "" && strings.TrimRight(string(got), " ") == p.lastAccepted {
		return WordDuplicate
	}
	if _, seen := p.mistakeWords[p.wordIndex]; !seen {
		p.mistakeWords[p.wordIndex] = struct{}{}
		p.mistakeCount++
	}
	return WordMistake
}

func (p *PlayerSession) complete() bool {
	return p.totalRunes > 0 && p.typedChars == p.totalRunes
}

// speed returns net and raw WPM after elapsed race time. Net WPM takes one
// word off per mistaken word per minute and never goes below zero.
func speed(chars, mistakes int, elapsed time.Duration) (net, raw float64) {
	minutes := elapsed.Minutes()
	if minutes <= 0 {
		return 0, 0
	}
	raw = float64(chars) / 5 / minutes
	net = math.Max(0, raw-float64(mistakes)/minutes)
	return round1(net), round1(raw)
}

func (p *PlayerSession) speedAt(elapsed time.Duration) (net, raw float64) {
	if p.finished {
		elapsed = p.finishElapsed
	}
	return speed(p.typedChars, p.mistakeCount, elapsed)
}

func (p *PlayerSession) progress() float64 {
	if p.totalRunes == 0 {
		return 0
	}
	pct := float64(p.typedChars) / float64(p.totalRunes) * 100
	return round1(math.Min(100, math.Max(0, pct)))
}

func (p *PlayerSession) sample(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	net, raw := speed(p.typedChars, p.mistakeCount, elapsed)
	p.samples = append(p.samples, GraphPoint{Time: round1(elapsed.Seconds()), WPM: net, RawWPM: raw})
}

func (p *PlayerSession) mistakeIndices() []int {
	out := make([]int, 0, len(p.mistakeWords))
	for i := range p.mistakeWords {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (p *PlayerSession) member(host bool) RoomMember {
	return RoomMember{Username: p.identity.Username, IsGuest: p.identity.IsGuest, IsHost: host}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

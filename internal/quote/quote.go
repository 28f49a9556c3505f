// Package quote supplies the texts players race on.
package quote

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

var ErrNoQuotes = errors.New("no-quotes")

type Quote struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

type Source interface {
	Random(ctx context.Context) (Quote, error)
}

// Normalize returns q in NFC form with runs of whitespace collapsed to a
// single space, so word boundaries are unambiguous.
func Normalize(q Quote) (Quote, error) {
	content := strings.Join(strings.Fields(norm.NFC.String(q.Content)), " ")
	if content == "" {
		return Quote{}, ErrNoQuotes
	}
	return Quote{Content: content, Author: strings.TrimSpace(norm.NFC.String(q.Author))}, nil
}

type Static struct {
	quotes []Quote
}

func NewStatic(quotes ...Quote) *Static {
	s := &Static{}
	for _, q := range quotes {
		if nq, err := Normalize(q); err == nil {
			s.quotes = append(s.quotes, nq)
		}
	}
	return s
}

//go:embed data/quotes.json
var builtin []byte

// Default returns the quotes compiled into the binary.
func Default() *Static {
	quotes, err := Decode(bytes.NewReader(builtin))
	if err != nil {
		log.Error().Err(err).Msg("builtin quotes unreadable")
	}
	return NewStatic(quotes...)
}

// Decode reads a JSON array of quotes. Blank quotes are skipped and the rest
// are normalized.
func Decode(r io.Reader) ([]Quote, error) {
	var raw []Quote
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]Quote, 0, len(raw))
	for _, q := range raw {
		if nq, err := Normalize(q); err == nil {
			out = append(out, nq)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoQuotes
	}
	return out, nil
}

func (s *Static) Random(ctx context.Context) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	if len(s.quotes) == 0 {
		return Quote{}, ErrNoQuotes
	}
	return s.quotes[rand.Intn(len(s.quotes))], nil
}

func (s *Static) Len() int { return len(s.quotes) }

type fallback struct {
	primary  Source
	fallback Source
}

// WithFallback serves from primary and falls back when it fails, so a
// database outage degrades the text pool instead of blocking room creation.
func WithFallback(primary, secondary Source) Source {
	return &fallback{primary: primary, fallback: secondary}
}

func (f *fallback) Random(ctx context.Context) (Quote, error) {
	q, err := f.primary.Random(ctx)
	if err == nil {
		if nq, nerr := Normalize(q); nerr == nil {
			return nq, nil
		}
		err = ErrNoQuotes
	}
	if ctx.Err() != nil {
		return Quote{}, ctx.Err()
	}
	log.Warn().Err(err).Msg("quote source failed, using fallback")
	return f.fallback.Random(ctx)
}

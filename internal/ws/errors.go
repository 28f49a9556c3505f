package ws

import (
	"errors"

	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
)

var (
	errRateLimited  = errors.New("too many words")
	errWordTooLong  = errors.New("word too long")
	errNotConnected = errors.New("connection not initialised")
)

// errorCode maps an error to the code clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, game.ErrRoomFull):
		return "room_full"
	case errors.Is(err, game.ErrRoomNotJoinable):
		return "room_not_joinable"
	case errors.Is(err, game.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, game.ErrResourceExhausted):
		return "resource_exhausted"
	case errors.Is(err, game.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, game.ErrAlreadyInRoom):
		return "already_in_room"
	case errors.Is(err, game.ErrNotHost):
		return "not_host"
	case errors.Is(err, game.ErrDisconnected):
		return "disconnected"
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, errNotConnected):
		return "unauthenticated"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	case errors.Is(err, errWordTooLong):
		return "bad_request"
	case errors.Is(err, quote.ErrNoQuotes):
		return "no_quotes"
	default:
		return "internal"
	}
}

func errorMessage(err error) string {
	if errorCode(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}

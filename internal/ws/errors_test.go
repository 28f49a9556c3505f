package ws

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/jonatan-kruse/typebout/internal/quote"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{game.ErrRoomNotFound, "room_not_found"},
		{game.ErrRoomFull, "room_full"},
		{game.ErrRoomNotJoinable, "room_not_joinable"},
		{game.ErrInvalidState, "invalid_state"},
		{game.ErrResourceExhausted, "resource_exhausted"},
		{game.ErrNotInRoom, "not_in_room"},
		{game.ErrAlreadyInRoom, "already_in_room"},
		{game.ErrNotHost, "not_host"},
		{game.ErrDisconnected, "disconnected"},
		{identity.ErrExpiredToken, "unauthenticated"},
		{identity.ErrInvalidUsername, "unauthenticated"},
		{errNotConnected, "unauthenticated"},
		{errRateLimited, "rate_limited"},
		{fmt.Errorf("pick quote: %w", quote.ErrNoQuotes), "no_quotes"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorCode(tt.err), tt.err.Error())
	}
}

func TestErrorMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", errorMessage(errors.New("pq: connection refused")))
	assert.Equal(t, game.ErrRoomFull.Error(), errorMessage(game.ErrRoomFull))
}

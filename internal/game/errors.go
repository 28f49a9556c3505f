package game

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room full")
	ErrRoomNotJoinable   = errors.New("room not joinable")
	ErrInvalidState      = errors.New("invalid state for action")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in another room")
	ErrNotHost           = errors.New("not host")
	ErrDisconnected      = errors.New("connection closed")
)

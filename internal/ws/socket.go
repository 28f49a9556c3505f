package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Words longer than this cannot be part of any quote and are rejected unread.
const maxWordBytes = 256

const quoteTimeout = 5 * time.Second

// ConnCtx is attached to every accepted socket. Identity is resolved once at
// connect time and passed to every room operation.
type ConnCtx struct {
	Identity identity.Identity
	peer     *peer
	words    *rate.Limiter
}

type Options struct {
	AllowedOrigins []string
	WordRate       float64 // words per second
	WordBurst      int
	OutboxSize     int
}

type Server struct {
	RM       *game.RoomManager
	resolver *identity.Resolver
	opts     Options
}

func New(rm *game.RoomManager, resolver *identity.Resolver, opts Options) *Server {
	if opts.WordRate <= 0 {
		opts.WordRate = 20
	}
	if opts.WordBurst <= 0 {
		opts.WordBurst = 40
	}
	return &Server{RM: rm, resolver: resolver, opts: opts}
}

// socket is the part of socketio.Conn the handlers use.
type socket interface {
	ID() string
	Emit(event string, v ...interface{})
	Context() interface{}
	SetContext(ctx interface{})
	URL() url.URL
	RemoteHeader() http.Header
}

// Mount attaches the Socket.IO server with its handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	checkOrigin := originChecker(srv.opts.AllowedOrigins)
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: checkOrigin},
			&websocket.Transport{CheckOrigin: checkOrigin},
		},
	})

	io.OnConnect("/", func(s socketio.Conn) error { return srv.onConnect(s) })
	io.OnEvent("/", "createRoom", func(s socketio.Conn) string { return srv.createRoom(s) })
	io.OnEvent("/", "joinRoom", func(s socketio.Conn, roomID string) bool { return srv.joinRoom(s, roomID) })
	io.OnEvent("/", "leaveRoom", func(s socketio.Conn) bool { return srv.leaveRoom(s) })
	io.OnEvent("/", "startGame", func(s socketio.Conn) { srv.startGame(s) })
	io.OnEvent("/", "sendWord", func(s socketio.Conn, word string) { srv.sendWord(s, word) })
	io.OnEvent("/", "playAgain", func(s socketio.Conn) bool { return srv.playAgain(s) })
	io.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) { srv.onDisconnect(s, reason) })

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	auth := authorize(srv.resolver)
	r.GET("/socket.io/*any", auth, gin.WrapH(io))
	r.POST("/socket.io/*any", auth, gin.WrapH(io))

	return io
}

func (srv *Server) onConnect(s socket) error {
	u := s.URL()
	creds := credentialsFrom(s.RemoteHeader(), u.Query())
	id, err := srv.resolver.Resolve(creds)
	if err != nil {
		log.Info().Str("sid", s.ID()).Err(err).Msg("socket rejected")
		return err
	}
	s.SetContext(&ConnCtx{
		Identity: id,
		peer:     newPeer(s, srv.opts.OutboxSize),
		words:    rate.NewLimiter(rate.Limit(srv.opts.WordRate), srv.opts.WordBurst),
	})
	log.Info().Str("sid", s.ID()).Str("user", id.Username).Bool("guest", id.IsGuest).Msg("socket connected")
	return nil
}

// createRoom acks the new room code, or "" when no room was created.
func (srv *Server) createRoom(s socket) string {
	cc, err := connCtx(s)
	if err != nil {
		srv.err(s, "createRoom", err)
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
	defer cancel()
	code, err := srv.RM.CreateRoom(ctx, cc.peer, cc.Identity)
	if err != nil {
		srv.err(s, "createRoom", err)
		return ""
	}
	return code
}

func (srv *Server) joinRoom(s socket, roomID string) bool {
	cc, err := connCtx(s)
	if err == nil {
		err = srv.RM.JoinRoom(cc.peer, cc.Identity, roomID)
	}
	if err != nil {
		srv.err(s, "joinRoom", err)
		return false
	}
	return true
}

func (srv *Server) leaveRoom(s socket) bool {
	if err := srv.RM.LeaveRoom(s.ID()); err != nil {
		srv.err(s, "leaveRoom", err)
		return false
	}
	return true
}

func (srv *Server) startGame(s socket) {
	if err := srv.RM.StartGame(s.ID()); err != nil {
		srv.err(s, "startGame", err)
	}
}

func (srv *Server) sendWord(s socket, word string) {
	cc, err := connCtx(s)
	if err != nil {
		srv.err(s, "sendWord", err)
		return
	}
	if len(word) > maxWordBytes {
		srv.err(s, "sendWord", errWordTooLong)
		return
	}
	if !cc.words.Allow() {
		srv.err(s, "sendWord", errRateLimited)
		return
	}
	res, err := srv.RM.SubmitWord(s.ID(), word)
	switch {
	case errors.Is(err, game.ErrInvalidState):
		log.Debug().Str("sid", s.ID()).Msg("word outside race ignored")
	case err != nil:
		srv.err(s, "sendWord", err)
	case res == game.WordIgnored:
		log.Debug().Str("sid", s.ID()).Msg("word ignored")
	}
}

func (srv *Server) playAgain(s socket) bool {
	ctx, cancel := context.WithTimeout(context.Background(), quoteTimeout)
	defer cancel()
	if err := srv.RM.PlayAgain(ctx, s.ID()); err != nil {
		srv.err(s, "playAgain", err)
		return false
	}
	return true
}

func (srv *Server) onDisconnect(s socket, reason string) {
	srv.RM.Disconnect(s.ID())
	if cc, ok := s.Context().(*ConnCtx); ok && cc != nil {
		cc.peer.close()
	}
	log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
}

func connCtx(s socket) (*ConnCtx, error) {
	cc, ok := s.Context().(*ConnCtx)
	if !ok || cc == nil {
		return nil, errNotConnected
	}
	return cc, nil
}

// err reports a failed action to the originating socket only.
func (srv *Server) err(s socket, action string, err error) {
	code := errorCode(err)
	ev := log.Debug()
	if code == "internal" {
		ev = log.Error()
	}
	ev.Str("sid", s.ID()).Str("action", action).Str("code", code).Err(err).Msg("action failed")
	s.Emit("error", map[string]any{"code": code, "message": errorMessage(err)})
}

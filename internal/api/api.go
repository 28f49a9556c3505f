package api

import (
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonatan-kruse/typebout/internal/game"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// Rooms is the read side of the room registry.
type Rooms interface {
	Lookup(roomID string) (game.RoomSummary, error)
	Stats() game.Stats
}

type API struct {
	rooms   Rooms
	baseURL string
}

func New(rooms Rooms, baseURL string) *API {
	return &API{rooms: rooms, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *API) Register(r gin.IRouter) {
	r.GET("/health", a.health)
	g := r.Group("/api")
	g.GET("/stats", a.stats)
	g.GET("/rooms/:id", a.room)
	g.GET("/rooms/:id/qr", a.roomQR)
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
}

func (a *API) stats(c *gin.Context) {
	c.JSON(http.StatusOK, a.rooms.Stats())
}

func (a *API) room(c *gin.Context) {
	sum, err := a.rooms.Lookup(c.Param("id"))
	if errors.Is(err, game.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": "room_not_found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room", c.Param("id")).Msg("room lookup")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// roomQR renders a PNG QR code of the room's invite link.
func (a *API) roomQR(c *gin.Context) {
	sum, err := a.rooms.Lookup(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "room_not_found"})
		return
	}
	png, err := qrcode.Encode(a.InviteURL(sum.ID), qrcode.Medium, qrSize)
	if err != nil {
		log.Error().Err(err).Str("room", sum.ID).Msg("qr generation failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", png)
}

func (a *API) InviteURL(roomID string) string {
	return a.baseURL + "/game/joinRoom?" + url.Values{"room": {roomID}}.Encode()
}

// CORS allows the configured origins, or every origin when "*" is listed.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Origin"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Logger logs requests, skipping the socket.io polling noise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}

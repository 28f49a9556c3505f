package ws

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/rs/zerolog/log"
)

// credentialsFrom reads handshake credentials. The token comes from a bearer
// Authorization header or the accessToken query parameter; a connection that
// does not say whether it is a guest is one when it brings no token.
func credentialsFrom(header http.Header, query url.Values) identity.Credentials {
	token := strings.TrimSpace(query.Get("accessToken"))
	if auth := header.Get("Authorization"); auth != "" {
		if scheme, rest, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			token = strings.TrimSpace(rest)
		}
	}

	isGuest := token == ""
	if raw := query.Get("isGuest"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			isGuest = v
		}
	}
	return identity.Credentials{
		AccessToken: token,
		Username:    query.Get("username"),
		IsGuest:     isGuest,
	}
}

// authorize rejects socket.io handshakes whose credentials do not resolve.
// Requests that already carry a session id belong to an accepted handshake.
func authorize(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.Query("sid") != "" {
			c.Next()
			return
		}
		creds := credentialsFrom(c.Request.Header, c.Request.URL.Query())
		if _, err := resolver.Resolve(creds); err != nil {
			log.Info().Err(err).Str("remote", c.ClientIP()).Bool("guest", creds.IsGuest).Msg("handshake rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errorCode(err), "message": err.Error()})
			return
		}
		c.Next()
	}
}

// originChecker allows the configured origins; "*" allows any. Requests
// without an Origin header are not browser cross-origin requests.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	anyOrigin := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}

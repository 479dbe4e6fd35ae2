// Package gateway is the WebSocket entry point: it admits connection
// attempts (origin + token), resolves the room, upgrades the socket and
// runs the session pumps.
package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/app"
	"github.com/unhidra/gateway/internal/auth"
	"github.com/unhidra/gateway/internal/config"
)

type Controller struct {
	registry *app.Registry
	guard    *auth.OriginGuard
	secret   []byte
	cfg      *config.Config
	limiter  *PublishRateLimiter
}

func NewController(cfg *config.Config, registry *app.Registry) *Controller {
	return &Controller{
		registry: registry,
		guard:    auth.NewOriginGuard(cfg.AllowedOrigins),
		secret:   []byte(cfg.Secret),
		cfg:      cfg,
		limiter:  NewPublishRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}
}

var upgrader = websocket.Upgrader{
	// Origin policy is enforced in HandleWS before the upgrade so the
	// client gets a plain 403 instead of a failed handshake.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS runs admission for one connection attempt. Every rejection
// happens before the upgrade, as a plain denial response; a session only
// ever starts on a fully admitted socket.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	if origin := c.GetHeader("Origin"); origin != "" && !ctl.guard.Allowed(origin) {
		log.Warn().Str("module", "gateway").Str("origin", origin).Msg("rejected: disallowed origin")
		c.String(http.StatusForbidden, "Origin not allowed")
		return
	}

	protoHeader := c.GetHeader("Sec-WebSocket-Protocol")
	token := auth.TokenFromProtocol(protoHeader)
	if token == "" {
		log.Warn().Str("module", "gateway").Msg("rejected: missing token in Sec-WebSocket-Protocol")
		c.String(http.StatusForbidden, "Missing authentication token")
		return
	}

	claims, err := auth.Verify(token, ctl.secret)
	if err != nil {
		c.String(http.StatusForbidden, "Invalid or expired token")
		return
	}

	roomID := claims.RoomID()
	sid := uuid.NewString()
	log.Info().Str("module", "gateway").Str("sid", sid).Str("user", claims.Subject).Str("room", string(roomID)).Msg("connection authenticated")

	room := ctl.registry.GetOrCreate(roomID)

	// When the token rode in as a subprotocol list the handshake must
	// answer with one of the offered entries.
	var respHeader http.Header
	if auth.UsedBearerForm(protoHeader) {
		respHeader = http.Header{"Sec-WebSocket-Protocol": {"bearer"}}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		log.Error().Err(err).Str("module", "gateway").Str("sid", sid).Msg("ws upgrade")
		ctl.registry.Release(room)
		return
	}

	sess := &session{
		id:       sid,
		subject:  claims.Subject,
		room:     room,
		sub:      room.Subscribe(),
		conn:     ws,
		registry: ctl.registry,
		limiter:  ctl.limiter,
		cfg:      ctl.cfg,
	}
	go sess.run(ctx)
}

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/app"
	"github.com/unhidra/gateway/internal/config"
	"github.com/unhidra/gateway/internal/core"
)

// session is one admitted client connection. Two pumps run until either
// side of the socket dies; whichever stops first cancels the other, then
// the room subscription is released exactly once.
type session struct {
	id       string
	subject  string
	room     *core.Room
	sub      *core.Subscription
	conn     *websocket.Conn
	registry *app.Registry
	limiter  *PublishRateLimiter
	cfg      *config.Config

	cancel context.CancelFunc
	once   sync.Once
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	log.Info().Str("module", "gateway").Str("sid", s.id).Str("user", s.subject).Str("room", string(s.room.ID())).Msg("client joined room")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		s.readPump(ctx)
	}()
	wg.Wait()

	s.sub.Unsubscribe()
	s.registry.Release(s.room)
	log.Info().Str("module", "gateway").Str("sid", s.id).Str("user", s.subject).Str("room", string(s.room.ID())).
		Int("subscribers", s.room.Subscribers()).Msg("client disconnected")
}

// close tears the session down from either pump. The cancel wakes the
// write pump, closing the socket wakes a blocked read. Idempotent, so a
// pump may call it after its sibling already has.
func (s *session) close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}

// writePump forwards broadcast messages to the socket and keeps the
// connection alive with periodic pings. Any write failure counts as a
// client disconnect.
func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.sub.C():
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("sid", s.id).Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				log.Info().Err(err).Str("module", "gateway").Str("sid", s.id).Msg("writePump write failed, client gone")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "gateway").Str("sid", s.id).Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump publishes inbound frames to the room. Text goes out verbatim;
// binary is re-wrapped as a tagged text envelope so other members never
// see a raw binary frame. Control frames are handled by the transport
// and only logged here.
func (s *session) readPump(ctx context.Context) {
	defer s.close()

	s.conn.SetReadLimit(s.cfg.ReadLimit)
	pingHandler := s.conn.PingHandler()
	s.conn.SetPingHandler(func(appData string) error {
		log.Debug().Str("module", "gateway").Str("sid", s.id).Msg("ping received")
		return pingHandler(appData)
	})
	s.conn.SetPongHandler(func(string) error {
		log.Debug().Str("module", "gateway").Str("sid", s.id).Msg("pong received")
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Str("module", "gateway").Str("sid", s.id).Msg("client sent close frame")
			} else {
				log.Warn().Err(err).Str("module", "gateway").Str("sid", s.id).Msg("readPump read error")
			}
			return
		}

		switch mt {
		case websocket.TextMessage:
			if !s.allow() {
				continue
			}
			s.room.Publish(string(data))
		case websocket.BinaryMessage:
			if !s.allow() {
				continue
			}
			env, err := encodeBinary(data)
			if err != nil {
				log.Error().Err(err).Str("module", "gateway").Str("sid", s.id).Msg("binary envelope encode")
				continue
			}
			s.room.Publish(env)
		}
	}
}

func (s *session) allow() bool {
	if s.limiter.Allow(s.subject) {
		return true
	}
	log.Warn().Str("module", "gateway").Str("sid", s.id).Str("user", s.subject).Msg("publish rate limit exceeded, message dropped")
	return false
}

type binaryEnvelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func encodeBinary(data []byte) (string, error) {
	b, err := json.Marshal(binaryEnvelope{
		Type: "binary",
		Data: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

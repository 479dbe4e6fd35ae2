// Package auth performs connection admission: token verification and
// origin checking. It has no transport dependencies and no shared state.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/domain"
)

// Leeway absorbs clock skew between the token issuer and the gateway.
const Leeway = 60 * time.Second

// ErrInvalidToken is the only verification error callers ever see.
// Malformed, expired and signature-invalid tokens all collapse into it so
// the rejection response cannot be used as an oracle; the real cause is
// logged internally.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the verified payload of an access token.
type Claims struct {
	Room string `json:"room,omitempty"`
	jwtlib.RegisteredClaims
}

// RoomID returns the broadcast room this token admits to.
func (c *Claims) RoomID() domain.RoomID {
	return domain.DeriveRoomID(c.Room, c.Subject)
}

// Verify checks the token signature and expiry under the shared secret.
// Only the HMAC family is accepted.
func Verify(token string, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(token, claims,
		func(t *jwtlib.Token) (any, error) {
			if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
			}
			return secret, nil
		},
		jwtlib.WithLeeway(Leeway),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		log.Warn().Err(err).Str("module", "auth").Msg("token rejected")
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromProtocol extracts the bearer token from a
// Sec-WebSocket-Protocol header value. Browsers cannot set an
// Authorization header on a WebSocket, so the token rides in the
// subprotocol list instead.
//
// Recognized forms:
//
//	"bearer, <token>"  - browser clients (new WebSocket(url, ["bearer", token]))
//	"<token>"          - direct form for non-browser clients
//
// Anything else yields an empty string, which admission rejects.
func TokenFromProtocol(header string) string {
	parts := strings.Split(header, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	if len(parts) == 1 && !strings.EqualFold(parts[0], "bearer") {
		return parts[0]
	}
	return ""
}

// UsedBearerForm reports whether the header carried the token as a
// subprotocol list. The upgrade response must then echo "bearer" back,
// as the handshake requires one of the offered subprotocols to be chosen.
func UsedBearerForm(header string) bool {
	first, _, _ := strings.Cut(header, ",")
	return strings.EqualFold(strings.TrimSpace(first), "bearer")
}

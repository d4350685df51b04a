package signal

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"peercore/internal/core/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// PeerClaims carries the identity a control-channel connection claims at
// the WebSocket upgrade boundary. Validating it establishes who the peer
// says it is; it is not an authorization system (non-goal).
type PeerClaims struct {
	PeerID   domain.ID `json:"peer_id"`
	PeerName string    `json:"peer_name"`
	jwt.RegisteredClaims
}

// PeerAuthenticator issues and validates the JWT that identifies a Peer at
// the control channel boundary.
type PeerAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewPeerAuthenticator(secret string, ttl time.Duration) *PeerAuthenticator {
	return &PeerAuthenticator{secret: []byte(secret), ttl: ttl}
}

func (a *PeerAuthenticator) IssueToken(peerID domain.ID, peerName string) (string, error) {
	claims := &PeerClaims{
		PeerID:   peerID,
		PeerName: peerName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *PeerAuthenticator) ValidateToken(tokenString string) (*PeerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PeerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*PeerClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

package platformtest

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var errTokenRevoked = errors.New("token revoked")

type claims struct {
	jwt.RegisteredClaims
	Type       string `json:"typ"`
	Generation int    `json:"gen"`
}

// tokenIssuer signs HS256 tokens. Bumping a generation invalidates every
// token of that type issued before.
type tokenIssuer struct {
	secret []byte

	mu         sync.Mutex
	accessGen  int
	refreshGen int
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func newTokenIssuer() *tokenIssuer {
	return &tokenIssuer{
		secret:     []byte(uuid.NewString()),
		accessTTL:  15 * time.Minute,
		refreshTTL: 24 * time.Hour,
	}
}

func (ti *tokenIssuer) issue(userID int64, kind string) (string, error) {
	ti.mu.Lock()
	gen, ttl := ti.accessGen, ti.accessTTL
	if kind == tokenRefresh {
		gen, ttl = ti.refreshGen, ti.refreshTTL
	}
	ti.mu.Unlock()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Type:       kind,
		Generation: gen,
	})
	return token.SignedString(ti.secret)
}

// verify returns the user id of a valid, current token of the given kind.
func (ti *tokenIssuer) verify(raw, kind string) (int64, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, err
	}
	if c.Type != kind {
		return 0, errors.New("wrong token type")
	}

	ti.mu.Lock()
	current := ti.accessGen
	if kind == tokenRefresh {
		current = ti.refreshGen
	}
	ti.mu.Unlock()
	if c.Generation != current {
		return 0, errTokenRevoked
	}

	return strconv.ParseInt(c.Subject, 10, 64)
}

func (ti *tokenIssuer) expireAccess() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.accessGen++
}

func (ti *tokenIssuer) revokeRefresh() {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.refreshGen++
}

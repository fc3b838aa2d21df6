package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

var ErrInvalidToken = errors.New("invalid auth token")

const defaultIssuer = "dispatchdesk"

type actorClaims struct {
	Role     model.Role `json:"role"`
	Verified bool       `json:"verified"`
	Active   bool       `json:"active"`
	jwt.RegisteredClaims
}

// JWTStrategy signs actor tokens with HS256.
type JWTStrategy struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTStrategy builds JWTStrategy with provided secret and options.
func NewJWTStrategy(secret string, opts Options) *JWTStrategy {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}
	return &JWTStrategy{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// IssueToken signs a token carrying the actor identity and flags.
func (s *JWTStrategy) IssueToken(actor model.Actor) (string, error) {
	if actor.ID == "" || !actor.Role.Valid() {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	now := s.now()
	claims := actorClaims{
		Role:     actor.Role,
		Verified: actor.IsVerified,
		Active:   actor.IsActive,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ResolveActor validates token and returns the actor it names.
// Any defect yields ErrInvalidToken.
func (s *JWTStrategy) ResolveActor(token string) (model.Actor, error) {
	if len(s.secret) == 0 || token == "" {
		return model.Actor{}, ErrInvalidToken
	}

	var claims actorClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return model.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Actor{}, ErrInvalidToken
	}

	return model.Actor{
		ID:         claims.Subject,
		Role:       claims.Role,
		IsVerified: claims.Verified,
		IsActive:   claims.Active,
	}, nil
}

func (s *JWTStrategy) Name() string {
	return "jwt"
}

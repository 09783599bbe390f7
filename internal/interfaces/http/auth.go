package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxActorID    = "actor_id"
	ctxActorRoles = "actor_roles"
)

// ErrUnauthorized is returned for missing or invalid bearer tokens
var ErrUnauthorized = errors.New("unauthorized")

// Claims are the bearer token claims; the subject is the actor id
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. An empty issuer accepts any issuer.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue signs a token for subject, used by tooling and tests
func (a *Authenticator) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns its claims
func (a *Authenticator) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the actor in the context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			abortWith(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := a.Parse(tokenStr)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		c.Set(ctxActorID, claims.Subject)
		c.Set(ctxActorRoles, claims.Roles)
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(ctxActorID)
}

func actorRoles(c *gin.Context) []string {
	return c.GetStringSlice(ctxActorRoles)
}

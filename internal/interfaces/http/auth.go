package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const actorContextKey = "actor"

// Claims is the bearer token payload. Subject carries the user ID.
type Claims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and turns them into actors
type Authenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewAuthenticator creates an Authenticator. An empty issuer skips the iss check.
func NewAuthenticator(secret, issuer string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Issue signs a token for actor valid for ttl
func (a *Authenticator) Issue(actor entity.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:      string(actor.Role),
		CompanyID: actor.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Parse verifies raw and returns the actor it names
func (a *Authenticator) Parse(raw string) (entity.Actor, error) {
	var claims Claims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return entity.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	actor := entity.Actor{
		ID:        claims.Subject,
		Role:      entity.Role(claims.Role),
		CompanyID: claims.CompanyID,
	}
	if actor.ID == "" {
		return entity.Actor{}, errors.New("invalid token: missing subject")
	}
	if !actor.Role.IsValid() {
		return entity.Actor{}, fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}
	if actor.CompanyID == "" {
		return entity.Actor{}, errors.New("invalid token: missing company")
	}
	return actor, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// actor on the gin context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing bearer token",
			})
			return
		}

		actor, err := a.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "invalid bearer token",
			})
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// actorFrom returns the actor stored by Middleware
func actorFrom(c *gin.Context) entity.Actor {
	v, _ := c.Get(actorContextKey)
	actor, _ := v.(entity.Actor)
	return actor
}

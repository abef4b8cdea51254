package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nyxlight/ledger/internal/apperr"
)

// UserRecord is one operator account. Passwords are bcrypt hashes —
// there is no external identity provider in this local-first deployment
// (spec.md §4.K treats auth as "an external auth module"; here that
// collaborator is a minimal built-in one instead of Casdoor/JWKS, per
// SPEC_FULL.md §3 "4.K Control API").
type UserRecord struct {
	PasswordHash string
	DisplayName  string
	Role         string
}

// Claims is the JWT payload issued by POST /api/auth/login.
type Claims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies the bearer tokens the Control API
// accepts, standing in for the external auth module spec.md names as a
// collaborator.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	users  map[string]UserRecord
}

// NewAuthenticator builds an Authenticator over a fixed user registry.
func NewAuthenticator(secret []byte, ttl time.Duration, users map[string]UserRecord) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &Authenticator{secret: secret, ttl: ttl, users: users}
}

// Login validates username/password and returns a signed token, or
// Unauthorized if the credentials don't match.
func (a *Authenticator) Login(username, password string) (string, UserRecord, error) {
	rec, ok := a.users[username]
	if !ok {
		return "", UserRecord{}, apperr.Unauthorized("nepoznato korisničko ime ili lozinka")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return "", UserRecord{}, apperr.Unauthorized("nepoznato korisničko ime ili lozinka")
	}

	now := time.Now().UTC()
	claims := Claims{
		UserID:      username,
		DisplayName: rec.DisplayName,
		Role:        rec.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", UserRecord{}, apperr.Internal(err)
	}

	return token, rec, nil
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)

	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// Protect is the JWT verification middleware: it parses the bearer token,
// rejects an expired or malformed one, and injects user_id/display_name/
// role into fiber.Ctx.Locals for downstream handlers — mirroring
// withJWT.go's JWTMiddleware.Protect() shape, minus the JWKS fetch (this
// scheme is symmetric, locally issued, per SPEC_FULL.md's simplification
// of the teacher's Casdoor/JWKS flow).
func (a *Authenticator) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" {
			return WithError(c, apperr.Unauthorized("nedostaje token"))
		}

		claims := &Claims{}

		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			return WithError(c, apperr.Unauthorized("token nije valjan ili je istekao"))
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("display_name", claims.DisplayName)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// UserID reads the authenticated user injected by Protect.
func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals("user_id").(string)
	return v
}

// DisplayName reads the authenticated user's display name.
func DisplayName(c *fiber.Ctx) string {
	v, _ := c.Locals("display_name").(string)
	return v
}

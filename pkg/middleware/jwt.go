package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// LocalClaims is the locals key holding verified JWT claims.
const LocalClaims = "jwt_claims"

// JWTConfig configures JWTAuth.
type JWTConfig struct {
	// Secret is the HMAC key tokens must be signed with.
	Secret []byte
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string
	// Header defaults to Authorization with a Bearer prefix.
	Header string
}

// JWTAuth rejects requests without a valid HMAC-signed bearer token with
// 401. Verified claims are stored in the request locals.
func JWTAuth(cfg JWTConfig) (Middleware, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt auth requires a secret")
	}
	header := cfg.Header
	if header == "" {
		header = "Authorization"
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (any, error) { return cfg.Secret, nil }

	return Named("jwt_auth", func(c *Context, next Next) *Response {
		raw := c.Header.Get(header)
		if header == "Authorization" {
			var ok bool
			raw, ok = strings.CutPrefix(raw, "Bearer ")
			if !ok {
				raw = ""
			}
		}
		if raw == "" {
			return unauthorized("missing token")
		}

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			c.Logger().Debug("jwt rejected", "path", c.Path, "error", err)
			return unauthorized("invalid token")
		}
		c.Locals.Set(LocalClaims, claims)
		return next(c)
	}), nil
}

func unauthorized(msg string) *Response {
	resp := Text(http.StatusUnauthorized, msg)
	resp.Header.Set("WWW-Authenticate", `Bearer realm="switchboard"`)
	return resp
}

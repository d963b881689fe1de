// Package auth authenticates callers against the identity service's
// HS256 access tokens. Authentication is a precondition of every
// conversation and call endpoint; the handlers behind the middleware only
// ever see a verified Identity.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
)

// Identity is the stable id of an authenticated user.
type Identity struct {
	UserID string
}

type Verifier interface {
	Authenticate(ctx context.Context, bearer string) (Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, bearer string) (Identity, error)

func (f VerifierFunc) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	return f(ctx, bearer)
}

// JWTVerifier validates HS256 tokens signed with the identity service's
// shared secret. The subject claim is the user id.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (v *JWTVerifier) Authenticate(_ context.Context, bearer string) (Identity, error) {
	if bearer == "" {
		return Identity{}, apperr.Unauthenticated("missing bearer token")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(bearer, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperr.Wrap(apperr.CodeUnauthenticated, "invalid bearer token", err)
	}
	if claims.ExpiresAt == nil {
		return Identity{}, apperr.Unauthenticated("bearer token has no expiry")
	}
	if claims.Subject == "" {
		return Identity{}, apperr.Unauthenticated("bearer token has no subject")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Identity{}, apperr.Unauthenticated("bearer token issuer mismatch")
	}
	return Identity{UserID: claims.Subject}, nil
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// Browsers cannot set headers on websocket upgrades, so upgrades may pass
// it as the access_token query parameter instead.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if header == "" && websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// Middleware rejects unauthenticated requests with 401 {"error": ...}.
func Middleware(v Verifier, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const shopperKey contextKey = "shopper"

// Shopper is the authenticated identity behind a request.
type Shopper struct {
	ID    string
	Email string
}

type shopperClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ShopperAuth validates an optional HS256 bearer token. Requests without a
// token continue as anonymous; a token that fails validation is rejected.
func ShopperAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, kindUnauthorized, "malformed authorization header")
				return
			}
			shopper, err := parseShopperToken(raw, secret)
			if err != nil {
				respondError(w, http.StatusUnauthorized, kindUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), shopperKey, shopper)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseShopperToken(raw string, secret []byte) (*Shopper, error) {
	if len(secret) == 0 {
		return nil, errors.New("token validation is not configured")
	}

	var claims shopperClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Shopper{ID: claims.Subject, Email: claims.Email}, nil
}

func shopperFromContext(ctx context.Context) *Shopper {
	if s, ok := ctx.Value(shopperKey).(*Shopper); ok {
		return s
	}
	return nil
}

// RequestLogger logs one line per request with the id assigned by
// middleware.RequestID.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))

			next.ServeHTTP(ww, r)

			log.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Claims are the values the pipeline needs from a bearer token: who is
// acting, and inside which tenant.
type Claims struct {
	UserID   string
	TenantID string
}

// Validator validates bearer tokens. The JWT implementation lives below;
// tests substitute a stub.
type Validator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTValidator validates HMAC-signed tokens carrying user_id and tenant_id
// claims.
type JWTValidator struct {
	signingKey []byte
}

func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	claims := &Claims{}
	if v, ok := mapClaims["user_id"].(string); ok {
		claims.UserID = v
	}
	if v, ok := mapClaims["tenant_id"].(string); ok {
		claims.TenantID = v
	}
	if claims.UserID == "" || claims.TenantID == "" {
		return nil, fmt.Errorf("token missing user_id or tenant_id claim")
	}

	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token and populates
// requestcontext with the actor and tenant for downstream services.
func RequireAuth(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}

			ctx := requestcontext.WithActor(r.Context(), claims.UserID)
			ctx = requestcontext.WithTenantID(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "unauthorized",
		"error_description": desc,
	})
}

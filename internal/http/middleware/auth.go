package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gynoconnect/clinic-scheduler/internal/auth"
)

// Claims is the token payload: sub is the user id, role the capability class.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var errUnknownRole = errors.New("unknown role")

// Authenticate verifies an HMAC-signed bearer token and stores the caller's
// principal on the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "auth disabled")
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			p, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// ParseToken validates tokenString and returns its principal.
func ParseToken(secret, tokenString string) (auth.Principal, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = jwt.ErrTokenInvalidClaims
		}
		return auth.Principal{}, err
	}
	role := auth.Role(strings.ToLower(claims.Role))
	switch role {
	case auth.RoleAdmin, auth.RoleDoctor, auth.RoleReceptionist, auth.RolePatient:
	default:
		return auth.Principal{}, errUnknownRole
	}
	if claims.Subject == "" {
		return auth.Principal{}, jwt.ErrTokenRequiredClaimMissing
	}
	return auth.Principal{UserID: claims.Subject, Role: role}, nil
}

// RequireRole rejects callers without one of roles. It must run after
// Authenticate.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !p.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

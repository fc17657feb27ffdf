// ABOUTME: Caller identity for the tree service: HS256 JWT bearer tokens or a trusted user header.
// ABOUTME: A static bearer token may additionally gate every route except /health.

package treeserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserHeader names the caller when no signing key is configured.
const UserHeader = "X-Flowgraph-User"

// AnonymousUser is the identity of callers that present none.
const AnonymousUser = "anonymous"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the JWT claims accepted by the service. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// IssueToken signs a token identifying userID, valid for ttl.
func IssueToken(key []byte, userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "flowgraph",
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseToken validates tokenStr against key and returns its claims.
func ParseToken(key []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type userKey struct{}

// UserFrom returns the caller identity stored by the identity middleware.
func UserFrom(ctx context.Context) string {
	if u, ok := ctx.Value(userKey{}).(string); ok && u != "" {
		return u
	}
	return AnonymousUser
}

// identityMiddleware resolves the caller. With a signing key every request except
// /health must carry a valid JWT; without one the user header is trusted and a
// non-empty staticToken must match the bearer token.
func identityMiddleware(signingKey []byte, staticToken string) func(http.Handler) http.Handler {
	expected := "Bearer " + staticToken
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			var user string
			switch {
			case len(signingKey) > 0:
				raw, ok := strings.CutPrefix(auth, "Bearer ")
				if !ok {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				claims, err := ParseToken(signingKey, raw)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				user = claims.Subject
			case staticToken != "":
				if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				user = r.Header.Get(UserHeader)
			default:
				user = r.Header.Get(UserHeader)
			}
			if user == "" {
				user = AnonymousUser
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}
}

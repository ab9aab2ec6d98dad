package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"voicenotes/internal/store"
)

var ErrInvalidToken = errors.New("invalid token")
var ErrTokenExpired = errors.New("token expired")
var ErrTokenUsed = errors.New("token already used")

// CookieName carries the session JWT for browser clients.
const CookieName = "vn_token"

// Auth issues single-use login links and validates the session tokens they
// are exchanged for. One owner role: whoever holds a valid session controls
// the notes.
type Auth struct {
	store     *store.Store
	jwtSecret []byte
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func New(st *store.Store, secret string) *Auth {
	return &Auth{
		store:     st,
		jwtSecret: []byte(secret),
	}
}

func (a *Auth) GenerateLoginLink(baseURL string) (string, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}
	tokenStr := hex.EncodeToString(token)

	expiresAt := time.Now().Add(24 * time.Hour) // Link valid for 24 hours
	if err := a.store.CreateAuthToken(tokenStr, expiresAt); err != nil {
		return "", err
	}

	return baseURL + "/auth/login?token=" + tokenStr, nil
}

func (a *Auth) ValidateLoginToken(token string) (string, error) {
	authToken, err := a.store.GetAuthToken(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	if authToken.Used {
		return "", ErrTokenUsed
	}

	if time.Now().After(authToken.ExpiresAt) {
		return "", ErrTokenExpired
	}

	if err := a.store.MarkTokenUsed(token); err != nil {
		return "", err
	}

	return a.GenerateJWT()
}

func (a *Auth) GenerateJWT() (string, error) {
	claims := &Claims{
		Role: "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(90 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "voicenotes",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Middleware resolves the session from the bearer header or cookie and
// tags the request with the owner role. With requireAuth set, requests
// without a valid session are rejected.
func (a *Auth) Middleware(next http.HandlerFunc, requireAuth bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The role header is set by this middleware only, never by clients.
		r.Header.Del("X-User-Role")

		authHeader := r.Header.Get("Authorization")

		if authHeader == "" {
			cookie, err := r.Cookie(CookieName)
			if err == nil {
				authHeader = "Bearer " + cookie.Value
			}
		}

		if authHeader == "" {
			if requireAuth {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			if requireAuth {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}
			next(w, r)
			return
		}

		claims, err := a.ValidateJWT(parts[1])
		if err != nil {
			if requireAuth {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			next(w, r)
			return
		}

		r.Header.Set("X-User-Role", claims.Role)
		next(w, r)
	}
}

// IsOwner reports whether the request carries an authenticated owner
// session.
func IsOwner(r *http.Request) bool {
	return r.Header.Get("X-User-Role") == "owner"
}

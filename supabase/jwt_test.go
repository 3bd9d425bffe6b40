package supabase

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signAccessToken signs a token shaped like a Supabase access token.
func signAccessToken(secret, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"aud":  "authenticated",
		"role": "authenticated",
		"exp":  time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey sign and verify session tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TokenExpireSec is how many seconds until JWT expiration (0 => never).
	TokenExpireSec int
)

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets TokenExpireSec.
func parseTokenExpireTime() error {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TokenExpireSec = 0
		return nil
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		return fmt.Errorf("failed to parse token expire time: %w", err)
	}
	TokenExpireSec = int(d.Seconds())
	return nil
}

// Init generates a fresh ed25519 key pair at runtime and sets the token
// expiration. Tokens do not survive a restart, which matches the rest of the
// system: no game state does either.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenExpireTime()
}

// CreateJWT creates a signed session token with "sub" = username.
func CreateJWT(username string) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
	}
	if TokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TokenExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token string and returns the username it was
// issued for.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return username, nil
}

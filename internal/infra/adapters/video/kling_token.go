package video

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// klingTokenSkew backdates nbf so small clock drift does not reject the token.
const klingTokenSkew = 5 * time.Second

// signKlingToken builds a short-lived HS256 token: iss is the access key,
// signed with the secret key. A fresh token is minted for every request.
func signKlingToken(accessKey, secretKey string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    accessKey,
		NotBefore: jwt.NewNumericDate(now.Add(-klingTokenSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

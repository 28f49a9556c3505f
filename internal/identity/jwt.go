package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the account service's access token we rely on.
type Claims struct {
	ID       int64
	Username string
}

// accessClaims mirrors the token body issued by the account service.
// Fields must be exported for JSON serialization.
type accessClaims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type JWTVerifier struct {
	secretKey []byte
	parser    *jwt.Parser
}

func NewJWTVerifier(secretKey string) *JWTVerifier {
	return &JWTVerifier{
		secretKey: []byte(secretKey),
		parser:    jwt.NewParser(jwt.WithExpirationRequired()),
	}
}

func (v *JWTVerifier) Verify(tokenString string) (Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if m, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || m != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSigningMethod
		}
		return v.secretKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSigningMethod):
			return Claims{}, ErrInvalidSigningMethod
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidTokenSignature
		default:
			return Claims{}, fmt.Errorf("%w: %w", ErrCorruptedToken, err)
		}
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return Claims{}, ErrCorruptedToken
	}
	return Claims{ID: claims.UserID, Username: claims.Username}, nil
}

// Sign issues an HS256 access token. The account service owns issuance in
// production; the server uses this for local tooling and tests.
func Sign(secretKey string, id int64, username string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		UserID:   id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

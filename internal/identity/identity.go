package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const MaxUsernameLength = 24

var (
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrMissingToken          = fmt.Errorf("%w: missing-token", ErrUnauthenticated)
	ErrExpiredToken          = fmt.Errorf("%w: expired-token", ErrUnauthenticated)
	ErrInvalidTokenSignature = fmt.Errorf("%w: invalid-token-signature", ErrUnauthenticated)
	ErrInvalidSigningMethod  = fmt.Errorf("%w: invalid-signing-method", ErrUnauthenticated)
	ErrCorruptedToken        = fmt.Errorf("%w: corrupted-token", ErrUnauthenticated)
	ErrInvalidUsername       = fmt.Errorf("%w: invalid-username", ErrUnauthenticated)
)

// Identity is who a connection plays as. It is produced once per connection by
// the Resolver and passed explicitly into every room operation.
type Identity struct {
	ID       *int64 `json:"id,omitempty"`
	Username string `json:"username"`
	IsGuest  bool   `json:"isGuest"`
}

// Credentials are the handshake values a client presents when connecting.
type Credentials struct {
	AccessToken string
	Username    string
	IsGuest     bool
}

type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

type Resolver struct {
	verifier TokenVerifier
}

// NewResolver returns a resolver that verifies account tokens with v.
// A nil verifier admits guests only.
func NewResolver(v TokenVerifier) *Resolver {
	return &Resolver{verifier: v}
}

// Resolve turns handshake credentials into an Identity. Guests are trusted by
// their claimed name. Accounts are trusted by their token alone; a failed
// verification is an error, never a downgrade to guest.
func (r *Resolver) Resolve(c Credentials) (Identity, error) {
	if c.IsGuest {
		name, err := NormalizeUsername(c.Username)
		if err != nil {
			return Identity{}, err
		}
		return Identity{Username: name, IsGuest: true}, nil
	}

	if c.AccessToken == "" {
		return Identity{}, ErrMissingToken
	}
	if r.verifier == nil {
		return Identity{}, ErrInvalidTokenSignature
	}

	claims, err := r.verifier.Verify(c.AccessToken)
	if err != nil {
		return Identity{}, err
	}
	name, err := NormalizeUsername(claims.Username)
	if err != nil {
		return Identity{}, err
	}
	id := claims.ID
	return Identity{ID: &id, Username: name, IsGuest: false}, nil
}

var usernameCleaner = transform.Chain(
	norm.NFC,
	runes.Remove(runes.Predicate(unicode.IsControl)),
)

// NormalizeUsername NFC-normalises a display name, strips control characters
// and surrounding space, and enforces the length bounds.
func NormalizeUsername(s string) (string, error) {
	cleaned, _, err := transform.String(usernameCleaner, s)
	if err != nil {
		return "", ErrInvalidUsername
	}
	cleaned = strings.TrimSpace(cleaned)
	n := len([]rune(cleaned))
	if n == 0 || n > MaxUsernameLength {
		return "", ErrInvalidUsername
	}
	return cleaned, nil
}

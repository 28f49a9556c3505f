package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jonatan-kruse/typebout/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "a long enough secret for the race server tests"

func TestResolveGuest(t *testing.T) {
	r := identity.NewResolver(nil)

	id, err := r.Resolve(identity.Credentials{Username: "  speedy  ", IsGuest: true})
	require.NoError(t, err)
	assert.Equal(t, "speedy", id.Username)
	assert.True(t, id.IsGuest)
	assert.Nil(t, id.ID)
}

func TestResolveGuestIgnoresToken(t *testing.T) {
	r := identity.NewResolver(identity.NewJWTVerifier(secret))

	id, err := r.Resolve(identity.Credentials{AccessToken: "garbage", Username: "guesty", IsGuest: true})
	require.NoError(t, err)
	assert.True(t, id.IsGuest)
	assert.Equal(t, "guesty", id.Username)
}

func TestResolveGuestRejectsBadNames(t *testing.T) {
	r := identity.NewResolver(nil)

	for _, name := range []string{"", "   ", "\x00\x01", strings.Repeat("a", identity.MaxUsernameLength+1)} {
		_, err := r.Resolve(identity.Credentials{Username: name, IsGuest: true})
		assert.ErrorIs(t, err, identity.ErrInvalidUsername, "name %q", name)
		assert.ErrorIs(t, err, identity.ErrUnauthenticated)
	}
}

func TestResolveAccount(t *testing.T) {
	r := identity.NewResolver(identity.NewJWTVerifier(secret))
	token, err := identity.Sign(secret, 42, "alice", time.Now().Add(time.Hour))
	require.NoError(t, err)

	id, err := r.Resolve(identity.Credentials{AccessToken: token, Username: "mallory", IsGuest: false})
	require.NoError(t, err)
	require.NotNil(t, id.ID)
	assert.Equal(t, int64(42), *id.ID)
	assert.Equal(t, "alice", id.Username, "name comes from the token, not the claim")
	assert.False(t, id.IsGuest)
}

func TestResolveAccountFailuresAreNotDowngraded(t *testing.T) {
	r := identity.NewResolver(identity.NewJWTVerifier(secret))

	expired, err := identity.Sign(secret, 1, "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	valid, err := identity.Sign(secret, 1, "alice", time.Now().Add(time.Hour))
	require.NoError(t, err)
	foreign, err := identity.Sign("someone else's secret", 1, "alice", time.Now().Add(time.Hour))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	noneAlg := "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0" + "." + parts[1] + "."

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{"missing", "", identity.ErrMissingToken},
		{"expired", expired, identity.ErrExpiredToken},
		{"tampered", valid + "x", identity.ErrInvalidTokenSignature},
		{"foreign key", foreign, identity.ErrInvalidTokenSignature},
		{"none alg", noneAlg, identity.ErrInvalidSigningMethod},
		{"garbage", "not-a-token", identity.ErrCorruptedToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := r.Resolve(identity.Credentials{AccessToken: tc.token, Username: "alice"})
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, identity.ErrUnauthenticated)
			assert.Equal(t, identity.Identity{}, id)
		})
	}
}

func TestResolveAccountWithoutVerifier(t *testing.T) {
	r := identity.NewResolver(nil)
	token, err := identity.Sign(secret, 7, "bob", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = r.Resolve(identity.Credentials{AccessToken: token, Username: "bob"})
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestVerifierRejectsMissingID(t *testing.T) {
	v := identity.NewJWTVerifier(secret)
	token, err := identity.Sign(secret, 0, "nobody", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, identity.ErrCorruptedToken)
}

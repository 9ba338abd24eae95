package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestIssueParse(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	actor := uuid.New()

	issued, err := m.Issue(actor)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	session, err := m.Parse(issued.Value)
	require.NoError(t, err)
	assert.Equal(t, actor, session.ActorID)
	assert.NotEmpty(t, session.TokenID)
	assert.Equal(t, issued.ExpiresAt.Unix(), session.ExpiresAt.Unix())
	assert.InDelta(t, time.Hour.Seconds(), session.Remaining(time.Now()).Seconds(), 5)

	again, err := m.Issue(actor)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Value, again.Value)
}

func TestParseRejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	foreign, err := NewJWTManager("other", time.Hour).Issue(uuid.New())
	require.NoError(t, err)

	expired, err := NewJWTManager("secret", -time.Minute).Issue(uuid.New())
	require.NoError(t, err)

	cases := map[string]string{
		"foreign secret": foreign.Value,
		"expired":        expired.Value,
		"garbage":        "not-a-jwt",
		"other issuer": sign(t, "secret", jwt.RegisteredClaims{
			Issuer: "someone-else", Subject: uuid.NewString(), ExpiresAt: exp,
		}),
		"subject not uuid": sign(t, "secret", jwt.RegisteredClaims{
			Issuer: issuer, Subject: "user-1", ExpiresAt: exp,
		}),
		"no expiry": sign(t, "secret", jwt.RegisteredClaims{
			Issuer: issuer, Subject: uuid.NewString(),
		}),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Parse(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestHandshakeToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	tok, err := HandshakeToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "bearer xyz")
	tok, err = HandshakeToken(r)
	require.NoError(t, err)
	assert.Equal(t, "xyz", tok)

	r = httptest.NewRequest("GET", "/ws", nil)
	_, err = HandshakeToken(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r = httptest.NewRequest("GET", "/api/v1/users/me?token=abc", nil)
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrNoToken)
}

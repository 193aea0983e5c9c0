package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSRFTokenRoundTrip(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := &Session{ID: "abc"}

	token := m.TokenFor(sess)
	require.NotEmpty(t, token)
	require.NoError(t, m.VerifyToken(sess, token))
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	token := m.TokenFor(&Session{ID: "abc"})

	err := m.VerifyToken(&Session{ID: "other"}, token)
	require.ErrorIs(t, err, ErrCSRFTokenMismatch)
}

func TestCSRFTokenDependsOnSecret(t *testing.T) {
	sess := &Session{ID: "abc"}
	token := NewCSRFManager("secret-a").TokenFor(sess)

	err := NewCSRFManager("secret-b").VerifyToken(sess, token)
	require.ErrorIs(t, err, ErrCSRFTokenMismatch)
}

func TestCSRFMissingToken(t *testing.T) {
	m := NewCSRFManager("secret")
	require.ErrorIs(t, m.VerifyToken(&Session{ID: "abc"}, ""), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyToken(nil, "token"), ErrCSRFTokenMissing)
}

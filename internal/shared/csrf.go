package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// CSRFHeader is the request header carrying the CSRF token.
const CSRFHeader = "X-CSRF-Token"

// CSRFManager issues and verifies CSRF tokens bound to a session ID.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// TokenFor derives the token for a session.
func (m *CSRFManager) TokenFor(sess *Session) string {
	if sess == nil {
		return ""
	}
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(sess.ID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyToken compares the supplied token with the expected session token.
func (m *CSRFManager) VerifyToken(sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := m.TokenFor(sess)
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

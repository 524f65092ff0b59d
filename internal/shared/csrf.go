package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// CSRFSessionKey holds the current token in the session.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the hidden form field carrying the token.
	CSRFFormField = "csrf_token"
	// DefaultCSRFMaxAge bounds a token's life independently of the session.
	DefaultCSRFMaxAge = 12 * time.Hour
)

// ErrCSRFTokenExpired is returned for tokens older than the manager's max age.
var ErrCSRFTokenExpired = errors.New("csrf token expired")

// CSRFManager issues tokens "nonce.issued.mac". The mac covers the session ID,
// nonce and issue time, so a token copied into another session or edited to
// look fresh fails verification.
type CSRFManager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewCSRFManager returns a manager signing with secret.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret), maxAge: DefaultCSRFMaxAge, now: time.Now}
}

// EnsureToken returns the session's token, minting a new one when it is
// missing, bound to another session, or expired.
func (m *CSRFManager) EnsureToken(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", ErrSessionMissing
	}
	if token := sess.Get(CSRFSessionKey); token != "" && m.check(sess.ID, token) == nil {
		return token, nil
	}
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(nonce) + "." + strconv.FormatInt(m.now().Unix(), 10)
	token := payload + "." + m.sign(sess.ID, payload)
	sess.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken accepts token only if it equals the session's current token and
// is still valid for that session.
func (m *CSRFManager) VerifyToken(ctx context.Context, sess *Session, token string) error {
	if sess == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	expected := sess.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return m.check(sess.ID, token)
}

func (m *CSRFManager) check(sessionID, token string) error {
	i := strings.LastIndexByte(token, '.')
	if i < 0 {
		return ErrCSRFTokenMismatch
	}
	payload, mac := token[:i], token[i+1:]
	if !hmac.Equal([]byte(m.sign(sessionID, payload)), []byte(mac)) {
		return ErrCSRFTokenMismatch
	}
	_, issuedRaw, _ := strings.Cut(payload, ".")
	issued, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return ErrCSRFTokenMismatch
	}
	if m.now().Sub(time.Unix(issued, 0)) > m.maxAge {
		return ErrCSRFTokenExpired
	}
	return nil
}

func (m *CSRFManager) sign(sessionID, payload string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(sessionID))
	_, _ = mac.Write([]byte{'|'})
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

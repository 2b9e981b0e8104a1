package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("shield secret is not configured")
)

const sigLen = 16

// TokenSigner binds a visit session id to the link slug it was issued for, so
// the page runtime can address its session without the id being guessable or
// replayable against another link.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer that issues compact HMAC tokens.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a token of the form <session>.<expiry>.<sig> for slug.
func (s *TokenSigner) Issue(slug, sessionID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	expiry := make([]byte, 4)
	binary.BigEndian.PutUint32(expiry, uint32(s.now().Add(s.ttl).Unix()))

	expEnc := base64.RawURLEncoding.EncodeToString(expiry)
	sig := s.sign(slug, sessionID, expiry)
	sigEnc := base64.RawURLEncoding.EncodeToString(sig[:sigLen])
	return sessionID + "." + expEnc + "." + sigEnc, nil
}

// Validate checks signature integrity and TTL and returns the session id.
func (s *TokenSigner) Validate(slug, token string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrInvalidToken
	}
	sessionID := parts[0]

	expiry, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(expiry) != 4 {
		return "", ErrInvalidToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sigProvided) != sigLen {
		return "", ErrInvalidToken
	}

	expected := s.sign(slug, sessionID, expiry)
	if !hmac.Equal(sigProvided, expected[:sigLen]) {
		return "", ErrInvalidToken
	}

	if s.now().Unix() > int64(binary.BigEndian.Uint32(expiry)) {
		return "", ErrInvalidToken
	}

	return sessionID, nil
}

func (s *TokenSigner) sign(slug, sessionID string, expiry []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(slug))
	mac.Write([]byte("|"))
	mac.Write([]byte(sessionID))
	mac.Write([]byte("|"))
	mac.Write(expiry)
	return mac.Sum(nil)
}

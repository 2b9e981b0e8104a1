package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner_RoundTrip(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)

	token, err := s.Issue("promo", "3f1c2a9e-session")
	require.NoError(t, err)

	id, err := s.Validate("promo", token)
	require.NoError(t, err)
	assert.Equal(t, "3f1c2a9e-session", id)
}

func TestTokenSigner_Rejects(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)
	token, err := s.Issue("promo", "sess")
	require.NoError(t, err)

	other := NewTokenSigner([]byte("other"), time.Minute)
	otherToken, err := other.Issue("promo", "sess")
	require.NoError(t, err)

	cases := map[string]struct {
		slug  string
		token string
	}{
		"other slug":      {"elsewhere", token},
		"other secret":    {"promo", otherToken},
		"swapped session": {"promo", "evil" + token[len("sess"):]},
		"garbage":         {"promo", "not-a-token"},
		"empty session":   {"promo", token[len("sess"):]},
		"bad signature":   {"promo", tamperSignature(token)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Validate(tc.slug, tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestTokenSigner_Expiry(t *testing.T) {
	s := NewTokenSigner([]byte("secret"), time.Minute)
	issued := time.Now()
	s.now = func() time.Time { return issued }

	token, err := s.Issue("promo", "sess")
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = s.Validate("promo", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenSigner_MissingSecret(t *testing.T) {
	s := NewTokenSigner(nil, time.Minute)
	_, err := s.Issue("promo", "sess")
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = s.Validate("promo", "a.b.c")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func tamperSignature(token string) string {
	i := strings.LastIndex(token, ".") + 1
	c := byte('A')
	if token[i] == 'A' {
		c = 'B'
	}
	return token[:i] + string(c) + token[i+1:]
}

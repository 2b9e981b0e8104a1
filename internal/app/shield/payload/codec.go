package payload

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrDecode is matched by every DecodeError.
	ErrDecode        = errors.New("payload decode failed")
	ErrMissingSecret = errors.New("payload secret is not configured")
	ErrEmptyBundle   = errors.New("payload destination and link id are required")
)

// DecodeError describes why an opaque payload was rejected.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "payload decode failed: " + e.Reason
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Payload is the opaque, sealed destination bundle.
type Payload string

// Bundle is the cleartext content of a Payload.
type Bundle struct {
	DestinationURL string
	LinkID         string
}

type wireBundle struct {
	U string `json:"u"`
	L string `json:"l"`
}

const hkdfInfo = "linkshield/payload/v1"

// Codec seals bundles with XChaCha20-Poly1305 under a key derived from the shield secret.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the sealing key from secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("payload: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("payload: init cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encode seals destination URL and link id into an opaque payload.
func (c *Codec) Encode(destinationURL, linkID string) (Payload, error) {
	if destinationURL == "" || linkID == "" {
		return "", ErrEmptyBundle
	}

	plain, err := json.Marshal(wireBundle{U: destinationURL, L: linkID})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("payload: nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return Payload(base64.RawURLEncoding.EncodeToString(sealed)), nil
}

// Decode opens a payload. Any malformed or tampered input yields a *DecodeError.
func (c *Codec) Decode(p Payload) (Bundle, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(p))
	if err != nil {
		return Bundle{}, &DecodeError{Reason: "not base64url"}
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return Bundle{}, &DecodeError{Reason: "truncated"}
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Bundle{}, &DecodeError{Reason: "authentication failed"}
	}

	var wb wireBundle
	if err := json.Unmarshal(plain, &wb); err != nil {
		return Bundle{}, &DecodeError{Reason: "malformed bundle"}
	}
	if wb.U == "" || wb.L == "" {
		return Bundle{}, &DecodeError{Reason: "incomplete bundle"}
	}

	return Bundle{DestinationURL: wb.U, LinkID: wb.L}, nil
}

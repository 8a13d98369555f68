package sigkit

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

var (
	ErrEmptyValue           = errors.New("empty value")
	ErrUnrecognizedEncoding = errors.New("value is neither base64 nor hex")
)

// GenerateKey returns a fresh Ed25519 key pair. A nil reader uses crypto/rand.
func GenerateKey(r io.Reader) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	return ed25519.GenerateKey(r)
}

func ParsePrivateKey(value string) (ed25519.PrivateKey, error) {
	raw, err := DecodeBinary(value)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		key := ed25519.NewKeyFromSeed(raw)
		return append(ed25519.PrivateKey(nil), key...), nil
	case ed25519.PrivateKeySize:
		return append(ed25519.PrivateKey(nil), raw...), nil
	default:
		return nil, errors.New("invalid ed25519 private key length")
	}
}

func ParsePublicKey(value string) (ed25519.PublicKey, error) {
	raw, err := DecodeBinary(value)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("invalid ed25519 public key length")
	}
	return append(ed25519.PublicKey(nil), raw...), nil
}

// Sign returns the detached signature of payload, base64 encoded the way the
// admission API expects it.
func Sign(key ed25519.PrivateKey, payload []byte) string {
	return Encode(ed25519.Sign(key, payload))
}

func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeBinary accepts hex or standard base64. Padded base64 of key and
// signature sizes always contains '=', so the two never collide there.
func DecodeBinary(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrEmptyValue
	}
	if raw, err := hex.DecodeString(value); err == nil {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil {
		return raw, nil
	}
	return nil, ErrUnrecognizedEncoding
}

package crypto

import (
	"crypto/ed25519"
	"fmt"

	"sigqueue/pkg/sigkit"
)

// Service is the detached Ed25519 verification primitive. It is stateless
// and safe for concurrent use.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) DecodePublicKey(encoded string) ([]byte, error) {
	raw, err := sigkit.DecodeBinary(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(raw))
	}
	return raw, nil
}

func (s *Service) DecodeSignature(encoded string) ([]byte, error) {
	raw, err := sigkit.DecodeBinary(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid ed25519 signature length: %d", len(raw))
	}
	return raw, nil
}

// Verify reports whether signature is a valid signature of message under
// publicKey. An error means the inputs could not be evaluated at all.
func (s *Service) Verify(signature, message, publicKey []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid ed25519 public key length: %d", len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("invalid ed25519 signature length: %d", len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
}

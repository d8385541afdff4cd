package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// deriveKey expands secret into an independent 32-byte key per purpose.
func deriveKey(secret, purpose string) (*[32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(issuer+" "+purpose))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("auth: deriving %s key: %w", purpose, err)
	}
	return &key, nil
}

// sealer encrypts short strings with NaCl secretbox. Output is
// base64url(nonce || box).
type sealer struct {
	key *[32]byte
}

func newSealer(key *[32]byte) *sealer {
	return &sealer{key: key}
}

func (s *sealer) seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("auth: generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

func (s *sealer) open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("auth: malformed sealed token")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, s.key)
	if !ok {
		return "", errors.New("auth: sealed token does not open")
	}
	return string(plain), nil
}

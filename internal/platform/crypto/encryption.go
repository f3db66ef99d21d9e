// Package crypto seals sensitive payroll fields such as salaries and bank
// account numbers.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "payrollengine/field-encryption/v1"

var errShortCiphertext = errors.New("ciphertext too short")

// Service seals fields with AES-256-GCM, nonce first. A Service built
// without a secret passes data through unchanged.
type Service struct {
	gcm cipher.AEAD
}

// New takes a 64 character hex key as is and stretches any other secret
// with HKDF-SHA256.
func New(secret string) (*Service, error) {
	if secret == "" {
		return &Service{}, nil
	}
	key, err := keyFrom(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{gcm: gcm}, nil
}

func keyFrom(secret string) ([]byte, error) {
	if len(secret) == 64 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Service) Configured() bool {
	return s != nil && s.gcm != nil
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	size := s.gcm.NonceSize()
	nonce := make([]byte, size, size+len(plain)+s.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *Service) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return sealed, nil
	}
	size := s.gcm.NonceSize()
	if len(sealed) < size {
		return nil, errShortCiphertext
	}
	return s.gcm.Open(nil, sealed[:size], sealed[size:], nil)
}

func (s *Service) EncryptString(value string) ([]byte, error) {
	return s.Encrypt([]byte(value))
}

func (s *Service) DecryptString(sealed []byte) (string, error) {
	plain, err := s.Decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

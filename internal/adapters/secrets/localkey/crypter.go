// Package localkey encrypts token blobs with a per-installation symmetric
// key held in a single key file. The key is generated once and then reused
// for the lifetime of the installation: regenerating it would make every
// previously stored ciphertext unrecoverable.
package localkey

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/emberlaunch/ember/internal/ports"
)

const (
	keyFileMode = 0o600
	keyDirMode  = 0o700
)

var (
	ErrMalformedBlob = errors.New("token blob is not valid base64")
	ErrBlobTooShort  = errors.New("token blob is shorter than a nonce")
	// ErrAuthentication covers both tamper and wrong-key: the AEAD tag did
	// not verify. The ciphertext can never be recovered; callers must treat
	// the credential as lost.
	ErrAuthentication = errors.New("token blob failed authentication")
)

type Crypter struct {
	aead cipher.AEAD
}

var _ ports.TokenCrypter = (*Crypter)(nil)

// New loads the key at keyPath, creating it with a cryptographically secure
// random key on first use. The key file and its directory are restricted to
// the owning user.
func New(keyPath string) (*Crypter, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("initialize cipher: %w", err)
	}

	return &Crypter{aead: aead}, nil
}

func (c *Crypter) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("draw nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Crypter) Decrypt(blob string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if len(decoded) < chacha20poly1305.NonceSizeX {
		return nil, ErrBlobTooShort
	}

	nonce, ciphertext := decoded[:chacha20poly1305.NonceSizeX], decoded[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plaintext, nil
}

func loadOrCreateKey(keyPath string) ([]byte, error) {
	keyPath = filepath.Clean(keyPath)

	key, err := os.ReadFile(keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %q has %d bytes, want %d", keyPath, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read key file %q: %w", keyPath, err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), keyDirMode); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(keyPath, key, keyFileMode); err != nil {
		return nil, fmt.Errorf("write key file %q: %w", keyPath, err)
	}

	return key, nil
}

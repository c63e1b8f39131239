package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const PKCEChallengeMethodS256 = "S256"

// Entropy sizes in bytes. 32 encodes to a 43-character verifier, the RFC 7636
// minimum length.
const (
	verifierEntropy = 32
	stateEntropy    = 16
)

type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a fresh verifier and its S256 challenge.
func NewPKCEPair() (PKCEPair, error) {
	raw := make([]byte, verifierEntropy)
	if _, err := rand.Read(raw); err != nil {
		return PKCEPair{}, err
	}

	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))

	return PKCEPair{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// NewState returns an unguessable state value binding an authorization
// request to its callback. A state value is never reused across sessions.
func NewState() (string, error) {
	raw := make([]byte, stateEntropy)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

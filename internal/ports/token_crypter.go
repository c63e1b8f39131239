package ports

// TokenCrypter is an authenticated-encryption contract over opaque byte
// blobs. It has no knowledge of what it encrypts; ciphertext is returned as
// base64 text suitable for embedding in a JSON document.
type TokenCrypter interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(blob string) ([]byte, error)
}

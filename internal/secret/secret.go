package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentinbox/mcp-connect/internal/domain/connect"
)

const (
	// verifierBytes yields an 86 character verifier after base64url encoding,
	// inside RFC 7636's 43-128 bound.
	verifierBytes = 64
	stateBytes    = 32

	keyBytes   = 32
	nonceBytes = 16
	tagBytes   = 16
)

// RandomString draws n cryptographically secure random bytes and encodes them
// with unpadded base64url, so the result is safe inside query strings.
func RandomString(n int) (string, error) {
	if n <= 0 {
		n = stateBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewStateToken generates the opaque anti-forgery state parameter.
func NewStateToken() (string, error) {
	return RandomString(stateBytes)
}

// DerivePKCE generates a fresh verifier/challenge pair. Called once per flow.
func DerivePKCE() (connect.PKCE, error) {
	verifier, err := RandomString(verifierBytes)
	if err != nil {
		return connect.PKCE{}, fmt.Errorf("generate verifier: %w", err)
	}
	sum := sha256.Sum256([]byte(verifier))
	return connect.PKCE{
		CodeVerifier:        verifier,
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(sum[:]),
		CodeChallengeMethod: "S256",
	}, nil
}

// Cipher performs AES-256-GCM authenticated encryption of token material.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key. Any other key length is a
// configuration error and fails fast.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keyBytes {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", connect.ErrEncryptionConfig, keyBytes, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connect.ErrEncryptionConfig, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connect.ErrEncryptionConfig, err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and serializes the
// result as nonce_hex:tag_hex:ciphertext_hex.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - tagBytes
	ciphertext, tag := sealed[:split], sealed[split:]
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. It rejects any input that does not split into
// exactly three hex segments and propagates tag verification failures as
// errors, never as partial plaintext.
func (c *Cipher) Decrypt(serialized string) (string, error) {
	parts := strings.Split(serialized, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed token: expected 3 segments, got %d", len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != nonceBytes {
		return "", fmt.Errorf("malformed token: nonce must be %d bytes", nonceBytes)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode tag: %w", err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("authenticate token: %w", err)
	}
	return string(plaintext), nil
}

// ABOUTME: Ephemeral ECDSA P-256 key material generated once per process
// ABOUTME: Exposes the public half for verification and PKIX export

package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrKeyInitialization is returned when the signing keypair cannot be created.
// The gateway must not serve protected routes without key material.
var ErrKeyInitialization = errors.New("key initialization failed")

// KeyPair holds the process-lifetime signing key. It is immutable after
// GenerateKeyPair returns and safe to share between goroutines.
// Nothing is persisted: a restart invalidates every issued token.
type KeyPair struct {
	private *ecdsa.PrivateKey
}

// GenerateKeyPair creates a fresh P-256 keypair using crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyInitialization, err)
	}
	return &KeyPair{private: priv}, nil
}

// PublicKey returns the verification key.
func (k *KeyPair) PublicKey() *ecdsa.PublicKey {
	return &k.private.PublicKey
}

// PublicKeyDER returns the public key in PKIX ASN.1 DER form.
func (k *KeyPair) PublicKeyDER() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return der, nil
}

// PublicKeyBase64 returns the DER public key in standard base64, the format
// served on the key distribution endpoint.
func (k *KeyPair) PublicKeyBase64() (string, error) {
	der, err := k.PublicKeyDER()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// PublicKeyPEM returns the public key as a "PUBLIC KEY" PEM block.
func (k *KeyPair) PublicKeyPEM() ([]byte, error) {
	der, err := k.PublicKeyDER()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyBase64 decodes a key produced by PublicKeyBase64.
func ParsePublicKeyBase64(s string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ECDSA", pub)
	}
	return ecPub, nil
}

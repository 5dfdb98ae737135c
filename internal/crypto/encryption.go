// Package crypto handles encryption of sensitive payment data and issuance
// of short-lived payment tokens.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"payment-orchestrator/internal/payerr"
)

// EncryptedData is the versioned envelope produced by hybrid encryption.
// The iv field carries the RSA-wrapped per-payload AES key; the tag field
// carries the GCM nonce. Opaque outside this package.
type EncryptedData struct {
	Ciphertext string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	Tag        string    `json:"tag"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
}

const envelopeVersion = "1.0"

// PaymentEncryption hybrid-encrypts payment payloads: a fresh AES-256-GCM
// key per call, wrapped with a long-lived RSA-OAEP key pair generated at
// construction. A separate symmetric key serves the non-hybrid field
// helpers and is replaceable via RotateEncryptionKey.
type PaymentEncryption struct {
	mu           sync.RWMutex
	symmetricKey []byte
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	jwtSecret    []byte
}

// NewPaymentEncryption generates the RSA key pair and retains the given
// symmetric key and JWT signing secret.
func NewPaymentEncryption(symmetricKey []byte, jwtSecret string) (*PaymentEncryption, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be 32 bytes, got %d", len(symmetricKey))
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	return &PaymentEncryption{
		symmetricKey: symmetricKey,
		privateKey:   privateKey,
		publicKey:    &privateKey.PublicKey,
		jwtSecret:    []byte(jwtSecret),
	}, nil
}

// EncryptPaymentData hybrid-encrypts the JSON-serialized payload. Each call
// uses a fresh AES key, so no symmetric key is ever reused across payloads.
func (e *PaymentEncryption) EncryptPaymentData(data map[string]interface{}) (*EncryptedData, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	aesKey := make([]byte, 32)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, fmt.Errorf("failed to generate payload key: %w", err)
	}

	ciphertext, nonce, err := sealGCM(aesKey, plaintext)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	publicKey := e.publicKey
	e.mu.RUnlock()

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap payload key: %w", err)
	}

	return &EncryptedData{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(wrappedKey),
		Tag:        base64.StdEncoding.EncodeToString(nonce),
		Timestamp:  time.Now().UTC(),
		Version:    envelopeVersion,
	}, nil
}

// DecryptPaymentData inverts EncryptPaymentData. Tampered or malformed
// envelopes fail with ErrDecryption.
func (e *PaymentEncryption) DecryptPaymentData(envelope *EncryptedData) (map[string]interface{}, error) {
	if envelope == nil {
		return nil, fmt.Errorf("%w: empty envelope", payerr.ErrDecryption)
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed key field", payerr.ErrDecryption)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", payerr.ErrDecryption)
	}
	nonce, err := base64.StdEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed nonce", payerr.ErrDecryption)
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, e.privateKey, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: key unwrap failed", payerr.ErrDecryption)
	}

	plaintext, err := openGCM(aesKey, ciphertext, nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payerr.ErrDecryption, err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("%w: invalid payload", payerr.ErrDecryption)
	}
	return data, nil
}

// EncryptField encrypts a single value with the component's symmetric key.
// Unlike envelopes, this path is affected by key rotation.
func (e *PaymentEncryption) EncryptField(value string) (string, error) {
	e.mu.RLock()
	key := e.symmetricKey
	e.mu.RUnlock()

	ciphertext, nonce, err := sealGCM(key, []byte(value))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// DecryptField inverts EncryptField.
func (e *PaymentEncryption) DecryptField(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: malformed field", payerr.ErrDecryption)
	}
	if len(raw) < 12 {
		return "", fmt.Errorf("%w: truncated field", payerr.ErrDecryption)
	}

	e.mu.RLock()
	key := e.symmetricKey
	e.mu.RUnlock()

	plaintext, err := openGCM(key, raw[12:], raw[:12])
	if err != nil {
		return "", fmt.Errorf("%w: %v", payerr.ErrDecryption, err)
	}
	return string(plaintext), nil
}

// RotateEncryptionKey replaces the symmetric key used by the field helpers.
// Issued envelopes carry their own wrapped keys and are unaffected.
func (e *PaymentEncryption) RotateEncryptionKey() ([]byte, error) {
	newKey := make([]byte, 32)
	if _, err := rand.Read(newKey); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	e.mu.Lock()
	e.symmetricKey = newKey
	e.mu.Unlock()

	return newKey, nil
}

// ExportPublicKey returns the RSA public key in PEM (PKIX) encoding.
func (e *PaymentEncryption) ExportPublicKey() (string, error) {
	e.mu.RLock()
	publicKey := e.publicKey
	e.mu.RUnlock()

	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to export public key: %w", err)
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ImportPublicKey replaces the encryption public key with a PEM-encoded one.
// Envelopes produced afterwards can only be opened by the matching private
// key holder.
func (e *PaymentEncryption) ImportPublicKey(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("invalid PEM data")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}

	e.mu.Lock()
	e.publicKey = rsaKey
	e.mu.Unlock()
	return nil
}

func sealGCM(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func openGCM(key, ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("bad nonce size")
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

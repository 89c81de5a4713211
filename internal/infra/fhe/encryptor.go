// Package fhe provides a local, self-contained implementation of the
// encryption-service port. It stands in for the real homomorphic encryption
// SDK so the client is runnable and testable end to end: values are sealed
// with AES-GCM scoped to the deployment context and "proofs" are HMACs over
// the sealed payload.
package fhe

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/domain"
)

var ErrNotInitialized = errors.New("encryption service not initialized")

// LocalEncryptor implements app.Encryptor with symmetric crypto. A single
// shared secret plays the role of the network's threshold key.
type LocalEncryptor struct {
	key [32]byte

	mu          sync.RWMutex
	initialized bool
}

func NewLocalEncryptor(secret string) *LocalEncryptor {
	return &LocalEncryptor{key: sha256.Sum256([]byte(secret))}
}

// Initialize marks the service ready. Concurrent calls are guarded by the
// caller (the bootstrap machine collapses them into one flight).
func (e *LocalEncryptor) Initialize(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = true
	return nil
}

func (e *LocalEncryptor) ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Encrypt seals value for the deployment context and returns the ciphertext
// with an input proof binding it to the submitting actor.
func (e *LocalEncryptor) Encrypt(_ context.Context, contextID, actor string, value int64) (domain.EncryptedPayload, error) {
	if !e.ready() {
		return domain.EncryptedPayload{}, ErrNotInitialized
	}

	aead, err := e.aead()
	if err != nil {
		return domain.EncryptedPayload{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return domain.EncryptedPayload{}, fmt.Errorf("nonce: %w", err)
	}

	plain := make([]byte, 8)
	binary.BigEndian.PutUint64(plain, uint64(value))
	ciphertext := aead.Seal(nonce, nonce, plain, []byte(contextID))

	return domain.EncryptedPayload{
		Ciphertext: ciphertext,
		Proof:      e.proof(ciphertext, contextID, actor),
	}, nil
}

// RequestDecryptionProof decrypts each handle, encodes the clear values,
// issues a decryption proof and hands both to submit. It awaits the
// finality of the submitted transaction before returning.
func (e *LocalEncryptor) RequestDecryptionProof(ctx context.Context, handles []string, contextID string, submit app.SubmitProofFunc) error {
	if !e.ready() {
		return ErrNotInitialized
	}

	values := make([]int64, 0, len(handles))
	for _, handle := range handles {
		value, err := e.open(handle, contextID)
		if err != nil {
			return fmt.Errorf("resolve handle: %w", err)
		}
		values = append(values, value)
	}

	clear := EncodeClearValues(values)
	tx, err := submit(clear, e.proof(clear, contextID, ""))
	if err != nil {
		return err
	}
	return tx.Wait(ctx)
}

func (e *LocalEncryptor) open(handle, contextID string) (int64, error) {
	ciphertext, err := DecodeHandle(handle)
	if err != nil {
		return 0, err
	}
	aead, err := e.aead()
	if err != nil {
		return 0, err
	}
	if len(ciphertext) < aead.NonceSize() {
		return 0, errors.New("handle too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(contextID))
	if err != nil {
		return 0, err
	}
	if len(plain) != 8 {
		return 0, errors.New("unexpected clear value width")
	}
	return int64(binary.BigEndian.Uint64(plain)), nil
}

func (e *LocalEncryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *LocalEncryptor) proof(payload []byte, contextID, actor string) []byte {
	mac := hmac.New(sha256.New, e.key[:])
	mac.Write(payload)
	mac.Write([]byte(contextID))
	mac.Write([]byte(actor))
	return mac.Sum(nil)
}

// EncodeHandle renders a stored ciphertext as an opaque handle string.
func EncodeHandle(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodeHandle is the inverse of EncodeHandle.
func DecodeHandle(handle string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(handle)
}

// EncodeClearValues packs decrypted values as 8-byte big-endian words; this
// is the clear-value encoding the verify-decryption write carries.
func EncodeClearValues(values []int64) []byte {
	out := make([]byte, 0, len(values)*8)
	for _, v := range values {
		var word [8]byte
		binary.BigEndian.PutUint64(word[:], uint64(v))
		out = append(out, word[:]...)
	}
	return out
}

// DecodeClearValues unpacks an EncodeClearValues payload.
func DecodeClearValues(clear []byte) ([]int64, error) {
	if len(clear)%8 != 0 {
		return nil, errors.New("malformed clear value encoding")
	}
	values := make([]int64, 0, len(clear)/8)
	for i := 0; i < len(clear); i += 8 {
		values = append(values, int64(binary.BigEndian.Uint64(clear[i:i+8])))
	}
	return values, nil
}

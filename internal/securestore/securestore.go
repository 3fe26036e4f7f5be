// Package securestore wraps KV values in an encrypted, hash-checked envelope.
//
// An envelope is the JSON object {data, hash, timestamp}: data is the
// encrypted JSON of the value, hash is SHA-256 over the plaintext JSON plus the
// secret, timestamp is the write time in unix milliseconds. A read whose hash
// does not match is treated as tampering and the key is removed.
package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/logger"
	"golang.org/x/crypto/hkdf"

	"rifa/internal/storage"
)

const (
	saltSize = 16
	keySize  = 32
)

var (
	ErrNotFound  = storage.ErrNotFound
	ErrCorrupted = errors.New("securestore: integrity check failed")
	errDecrypt   = errors.New("securestore: cannot decrypt")
)

type envelope struct {
	Data      string `json:"data"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// Cipher encrypts JSON values with a key derived from a passphrase.
type Cipher struct {
	secret []byte
}

func NewCipher(secret string) *Cipher {
	return &Cipher{secret: []byte(secret)}
}

// Encrypt serializes v to JSON and seals it. The output is
// base64(salt | nonce | ciphertext).
func (c *Cipher) Encrypt(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return c.seal(plain)
}

// Decrypt opens s and decodes the JSON into out.
func (c *Cipher) Decrypt(s string, out any) error {
	plain, err := c.open(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, out)
}

// Hash is the integrity hash stored next to the encrypted data.
func (c *Cipher) Hash(plainJSON []byte) string {
	sum := sha256.Sum256(append(append([]byte{}, plainJSON...), c.secret...))
	return hex.EncodeToString(sum[:])
}

func (c *Cipher) seal(plain []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) open(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) < saltSize {
		return nil, errDecrypt
	}
	gcm, err := c.aead(raw[:saltSize])
	if err != nil {
		return nil, err
	}
	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, errDecrypt
	}
	plain, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, errDecrypt
	}
	return plain, nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, salt, []byte("rifa-securestore")), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Store reads and writes envelopes through a KV.
type Store struct {
	kv     storage.KV
	cipher *Cipher
	now    func() time.Time
}

func New(kv storage.KV, secret string) *Store {
	return &Store{kv: kv, cipher: NewCipher(secret), now: time.Now}
}

// Put encrypts v and writes it under key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	data, err := s.cipher.seal(plain)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{
		Data:      data,
		Hash:      s.cipher.Hash(plain),
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, key, string(raw))
}

// Fetch decrypts the value under key into out. It returns ErrNotFound when
// the key is missing, unreadable, or fails the integrity check; in the last
// case the key is also deleted.
func (s *Store) Fetch(ctx context.Context, key string, out any) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logger.Errorf("securestore: bad envelope under %s: %v", key, err)
		return ErrNotFound
	}
	plain, err := s.cipher.open(env.Data)
	if err != nil {
		logger.Errorf("securestore: cannot decrypt %s: %v", key, err)
		return ErrNotFound
	}

	if s.cipher.Hash(plain) != env.Hash {
		logger.Warningf("securestore: corrupted data under %s, removing", key)
		if err := s.kv.Delete(ctx, key); err != nil {
			logger.Errorf("securestore: remove %s: %v", key, err)
		}
		return fmt.Errorf("%w: %w", ErrNotFound, ErrCorrupted)
	}

	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}

// Clear removes every given key, continuing past failures.
func (s *Store) Clear(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// storeKeySalt is fixed: the key material file is random per machine, so
// the salt only needs to separate this derivation from other uses.
var storeKeySalt = []byte("examdesk.store.v1")

const keyMaterialSize = 32

// valueCipher encrypts individual store values with AES-256-GCM. The key
// is derived with argon2id from random key material held in a local
// file, so the persisted credential is unreadable without it.
type valueCipher struct {
	aead cipher.AEAD
}

func newValueCipher(keyFile string) (*valueCipher, error) {
	if keyFile == "" {
		return nil, errors.New("key file path required")
	}

	material, err := loadOrCreateKeyMaterial(keyFile)
	if err != nil {
		return nil, err
	}

	key := argon2.IDKey(material, storeKeySalt, 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &valueCipher{aead: aead}, nil
}

func loadOrCreateKeyMaterial(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) < keyMaterialSize {
			return nil, fmt.Errorf("key file %s too short", path)
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	material := make([]byte, keyMaterialSize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	if err := os.WriteFile(path, material, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return material, nil
}

// seal encrypts plaintext and returns it as a JSON string value holding
// base64([nonce][ciphertext+tag]).
func (c *valueCipher) seal(plain []byte) (json.RawMessage, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	encoded := base64.StdEncoding.EncodeToString(sealed)
	return json.Marshal(encoded)
}

// open reverses seal. Any tampering or key mismatch fails authentication.
func (c *valueCipher) open(raw json.RawMessage) ([]byte, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

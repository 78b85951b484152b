package state

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	fileSaltSize = 16
	fileMode     = 0o600
)

// File is a durable store persisted as a JSON document. With a passphrase the
// document is encrypted at rest (scrypt key derivation, ChaCha20-Poly1305);
// the session token lives here, so plaintext on disk is opt-in, not default.
type File struct {
	mu         sync.Mutex
	path       string
	passphrase string
	values     map[string]string
}

// NewFile opens or creates the store at path. A corrupt or undecryptable file
// is an error rather than silently discarded state.
func NewFile(path, passphrase string) (*File, error) {
	f := &File{
		path:       path,
		passphrase: passphrase,
		values:     make(map[string]string),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if f.passphrase != "" {
		raw, err = f.decrypt(raw)
		if err != nil {
			return fmt.Errorf("decrypt state file: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &f.values); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	return nil
}

// flush writes the document atomically via a temp file and rename.
func (f *File) flush() error {
	raw, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if f.passphrase != "" {
		raw, err = f.encrypt(raw)
		if err != nil {
			return fmt.Errorf("encrypt state: %w", err)
		}
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// encrypt seals raw as salt || nonce || ciphertext.
func (f *File) encrypt(raw []byte) ([]byte, error) {
	salt := make([]byte, fileSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := f.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, fileSaltSize+len(nonce)+len(raw)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, raw, nil), nil
}

func (f *File) decrypt(raw []byte) ([]byte, error) {
	aeadNonce := chacha20poly1305.NonceSize
	if len(raw) < fileSaltSize+aeadNonce {
		return nil, fmt.Errorf("state file too short")
	}
	salt := raw[:fileSaltSize]
	nonce := raw[fileSaltSize : fileSaltSize+aeadNonce]
	aead, err := f.aead(salt)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, raw[fileSaltSize+aeadNonce:], nil)
}

func (f *File) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(f.passphrase), salt, 1<<15, 8, 1, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return chacha20poly1305.New(key)
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.flush()
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.flush()
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]string)
	return f.flush()
}

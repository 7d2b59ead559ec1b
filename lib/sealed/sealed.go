// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Key is an age x25519 identity and its recipient.
type Key struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// GenerateKey returns a fresh key.
func GenerateKey() (*Key, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating identity: %w", err)
	}
	return &Key{identity: identity, recipient: identity.Recipient()}, nil
}

// ParseKey parses an AGE-SECRET-KEY-1... string.
func ParseKey(encoded string) (*Key, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing identity: %w", err)
	}
	return &Key{identity: identity, recipient: identity.Recipient()}, nil
}

// LoadOrCreateKey reads the key stored at path, generating and writing
// a new one when the file does not exist. An existing file that is
// readable by group or others is rejected.
func LoadOrCreateKey(path string) (*Key, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode().Perm()&0o077 != 0 {
			return nil, fmt.Errorf("sealed: key file %s has mode %v, want 0600", path, info.Mode().Perm())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sealed: %w", err)
		}
		return ParseKey(string(data))
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("sealed: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sealed: creating key directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating key file: %w", err)
	}
	if _, err := fmt.Fprintln(file, key.identity.String()); err != nil {
		file.Close()
		return nil, fmt.Errorf("sealed: writing key file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("sealed: writing key file: %w", err)
	}
	return key, nil
}

// Recipient returns the public half in age1... form.
func (k *Key) Recipient() string {
	return k.recipient.String()
}

// Seal encrypts plaintext to the key's recipient.
func (k *Key) Seal(plaintext []byte) ([]byte, error) {
	var out bytes.Buffer
	writer, err := age.Encrypt(&out, k.recipient)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal with the same key.
func (k *Key) Open(ciphertext []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), k.identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	return plaintext, nil
}

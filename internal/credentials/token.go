// Package credentials keeps the Jira API token encrypted at rest with an
// age passphrase (scrypt) recipient.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// ErrNoToken means the token file does not exist.
var ErrNoToken = errors.New("no encrypted token file")

// TokenFile is an age-encrypted file holding a single API token.
type TokenFile struct {
	path string
	// workFactor is the scrypt log2(N); 0 keeps age's default.
	workFactor int
}

// NewTokenFile returns a TokenFile at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Path returns the file location.
func (f *TokenFile) Path() string { return f.path }

// Exists reports whether the token file is present.
func (f *TokenFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Seal encrypts token under passphrase and writes it, replacing any
// existing file.
func (f *TokenFile) Seal(token, passphrase string) error {
	if token == "" {
		return errors.New("token is empty")
	}
	if passphrase == "" {
		return errors.New("passphrase is empty")
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if f.workFactor > 0 {
		recipient.SetWorkFactor(f.workFactor)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, token+"\n"); err != nil {
		return fmt.Errorf("writing encrypted token: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted token: %w", err)
	}

	if err := os.WriteFile(f.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// Open decrypts the token with passphrase.
func (f *TokenFile) Open(passphrase string) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoToken, f.path)
	}
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return "", fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}

	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading decrypted token: %w", err)
	}

	token := strings.TrimSpace(string(plain))
	if token == "" {
		return "", errors.New("token file is empty")
	}
	return token, nil
}

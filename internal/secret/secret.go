// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secret seals credentials at rest.
//
// Stored API keys are encrypted with AES-256-GCM under a key derived via
// PBKDF2-SHA-256 from machine-local material created on first run. This is
// protection for data at rest, not a security boundary: anyone with access
// to the key material can unseal. The advisory format checks in the
// provider package are separate and purely cosmetic.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/duetlabs/duet/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SealedPrefix marks a value as sealed (format: ENC:base64(nonce|ciphertext|tag))
const SealedPrefix = "ENC:"

// NonceSize is the size of the nonce/IV for AES-GCM (12 bytes / 96 bits)
const NonceSize = 12

// KeySize is the size of the AES-256 key (32 bytes / 256 bits)
const KeySize = 32

// SaltSize is the size of the salt for key derivation (32 bytes)
const SaltSize = 32

// PBKDF2Iterations is the number of iterations for PBKDF2-SHA-256.
// OWASP 2023 recommends 600,000+ to resist brute force on modern hardware.
const PBKDF2Iterations = 600000

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCiphertext indicates the sealed value format is invalid.
	ErrInvalidCiphertext = errors.New("invalid sealed value format")

	// ErrUnsealFailed indicates decryption failed (wrong key or tampered data).
	ErrUnsealFailed = errors.New("unseal failed: authentication tag mismatch")
)

// =============================================================================
// SEALER
// =============================================================================

// Sealer encrypts and decrypts credential strings.
type Sealer struct {
	aead cipher.AEAD
}

// Open loads (or creates on first run) the key material under dir and
// returns a ready Sealer. Material files are created with 0600.
func Open(dir string) (*Sealer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret dir: %w", err)
	}

	material, err := loadOrCreate(filepath.Join(dir, "secret.key"), KeySize)
	if err != nil {
		return nil, err
	}
	// SECURITY: Zero key material to prevent memory disclosure
	defer ZeroBytes(material)

	salt, err := loadOrCreate(filepath.Join(dir, "secret.salt"), SaltSize)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key(material, salt, PBKDF2Iterations, KeySize, sha256.New)
	defer ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// Seal encrypts a credential and returns the ENC: envelope.
// Empty values pass through unchanged.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Unseal decrypts an ENC: envelope. Values without the prefix are returned
// unchanged, so plaintext values written before sealing existed keep working.
func (s *Sealer) Unseal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < NonceSize {
		return "", ErrInvalidCiphertext
	}

	nonce, ciphertext := raw[:NonceSize], raw[NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrUnsealFailed
	}

	return string(plaintext), nil
}

// IsSealed reports whether a stored value carries the ENC: envelope.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// ZeroBytes securely zeros sensitive byte slices to prevent memory disclosure.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// loadOrCreate reads a material file, generating it on first run.
func loadOrCreate(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != size {
			return nil, fmt.Errorf("key material %s has wrong size %d", filepath.Base(path), len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key material: %w", err)
	}

	return data, nil
}

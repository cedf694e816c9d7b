// Copyright (c) 2025-2026 Duet Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/duetlabs/duet/internal/model"
	"github.com/duetlabs/duet/internal/secret"
)

// =============================================================================
// KEYS AND SCHEMA
// =============================================================================

// One value per key. Credentials and models are stored per provider.
const (
	keyProvider     = "provider"
	keyCredential   = "credential." // + provider id
	keyModel        = "model."      // + provider id
	keyConversation = "conversation"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// ErrDatabaseError wraps unexpected SQLite failures.
var ErrDatabaseError = errors.New("database error")

// =============================================================================
// STORE
// =============================================================================

// Store is the key/value state store. All set operations write through to
// disk synchronously before returning.
type Store struct {
	db     *sql.DB
	sealer *secret.Sealer
}

// Open opens (or creates) the state database at path. The sealer encrypts
// credentials at rest; a nil sealer stores them in plaintext and is meant
// for tests only.
func Open(path string, sealer *secret.Sealer) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Keep writes durable: every set is a synchronous write-through
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, sealer: sealer}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// RAW KEY/VALUE OPERATIONS
// =============================================================================

// get returns the value for a key and whether it was present.
func (s *Store) get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return value, true, nil
}

// set writes a key synchronously.
func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// delete removes a key. Missing keys are not an error.
func (s *Store) delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// =============================================================================
// PROVIDER SELECTION
// =============================================================================

// Provider returns the persisted provider selection, defaulting to OpenAI.
func (s *Store) Provider() (model.ProviderID, error) {
	value, ok, err := s.get(keyProvider)
	if err != nil {
		return "", err
	}
	if !ok {
		return model.ProviderOpenAI, nil
	}
	p := model.ProviderID(value)
	if !p.Valid() {
		return model.ProviderOpenAI, nil
	}
	return p, nil
}

// SetProvider persists the provider selection.
func (s *Store) SetProvider(p model.ProviderID) error {
	if !p.Valid() {
		return fmt.Errorf("unknown provider %q", p)
	}
	return s.set(keyProvider, p.String())
}

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credential returns the stored API key for a provider, unsealed. Missing
// keys return the empty string.
func (s *Store) Credential(p model.ProviderID) (string, error) {
	value, ok, err := s.get(keyCredential + p.String())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	if s.sealer == nil {
		return value, nil
	}
	return s.sealer.Unseal(value)
}

// SetCredential seals and persists the API key for a provider. An empty
// credential removes the stored key.
func (s *Store) SetCredential(p model.ProviderID, credential string) error {
	if credential == "" {
		return s.delete(keyCredential + p.String())
	}
	value := credential
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(credential)
		if err != nil {
			return err
		}
		value = sealed
	}
	return s.set(keyCredential+p.String(), value)
}

// ClearCredential removes the stored API key for a provider.
func (s *Store) ClearCredential(p model.ProviderID) error {
	return s.delete(keyCredential + p.String())
}

// =============================================================================
// MODEL SELECTION
// =============================================================================

// Model returns the persisted model for a provider, falling back to the
// provider's default.
func (s *Store) Model(p model.ProviderID) (string, error) {
	value, ok, err := s.get(keyModel + p.String())
	if err != nil {
		return "", err
	}
	if !ok || value == "" {
		return model.DefaultModel(p).ID, nil
	}
	return value, nil
}

// SetModel persists the model selection for a provider.
func (s *Store) SetModel(p model.ProviderID, m string) error {
	return s.set(keyModel+p.String(), m)
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Conversation returns the persisted conversation, or a fresh empty one
// when none is stored or the stored value is corrupt.
func (s *Store) Conversation() (*model.Conversation, error) {
	value, ok, err := s.get(keyConversation)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewConversation(), nil
	}

	var stored StoredConversation
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		// Corrupt history is not fatal; start fresh
		return model.NewConversation(), nil
	}
	return stored.ToConversation(), nil
}

// SaveConversation persists the whole conversation synchronously.
func (s *Store) SaveConversation(conv *model.Conversation) error {
	data, err := json.Marshal(FromConversation(conv))
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return s.set(keyConversation, string(data))
}

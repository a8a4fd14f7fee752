package auth

import (
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrExists is returned when registering a username that already has
	// credentials.
	ErrExists = errors.New("username already registered")

	// ErrBadCredentials is returned for an unknown username or a wrong
	// password. The two cases are deliberately indistinguishable.
	ErrBadCredentials = errors.New("invalid username or password")
)

// CredentialStore is the account collaborator used by the control plane.
// Usernames are compared case-insensitively.
type CredentialStore interface {
	// Register creates credentials for a new username.
	Register(username, password string) error

	// Verify checks a username/password pair.
	Verify(username, password string) error
}

// MemoryStore is a CredentialStore holding bcrypt hashes in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	hashes map[string][]byte
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes: make(map[string][]byte),
	}
}

// Register hashes the password and stores it under the canonical username.
func (s *MemoryStore) Register(username, password string) error {
	user := strings.ToLower(username)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hashes[user]; ok {
		return ErrExists
	}
	s.hashes[user] = hash

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"username": user,
	}).Info("Registered new account")

	return nil
}

// Verify compares the password against the stored hash for username.
func (s *MemoryStore) Verify(username, password string) error {
	s.mu.RLock()
	hash, ok := s.hashes[strings.ToLower(username)]
	s.mu.RUnlock()

	if !ok {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

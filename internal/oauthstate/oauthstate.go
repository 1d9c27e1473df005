// Package oauthstate correlates an external OAuth round trip with the chat
// identity that started it, and keeps the credentials that come back.
//
// A handshake token is ISSUED, then either CONSUMED exactly once by the
// callback or EXPIRED when its TTL lapses. Unknown, expired and replayed
// tokens fail with the same ErrInvalidState.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
)

// ErrInvalidState is returned for any token that cannot be consumed.
var ErrInvalidState = errors.New("invalid or expired state")

const (
	// DefaultTTL is how long an issued token stays valid.
	DefaultTTL = 5 * time.Minute

	tokenBytes = 24
	keyPrefix  = "oauth:state:"
)

// Store issues and consumes handshake tokens and caches linked credentials.
type Store struct {
	states cache.Cache
	creds  CredentialRepository
	sealer *Sealer
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Store. Handshake state lives in states; credentials are sealed
// and written to creds. A ttl of 0 uses DefaultTTL.
func New(states cache.Cache, creds CredentialRepository, sealer *Sealer, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{states: states, creds: creds, sealer: sealer, ttl: ttl, logger: logutil.NoopIfNil(logger)}
}

// Issue creates a fresh unguessable token bound to identity.
func (s *Store) Issue(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity is required")
	}
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	if err := s.states.Set(ctx, keyPrefix+token, []byte(identity), s.ttl); err != nil {
		return "", fmt.Errorf("failed to store state token: %w", err)
	}
	s.logger.Debug("Issued OAuth state", "identity", identity, "ttl", s.ttl)
	return token, nil
}

// Consume validates token and removes it in the same step, returning the
// identity it was issued for.
func (s *Store) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidState
	}
	v, err := s.states.Take(ctx, keyPrefix+token)
	switch {
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, cache.ErrExpired):
		return "", ErrInvalidState
	case err != nil:
		return "", fmt.Errorf("failed to read state token: %w", err)
	}
	return string(v), nil
}

// StoreCredential encrypts secret and saves it for identity, replacing any
// previous credential.
func (s *Store) StoreCredential(ctx context.Context, identity string, secret []byte) error {
	sealed, err := s.sealer.Seal(identity, secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	if err := s.creds.SaveCredential(ctx, identity, sealed); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	s.logger.Info("Stored credential", "identity", identity)
	return nil
}

// GetCredential returns the decrypted secret for identity, ok=false when none is stored.
func (s *Store) GetCredential(ctx context.Context, identity string) ([]byte, bool, error) {
	sealed, ok, err := s.creds.LoadCredential(ctx, identity)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	secret, err := s.sealer.Open(identity, sealed)
	if err != nil {
		return nil, false, err
	}
	return secret, true, nil
}

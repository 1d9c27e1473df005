package store

import (
	"context"
	"errors"

	"gorm.io/gorm/clause"
)

func (s *Store) upsertUser(ctx context.Context, u *User, columns ...string) error {
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoUpdates: clause.AssignmentColumns(append(columns, "updated_at")),
	}).Create(u).Error)
}

func (s *Store) user(ctx context.Context, discordID string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "discord_id = ?", discordID).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// Timezone returns the IANA zone saved for a user, or ErrNotFound.
func (s *Store) Timezone(ctx context.Context, discordID string) (string, error) {
	u, err := s.user(ctx, discordID)
	if err != nil {
		return "", err
	}
	if u.Timezone == "" {
		return "", ErrNotFound
	}
	return u.Timezone, nil
}

// SetTimezone saves a user's IANA zone, creating the user if needed.
func (s *Store) SetTimezone(ctx context.Context, discordID, tz string) error {
	return s.upsertUser(ctx, &User{DiscordID: discordID, Timezone: tz}, "timezone")
}

// SetEmail saves the address used to invite the user to events.
func (s *Store) SetEmail(ctx context.Context, discordID, email string) error {
	return s.upsertUser(ctx, &User{DiscordID: discordID, Email: email}, "email")
}

// Email returns the saved address for a user, or ErrNotFound.
func (s *Store) Email(ctx context.Context, discordID string) (string, error) {
	u, err := s.user(ctx, discordID)
	if err != nil {
		return "", err
	}
	if u.Email == "" {
		return "", ErrNotFound
	}
	return u.Email, nil
}

// SaveCredential stores sealed credential bytes; the last write wins.
func (s *Store) SaveCredential(ctx context.Context, identity string, sealed []byte) error {
	return s.upsertUser(ctx, &User{DiscordID: identity, TokenCiphertext: sealed}, "token_ciphertext")
}

// LoadCredential returns the sealed credential for identity, if any.
func (s *Store) LoadCredential(ctx context.Context, identity string) ([]byte, bool, error) {
	u, err := s.user(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(u.TokenCiphertext) == 0 {
		return nil, false, nil
	}
	return u.TokenCiphertext, true, nil
}

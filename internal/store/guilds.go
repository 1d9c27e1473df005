package store

import (
	"context"

	"gorm.io/gorm/clause"
)

// SetGuildDefaults records where reminders for a guild go by default.
// Empty values leave the existing setting untouched.
func (s *Store) SetGuildDefaults(ctx context.Context, guildID, channelID, tz string) error {
	g := GuildSettings{GuildID: guildID, DefaultChannelID: channelID, DefaultTimezone: tz}
	var cols []string
	if channelID != "" {
		cols = append(cols, "default_channel_id")
	}
	if tz != "" {
		cols = append(cols, "default_timezone")
	}
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns(append(cols, "updated_at")),
	}).Create(&g).Error)
}

// GuildDefaults returns the default channel and zone of a guild.
func (s *Store) GuildDefaults(ctx context.Context, guildID string) (channelID, tz string, err error) {
	var g GuildSettings
	if err := s.db.WithContext(ctx).First(&g, "guild_id = ?", guildID).Error; err != nil {
		return "", "", translate(err)
	}
	return g.DefaultChannelID, g.DefaultTimezone, nil
}

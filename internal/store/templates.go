package store

import (
	"context"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// CreateTemplate inserts a template. Names are unique per user (ErrDuplicate).
func (s *Store) CreateTemplate(ctx context.Context, t *models.EventTemplate) error {
	row := templateRow(t)
	return translate(s.db.WithContext(ctx).Create(&row).Error)
}

// GetTemplate returns a user's template by name.
func (s *Store) GetTemplate(ctx context.Context, userID, name string) (*models.EventTemplate, error) {
	var row EventTemplate
	if err := s.db.WithContext(ctx).First(&row, "user_id = ? AND name = ?", userID, name).Error; err != nil {
		return nil, translate(err)
	}
	m := row.model()
	return &m, nil
}

// ListTemplates returns a user's templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context, userID string) ([]models.EventTemplate, error) {
	var rows []EventTemplate
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.EventTemplate, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// DeleteTemplate removes a user's template.
func (s *Store) DeleteTemplate(ctx context.Context, userID, name string) error {
	res := s.db.WithContext(ctx).Delete(&EventTemplate{}, "user_id = ? AND name = ?", userID, name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

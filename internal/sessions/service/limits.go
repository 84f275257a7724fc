package service

import (
	"time"

	"shelfwatch/pkg/model"
	"shelfwatch/pkg/sanitizer"

	"github.com/google/uuid"
)

// TimeLimits maps a person category to the default session length in minutes.
type TimeLimits struct {
	ByCategory map[string]int
	Default    int
}

func (l TimeLimits) For(category string) int {
	if minutes, ok := l.ByCategory[sanitizer.SanitizeCategory(category)]; ok && minutes > 0 {
		return minutes
	}
	if l.Default > 0 {
		return l.Default
	}
	return 60
}

// ForEquipment applies the equipment's own cap when it is shorter than the
// category default.
func (l TimeLimits) ForEquipment(category string, equipment *model.Equipment) int {
	minutes := l.For(category)
	if equipment != nil && equipment.MaxMinutes > 0 && equipment.MaxMinutes < minutes {
		return equipment.MaxMinutes
	}
	return minutes
}

// NewSession builds an ACTIVE session starting at now. ExpectedEndTime is
// informational only.
func NewSession(personID string, kind model.SessionKind, resourceID string, limitMinutes int, now time.Time) *model.Session {
	return &model.Session{
		ID:               uuid.NewString(),
		PersonID:         personID,
		Kind:             kind,
		ResourceID:       resourceID,
		StartTime:        now,
		ExpectedEndTime:  now.Add(time.Duration(limitMinutes) * time.Minute),
		TimeLimitMinutes: limitMinutes,
		Status:           model.SessionActive,
	}
}

package service

import (
	"context"
	"errors"

	"shelfwatch/internal/events"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/internal/store"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
)

type releaser struct {
	store store.Store
	log   *logger.Logger
}

// NewReleaser returns the equipment releaser the session lifecycle calls when
// an equipment-bound session leaves ACTIVE.
func NewReleaser(st store.Store, log *logger.Logger) sessionservice.EquipmentReleaser {
	return &releaser{store: st, log: log}
}

func (r *releaser) ReleaseEquipment(ctx context.Context, session *model.Session) ([]events.Event, error) {
	equipment, err := r.store.Equipment().TransitionStatus(ctx, session.ResourceID, model.EquipmentInUse, model.EquipmentAvailable)
	if err != nil {
		if errors.Is(err, store.ErrPrecondition) || errors.Is(err, store.ErrNotFound) {
			r.log.Warn("Equipment was not in use when its session ended",
				"session_id", session.ID,
				"equipment_id", session.ResourceID,
				"error", err,
			)
			return nil, nil
		}
		return nil, err
	}

	r.log.Info("Equipment released",
		"equipment_id", equipment.ID,
		"code", equipment.Code,
		"session_id", session.ID,
	)
	return []events.Event{events.ReservationUpdate{
		Act:       events.ActionEnded,
		Session:   session,
		Equipment: equipment,
	}}, nil
}

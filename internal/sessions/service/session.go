package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfwatch/internal/events"
	"shelfwatch/internal/guard"
	sessionserrors "shelfwatch/internal/sessions/errors"
	"shelfwatch/internal/store"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
)

// EquipmentReleaser frees the equipment bound to a session that has just left
// ACTIVE. It runs inside the caller's transaction.
type EquipmentReleaser interface {
	ReleaseEquipment(ctx context.Context, session *model.Session) ([]events.Event, error)
}

type Statistics struct {
	Since             time.Time `json:"since"`
	TotalCheckIns     int       `json:"total_check_ins"`
	UniquePersons     int       `json:"unique_persons"`
	CompletedSessions int       `json:"completed_sessions"`
	CancelledSessions int       `json:"cancelled_sessions"`
	ActiveNow         int64     `json:"active_now"`
	AverageMinutes    float64   `json:"average_minutes"`
}

type SessionService interface {
	// CheckIn runs the duplicate/cooldown guard and then starts a visit.
	CheckIn(ctx context.Context, personID string) (*model.Session, error)
	// Start opens a visit without consulting the guard.
	Start(ctx context.Context, person *model.Person) (*model.Session, error)
	End(ctx context.Context, sessionID string) (*model.Session, error)
	Cancel(ctx context.Context, sessionID string) (*model.Session, error)
	Get(ctx context.Context, sessionID string) (*model.Session, error)
	ActiveFor(ctx context.Context, personID string) (*model.Session, error)
	ListActive(ctx context.Context, limit int, offset int64) ([]*model.Session, int64, error)
	// ExpireOverdue completes every ACTIVE session whose expected end has passed.
	ExpireOverdue(ctx context.Context) ([]*model.Session, error)
	Statistics(ctx context.Context, since time.Time) (*Statistics, error)
}

type sessionService struct {
	store      store.Store
	guard      guard.Guard
	releaser   EquipmentReleaser
	dispatcher events.Dispatcher
	limits     TimeLimits
	log        *logger.Logger
	now        func() time.Time
}

func NewSessionService(
	st store.Store,
	g guard.Guard,
	releaser EquipmentReleaser,
	dispatcher events.Dispatcher,
	limits TimeLimits,
	log *logger.Logger,
	now func() time.Time,
) SessionService {
	if now == nil {
		now = time.Now
	}
	return &sessionService{
		store:      st,
		guard:      g,
		releaser:   releaser,
		dispatcher: dispatcher,
		limits:     limits,
		log:        log,
		now:        now,
	}
}

func (s *sessionService) CheckIn(ctx context.Context, personID string) (*model.Session, error) {
	person, err := s.store.People().FindByID(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Person", personID).WithCause(sessionserrors.ErrPersonNotFound)
		}
		s.log.Error("Failed to load person", "person_id", personID, "error", err)
		return nil, apperrors.Internal("Failed to load person", err)
	}

	verdict := s.guard.Check(ctx, person, guard.AttemptCheckIn)
	switch verdict.Decision {
	case guard.DecisionDuplicate:
		s.log.Info("Duplicate check-in rejected", "person_id", person.ID)
		details := map[string]any{}
		if verdict.Session != nil {
			details["session_id"] = verdict.Session.ID
		}
		return nil, apperrors.Conflict(verdict.Reason).
			WithDetails(details).
			WithCause(sessionserrors.ErrDuplicateScan)
	case guard.DecisionCooldown:
		s.log.Info("Check-in blocked by cooldown",
			"person_id", person.ID,
			"remaining_seconds", verdict.RemainingSeconds(),
		)
		return nil, apperrors.PolicyBlocked(verdict.Reason, verdict.Remaining).
			WithCause(sessionserrors.ErrCooldown)
	}

	return s.Start(ctx, person)
}

func (s *sessionService) Start(ctx context.Context, person *model.Person) (*model.Session, error) {
	session := NewSession(person.ID, model.SessionVisit, "", s.limits.For(person.Category), s.now())

	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		return s.store.Sessions().Create(ctx, session)
	})
	if err != nil {
		return nil, s.mapError(err, "start", person.ID)
	}

	person.ActiveSessionID = session.ID
	s.log.Info("Session started",
		"session_id", session.ID,
		"person_id", person.ID,
		"time_limit_minutes", session.TimeLimitMinutes,
	)
	s.dispatcher.Dispatch(events.SessionUpdate{Act: events.ActionCreated, Session: session, Person: person})
	return session, nil
}

func (s *sessionService) End(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.finish(ctx, sessionID, model.SessionCompleted)
}

func (s *sessionService) Cancel(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.finish(ctx, sessionID, model.SessionCancelled)
}

// finish moves an ACTIVE session to a terminal status and releases bound
// equipment in the same transaction.
func (s *sessionService) finish(ctx context.Context, sessionID string, status model.SessionStatus) (*model.Session, error) {
	var (
		ended   *model.Session
		emitted []events.Event
	)

	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		emitted = nil

		current, err := s.store.Sessions().FindByID(ctx, sessionID)
		if err != nil {
			return err
		}

		now := s.now()
		var duration *int
		if status == model.SessionCompleted {
			d := model.DurationMinutesBetween(current.StartTime, now)
			duration = &d
		}

		ended, err = s.store.Sessions().Finish(ctx, sessionID, status, now, duration)
		if err != nil {
			return err
		}

		update := events.SessionUpdate{Act: events.ActionEnded, Session: ended}
		person, err := s.store.People().FindByID(ctx, ended.PersonID)
		switch {
		case err == nil:
			update.Person = person
		case !errors.Is(err, store.ErrNotFound):
			s.log.Warn("Failed to load person for session update",
				"session_id", ended.ID,
				"person_id", ended.PersonID,
				"error", err,
			)
		}
		emitted = append(emitted, update)

		if ended.IsEquipmentBound() && s.releaser != nil {
			released, err := s.releaser.ReleaseEquipment(ctx, ended)
			if err != nil {
				return err
			}
			emitted = append(emitted, released...)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, string(status), sessionID)
	}

	s.log.Info("Session ended",
		"session_id", ended.ID,
		"person_id", ended.PersonID,
		"status", ended.Status,
		"duration_minutes", ended.DurationMinutes,
	)
	s.dispatcher.Dispatch(emitted...)
	return ended, nil
}

func (s *sessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.store.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.mapError(err, "get", sessionID)
	}
	return session, nil
}

func (s *sessionService) ActiveFor(ctx context.Context, personID string) (*model.Session, error) {
	session, err := s.store.Sessions().FindActiveByPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("Active session").WithCause(sessionserrors.ErrSessionNotFound)
		}
		return nil, s.mapError(err, "active", personID)
	}
	return session, nil
}

func (s *sessionService) ListActive(ctx context.Context, limit int, offset int64) ([]*model.Session, int64, error) {
	sessions, err := s.store.Sessions().ListActive(ctx, limit, offset)
	if err != nil {
		return nil, 0, s.mapError(err, "list", "")
	}
	total, err := s.store.Sessions().CountActive(ctx)
	if err != nil {
		return nil, 0, s.mapError(err, "count", "")
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, total, nil
}

func (s *sessionService) ExpireOverdue(ctx context.Context) ([]*model.Session, error) {
	expired, err := s.store.Sessions().ListActiveExpiredAt(ctx, s.now())
	if err != nil {
		return nil, s.mapError(err, "expire", "")
	}

	ended := make([]*model.Session, 0, len(expired))
	for _, session := range expired {
		done, err := s.End(ctx, session.ID)
		if err != nil {
			if errors.Is(err, sessionserrors.ErrSessionNotActive) {
				continue
			}
			return ended, err
		}
		ended = append(ended, done)
	}

	if len(ended) > 0 {
		s.log.Info("Expired overdue sessions", "count", len(ended))
	}
	return ended, nil
}

func (s *sessionService) Statistics(ctx context.Context, since time.Time) (*Statistics, error) {
	started, err := s.store.Sessions().ListStartedSince(ctx, since)
	if err != nil {
		return nil, s.mapError(err, "statistics", "")
	}
	active, err := s.store.Sessions().CountActive(ctx)
	if err != nil {
		return nil, s.mapError(err, "statistics", "")
	}

	stats := &Statistics{Since: since, ActiveNow: active}
	persons := make(map[string]struct{})
	totalMinutes := 0

	for _, session := range started {
		stats.TotalCheckIns++
		persons[session.PersonID] = struct{}{}
		switch session.Status {
		case model.SessionCompleted:
			stats.CompletedSessions++
			if session.DurationMinutes != nil {
				totalMinutes += *session.DurationMinutes
			}
		case model.SessionCancelled:
			stats.CancelledSessions++
		}
	}

	stats.UniquePersons = len(persons)
	if stats.CompletedSessions > 0 {
		stats.AverageMinutes = float64(totalMinutes) / float64(stats.CompletedSessions)
	}
	return stats, nil
}

func (s *sessionService) mapError(err error, operation, id string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFoundWithID("Session", id).WithCause(sessionserrors.ErrSessionNotFound)
	case errors.Is(err, store.ErrPrecondition):
		return apperrors.Conflict("Session is not active").
			WithDetails(map[string]any{"session_id": id}).
			WithCause(sessionserrors.ErrSessionNotActive)
	case errors.Is(err, store.ErrDuplicate):
		return apperrors.Conflict("Person already has an active session").
			WithDetails(map[string]any{"person_id": id}).
			WithCause(sessionserrors.ErrActiveSessionExists)
	}

	s.log.Error("Session operation failed",
		"operation", operation,
		"id", id,
		"error", err,
	)
	return apperrors.Internal(fmt.Sprintf("Failed to %s session", operation), err)
}

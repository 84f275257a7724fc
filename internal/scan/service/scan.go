package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfwatch/internal/audit"
	checkoutservice "shelfwatch/internal/checkouts/service"
	"shelfwatch/internal/guard"
	"shelfwatch/internal/identity"
	sessionserrors "shelfwatch/internal/sessions/errors"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/internal/store"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"

	"github.com/google/uuid"
)

type ScanService interface {
	// Submit resolves the token and applies the matching action.
	Submit(ctx context.Context, req model.ScanRequest) (*Result, error)
	// Status reports whether a person is checked in and whether a check-in
	// would be accepted right now.
	Status(ctx context.Context, barcode string) (*PersonStatus, error)
	Statistics(ctx context.Context, since time.Time) (*sessionservice.Statistics, error)
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

type scanService struct {
	store     store.Store
	resolver  identity.Resolver
	guard     guard.Guard
	sessions  sessionservice.SessionService
	checkouts checkoutservice.CheckoutService
	audit     audit.Recorder
	log       *logger.Logger
	now       func() time.Time
}

func NewScanService(
	st store.Store,
	resolver identity.Resolver,
	g guard.Guard,
	sessions sessionservice.SessionService,
	checkouts checkoutservice.CheckoutService,
	recorder audit.Recorder,
	log *logger.Logger,
	now func() time.Time,
) ScanService {
	if recorder == nil {
		recorder = audit.Noop()
	}
	if now == nil {
		now = time.Now
	}
	return &scanService{
		store:     st,
		resolver:  resolver,
		guard:     g,
		sessions:  sessions,
		checkouts: checkouts,
		audit:     recorder,
		log:       log,
		now:       now,
	}
}

func (s *scanService) Submit(ctx context.Context, req model.ScanRequest) (*Result, error) {
	match, err := s.resolver.Resolve(ctx, req.Token)
	if err != nil {
		s.log.Error("Failed to resolve scan token", "error", err)
		return nil, apperrors.Internal("Failed to resolve scan", err)
	}

	var result *Result
	switch m := match.(type) {
	case identity.PersonMatch:
		result, err = s.scanPerson(ctx, m.Person)
	case identity.BookMatch:
		result, err = s.scanBook(ctx, m.Book, req.PersonID)
	case identity.EquipmentMatch:
		result, err = s.scanEquipment(ctx, m.Equipment, req.PersonID)
	case identity.UnknownMatch:
		result = &Result{Type: identity.TypeUnknown, Outcome: OutcomeDenied, Message: "Unrecognized code"}
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Scan processed",
		"station", req.Station,
		"type", result.Type,
		"outcome", result.Outcome,
		"action", result.Action,
	)
	s.record(ctx, req, match.Token(), result)
	return result, nil
}

func (s *scanService) scanPerson(ctx context.Context, person *model.Person) (*Result, error) {
	if person.ActiveSessionID != "" {
		ended, err := s.sessions.End(ctx, person.ActiveSessionID)
		if err == nil {
			return &Result{
				Type:     identity.TypePerson,
				Outcome:  OutcomeAllowed,
				Action:   ActionCheckOut,
				Message:  fmt.Sprintf("Goodbye, %s. Visit lasted %s.", person.DisplayName(), minutes(*ended.DurationMinutes)),
				Data:     ended,
				personID: person.ID,
			}, nil
		}
		if !errors.Is(err, sessionserrors.ErrSessionNotActive) {
			return s.reject(identity.TypePerson, ActionCheckOut, person.ID, "", err)
		}

		// Another station ended the session first.
		verdict := s.guard.Check(ctx, person, guard.AttemptCheckOut)
		message := verdict.Reason
		if message == "" {
			message = fmt.Sprintf("%s is already checked out", person.DisplayName())
		}
		return &Result{
			Type:     identity.TypePerson,
			Outcome:  OutcomeDuplicate,
			Action:   ActionCheckOut,
			Message:  message,
			Data:     person,
			personID: person.ID,
		}, nil
	}

	session, err := s.sessions.CheckIn(ctx, person.ID)
	if err != nil {
		return s.reject(identity.TypePerson, ActionCheckIn, person.ID, "", err)
	}
	return &Result{
		Type:     identity.TypePerson,
		Outcome:  OutcomeAllowed,
		Action:   ActionCheckIn,
		Message:  fmt.Sprintf("Welcome, %s! Time limit: %s.", person.DisplayName(), minutes(session.TimeLimitMinutes)),
		Data:     session,
		personID: person.ID,
	}, nil
}

func (s *scanService) scanBook(ctx context.Context, book *model.Book, personID string) (*Result, error) {
	if personID == "" {
		return &Result{
			Type:       identity.TypeBook,
			Outcome:    OutcomeAllowed,
			Action:     ActionLookup,
			Message:    fmt.Sprintf("%s: %d of %d copies available", book.Title, book.AvailableCopies, book.TotalCopies),
			Data:       book,
			resourceID: book.ID,
		}, nil
	}

	loans, err := s.checkouts.ListForPerson(ctx, personID)
	if err != nil {
		return s.reject(identity.TypeBook, ActionReturn, personID, book.ID, err)
	}
	for _, loan := range loans {
		if loan.BookID != book.ID || !loan.IsOutstanding() {
			continue
		}
		returned, err := s.checkouts.ReturnBook(ctx, loan.ID)
		if err != nil {
			return s.reject(identity.TypeBook, ActionReturn, personID, book.ID, err)
		}
		message := fmt.Sprintf("Returned %s", book.Title)
		if returned.FineEligible {
			message = fmt.Sprintf("Returned %s, %d days late", book.Title, returned.DaysOverdue)
		}
		return &Result{
			Type:       identity.TypeBook,
			Outcome:    OutcomeAllowed,
			Action:     ActionReturn,
			Message:    message,
			Data:       returned,
			personID:   personID,
			resourceID: book.ID,
		}, nil
	}

	checkout, err := s.checkouts.Checkout(ctx, book.ID, personID, nil)
	if err != nil {
		return s.reject(identity.TypeBook, ActionBorrow, personID, book.ID, err)
	}
	return &Result{
		Type:       identity.TypeBook,
		Outcome:    OutcomeAllowed,
		Action:     ActionBorrow,
		Message:    fmt.Sprintf("Borrowed %s, due %s", book.Title, checkout.DueDate.Format("2006-01-02")),
		Data:       checkout,
		personID:   personID,
		resourceID: book.ID,
	}, nil
}

func (s *scanService) scanEquipment(ctx context.Context, equipment *model.Equipment, personID string) (*Result, error) {
	if personID == "" {
		return &Result{
			Type:       identity.TypeEquipment,
			Outcome:    OutcomeAllowed,
			Action:     ActionLookup,
			Message:    fmt.Sprintf("%s is %s", equipment.Name, equipment.Status),
			Data:       equipment,
			resourceID: equipment.ID,
		}, nil
	}

	held, err := s.store.Sessions().FindActiveByResource(ctx, equipment.ID)
	switch {
	case err == nil && held.PersonID == personID:
		ended, err := s.checkouts.Release(ctx, held.ID)
		if err != nil {
			return s.reject(identity.TypeEquipment, ActionRelease, personID, equipment.ID, err)
		}
		return &Result{
			Type:       identity.TypeEquipment,
			Outcome:    OutcomeAllowed,
			Action:     ActionRelease,
			Message:    fmt.Sprintf("Returned %s", equipment.Name),
			Data:       ended,
			personID:   personID,
			resourceID: equipment.ID,
		}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		s.log.Error("Failed to look up equipment session", "equipment_id", equipment.ID, "error", err)
		return nil, apperrors.Internal("Failed to look up equipment", err)
	}

	session, err := s.checkouts.Reserve(ctx, equipment.ID, personID)
	if err != nil {
		return s.reject(identity.TypeEquipment, ActionReserve, personID, equipment.ID, err)
	}
	return &Result{
		Type:       identity.TypeEquipment,
		Outcome:    OutcomeAllowed,
		Action:     ActionReserve,
		Message:    fmt.Sprintf("%s reserved for %s", equipment.Name, minutes(session.TimeLimitMinutes)),
		Data:       session,
		personID:   personID,
		resourceID: equipment.ID,
	}, nil
}

func (s *scanService) reject(tokenType identity.TokenType, action Action, personID, resourceID string, err error) (*Result, error) {
	result, ok := rejection(tokenType, action, err)
	if !ok {
		return nil, err
	}
	result.personID = personID
	result.resourceID = resourceID
	return result, nil
}

func (s *scanService) record(ctx context.Context, req model.ScanRequest, token string, result *Result) {
	entry := audit.Entry{
		ID:         uuid.NewString(),
		OccurredAt: s.now().UTC(),
		Station:    req.Station,
		Token:      token,
		TokenType:  string(result.Type),
		Outcome:    string(result.Outcome),
		Action:     string(result.Action),
		PersonID:   result.personID,
		ResourceID: result.resourceID,
		Message:    result.Message,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("Failed to record scan audit entry", "error", err)
	}
}

func (s *scanService) Status(ctx context.Context, barcode string) (*PersonStatus, error) {
	match, err := s.resolver.Resolve(ctx, barcode)
	if err != nil {
		s.log.Error("Failed to resolve barcode", "error", err)
		return nil, apperrors.Internal("Failed to resolve barcode", err)
	}
	pm, ok := match.(identity.PersonMatch)
	if !ok {
		return nil, apperrors.NotFoundWithID("Person", barcode).WithCause(sessionserrors.ErrPersonNotFound)
	}
	person := pm.Person

	status := &PersonStatus{Person: person, IsCheckedIn: person.ActiveSessionID != ""}
	if status.IsCheckedIn {
		session, err := s.sessions.Get(ctx, person.ActiveSessionID)
		if err == nil {
			status.ActiveSession = session
		}
	}

	verdict := s.guard.Check(ctx, person, guard.AttemptCheckIn)
	switch {
	case verdict.Decision == guard.DecisionCooldown:
		status.CooldownRemainingSeconds = verdict.RemainingSeconds()
		status.Message = verdict.Reason
	case status.IsCheckedIn:
		status.Message = fmt.Sprintf("%s is checked in. Scan again to check out.", person.DisplayName())
	default:
		status.CanCheckIn = true
		status.Message = fmt.Sprintf("%s can check in.", person.DisplayName())
	}
	return status, nil
}

func (s *scanService) Statistics(ctx context.Context, since time.Time) (*sessionservice.Statistics, error) {
	if since.IsZero() {
		now := s.now()
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}
	return s.sessions.Statistics(ctx, since)
}

func (s *scanService) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	entries, err := s.audit.Recent(ctx, limit)
	if err != nil {
		s.log.Error("Failed to read scan audit log", "error", err)
		return nil, apperrors.Unavailable("audit log")
	}
	return entries, nil
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

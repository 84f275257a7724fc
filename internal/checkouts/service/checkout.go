package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	checkouterrors "shelfwatch/internal/checkouts/errors"
	sessionserrors "shelfwatch/internal/sessions/errors"
	"shelfwatch/internal/events"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/internal/store"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"

	"github.com/google/uuid"
)

type LoanPolicy struct {
	LoanDays        int
	FinePerDayCents int
}

func (p LoanPolicy) dueFrom(now time.Time) time.Time {
	days := p.LoanDays
	if days <= 0 {
		days = 14
	}
	return now.AddDate(0, 0, days)
}

type CheckoutService interface {
	// Reserve marks equipment IN_USE and opens the bound session in one transaction.
	Reserve(ctx context.Context, equipmentID, personID string) (*model.Session, error)
	// Release ends an equipment-bound session, freeing the equipment.
	Release(ctx context.Context, sessionID string) (*model.Session, error)
	Checkout(ctx context.Context, bookID, personID string, dueDate *time.Time) (*model.Checkout, error)
	ReturnBook(ctx context.Context, checkoutID string) (*model.Checkout, error)
	ListForPerson(ctx context.Context, personID string) ([]*model.Checkout, error)
	ListOverdue(ctx context.Context, limit int, offset int64) ([]*model.Checkout, int64, error)
	MarkOverdue(ctx context.Context) ([]*model.Checkout, error)
}

type checkoutService struct {
	store      store.Store
	sessions   sessionservice.SessionService
	dispatcher events.Dispatcher
	limits     sessionservice.TimeLimits
	policy     LoanPolicy
	log        *logger.Logger
	now        func() time.Time
}

func NewCheckoutService(
	st store.Store,
	sessions sessionservice.SessionService,
	dispatcher events.Dispatcher,
	limits sessionservice.TimeLimits,
	policy LoanPolicy,
	log *logger.Logger,
	now func() time.Time,
) CheckoutService {
	if now == nil {
		now = time.Now
	}
	return &checkoutService{
		store:      st,
		sessions:   sessions,
		dispatcher: dispatcher,
		limits:     limits,
		policy:     policy,
		log:        log,
		now:        now,
	}
}

func (s *checkoutService) Reserve(ctx context.Context, equipmentID, personID string) (*model.Session, error) {
	var (
		session   *model.Session
		equipment *model.Equipment
		person    *model.Person
	)

	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		var err error
		person, err = s.store.People().FindByID(ctx, personID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.NotFoundWithID("Person", personID).WithCause(checkouterrors.ErrPersonNotFound)
			}
			return err
		}

		equipment, err = s.store.Equipment().TransitionStatus(ctx, equipmentID, model.EquipmentAvailable, model.EquipmentInUse)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return apperrors.NotFoundWithID("Equipment", equipmentID).WithCause(checkouterrors.ErrEquipmentNotFound)
			case errors.Is(err, store.ErrPrecondition):
				return apperrors.Conflict("Equipment is not available").
					WithDetails(map[string]any{"equipment_id": equipmentID}).
					WithCause(checkouterrors.ErrNotAvailable)
			}
			return err
		}

		limit := s.limits.ForEquipment(person.Category, equipment)
		session = sessionservice.NewSession(person.ID, model.SessionResource, equipment.ID, limit, s.now())
		if err := s.store.Sessions().Create(ctx, session); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperrors.Conflict("Person already has an active session").
					WithDetails(map[string]any{"person_id": person.ID}).
					WithCause(sessionserrors.ErrActiveSessionExists)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, "reserve", equipmentID)
	}

	s.log.Info("Equipment reserved",
		"equipment_id", equipment.ID,
		"code", equipment.Code,
		"person_id", person.ID,
		"session_id", session.ID,
	)
	s.dispatcher.Dispatch(
		events.ReservationUpdate{Act: events.ActionCreated, Session: session, Equipment: equipment},
		events.SessionUpdate{Act: events.ActionCreated, Session: session, Person: person},
	)
	return session, nil
}

func (s *checkoutService) Release(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsEquipmentBound() {
		return nil, apperrors.InvalidInput("Session is not bound to equipment").
			WithDetails(map[string]any{"session_id": sessionID}).
			WithCause(checkouterrors.ErrNotEquipmentSession)
	}
	return s.sessions.End(ctx, sessionID)
}

func (s *checkoutService) Checkout(ctx context.Context, bookID, personID string, dueDate *time.Time) (*model.Checkout, error) {
	now := s.now()
	due := s.policy.dueFrom(now)
	if dueDate != nil {
		if !dueDate.After(now) {
			return nil, apperrors.InvalidInput("Due date must be in the future").WithCause(checkouterrors.ErrInvalidDueDate)
		}
		due = *dueDate
	}

	checkout := &model.Checkout{
		ID:           uuid.NewString(),
		PersonID:     personID,
		BookID:       bookID,
		CheckoutDate: now,
		DueDate:      due,
		Status:       model.CheckoutActive,
	}
	var book *model.Book

	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.store.People().FindByID(ctx, personID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.NotFoundWithID("Person", personID).WithCause(checkouterrors.ErrPersonNotFound)
			}
			return err
		}

		if _, err := s.store.Checkouts().FindOutstanding(ctx, personID, bookID); err == nil {
			return alreadyCheckedOut(personID, bookID)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		var err error
		book, err = s.store.Books().AdjustAvailable(ctx, bookID, -1)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return apperrors.NotFoundWithID("Book", bookID).WithCause(checkouterrors.ErrBookNotFound)
			case errors.Is(err, store.ErrPrecondition):
				return apperrors.Conflict("No copies available").
					WithDetails(map[string]any{"book_id": bookID}).
					WithCause(checkouterrors.ErrNoCopiesAvailable)
			}
			return err
		}

		if err := s.store.Checkouts().Create(ctx, checkout); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return alreadyCheckedOut(personID, bookID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.mapError(err, "checkout", bookID)
	}

	s.log.Info("Book checked out",
		"checkout_id", checkout.ID,
		"book_id", book.ID,
		"person_id", personID,
		"available_copies", book.AvailableCopies,
		"due_date", checkout.DueDate,
	)
	s.dispatcher.Dispatch(events.CheckoutUpdate{Act: events.ActionCreated, Checkout: checkout, Book: book})
	return checkout, nil
}

func (s *checkoutService) ReturnBook(ctx context.Context, checkoutID string) (*model.Checkout, error) {
	var (
		returned *model.Checkout
		book     *model.Book
	)

	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		current, err := s.store.Checkouts().FindByID(ctx, checkoutID)
		if err != nil {
			return err
		}

		now := s.now()
		days := model.DaysOverdueAt(current.DueDate, now)
		returned, err = s.store.Checkouts().Close(ctx, checkoutID, now, days, days*s.policy.FinePerDayCents)
		if err != nil {
			return err
		}

		book, err = s.store.Books().AdjustAvailable(ctx, current.BookID, 1)
		if errors.Is(err, store.ErrPrecondition) {
			s.log.Error("Book copies out of sync on return",
				"checkout_id", checkoutID,
				"book_id", current.BookID,
				"error", err,
			)
			return apperrors.Internal("Book availability is inconsistent", fmt.Errorf("%w: %w", checkouterrors.ErrCopiesOutOfSync, err)).
				WithDetails(map[string]any{"book_id": current.BookID, "checkout_id": checkoutID})
		}
		return err
	})
	if err != nil {
		return nil, s.mapError(err, "return", checkoutID)
	}

	s.log.Info("Book returned",
		"checkout_id", returned.ID,
		"book_id", book.ID,
		"available_copies", book.AvailableCopies,
		"days_overdue", returned.DaysOverdue,
		"fine_cents", returned.FineCents,
	)
	s.dispatcher.Dispatch(events.CheckoutUpdate{Act: events.ActionEnded, Checkout: returned, Book: book})
	return returned, nil
}

func (s *checkoutService) ListForPerson(ctx context.Context, personID string) ([]*model.Checkout, error) {
	list, err := s.store.Checkouts().ListByPerson(ctx, personID)
	if err != nil {
		return nil, s.mapError(err, "list", personID)
	}
	if list == nil {
		list = []*model.Checkout{}
	}
	return list, nil
}

func (s *checkoutService) ListOverdue(ctx context.Context, limit int, offset int64) ([]*model.Checkout, int64, error) {
	now := s.now()
	list, err := s.store.Checkouts().ListOverdue(ctx, now, limit, offset)
	if err != nil {
		return nil, 0, s.mapError(err, "list overdue", "")
	}
	total, err := s.store.Checkouts().CountOverdue(ctx, now)
	if err != nil {
		return nil, 0, s.mapError(err, "count overdue", "")
	}
	if list == nil {
		list = []*model.Checkout{}
	}
	return list, total, nil
}

func (s *checkoutService) MarkOverdue(ctx context.Context) ([]*model.Checkout, error) {
	marked, err := s.store.Checkouts().MarkOverdue(ctx, s.now())
	if err != nil {
		return nil, s.mapError(err, "mark overdue", "")
	}

	evs := make([]events.Event, 0, len(marked))
	for _, checkout := range marked {
		evs = append(evs, events.CheckoutUpdate{Act: events.ActionUpdated, Checkout: checkout})
	}
	if len(marked) > 0 {
		s.log.Info("Marked checkouts overdue", "count", len(marked))
		s.dispatcher.Dispatch(evs...)
	}
	if marked == nil {
		marked = []*model.Checkout{}
	}
	return marked, nil
}

func alreadyCheckedOut(personID, bookID string) error {
	return apperrors.Conflict("Person already has this book checked out").
		WithDetails(map[string]any{"person_id": personID, "book_id": bookID}).
		WithCause(checkouterrors.ErrAlreadyCheckedOut)
}

func (s *checkoutService) mapError(err error, operation, id string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperrors.NotFoundWithID("Checkout", id).WithCause(checkouterrors.ErrCheckoutNotFound)
	case errors.Is(err, store.ErrPrecondition):
		return apperrors.Conflict("Checkout already returned").
			WithDetails(map[string]any{"checkout_id": id}).
			WithCause(checkouterrors.ErrAlreadyReturned)
	}

	s.log.Error("Checkout operation failed",
		"operation", operation,
		"id", id,
		"error", err,
	)
	return apperrors.Internal(fmt.Sprintf("Failed to %s", operation), err)
}

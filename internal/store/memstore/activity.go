package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/model"
)

type sessionStore struct{ s *Store }

func (ss sessionStore) Create(ctx context.Context, session *model.Session) error {
	defer ss.s.lock(ctx)()

	if _, ok := ss.s.data.sessions[session.ID]; ok {
		return fmt.Errorf("%w: session %s", store.ErrDuplicate, session.ID)
	}
	if session.Status == model.SessionActive {
		for _, existing := range ss.s.data.sessions {
			if existing.Status != model.SessionActive {
				continue
			}
			if existing.PersonID == session.PersonID {
				return fmt.Errorf("%w: person %s already has active session %s", store.ErrDuplicate, session.PersonID, existing.ID)
			}
			if session.IsEquipmentBound() && existing.IsEquipmentBound() && existing.ResourceID == session.ResourceID {
				return fmt.Errorf("%w: equipment %s already has active session %s", store.ErrDuplicate, session.ResourceID, existing.ID)
			}
		}
	}
	ss.s.data.sessions[session.ID] = cloneSession(session)
	return nil
}

func (ss sessionStore) FindByID(ctx context.Context, id string) (*model.Session, error) {
	defer ss.s.lock(ctx)()

	if session, ok := ss.s.data.sessions[id]; ok {
		return cloneSession(session), nil
	}
	return nil, fmt.Errorf("%w: session %s", store.ErrNotFound, id)
}

func (ss sessionStore) FindActiveByPerson(ctx context.Context, personID string) (*model.Session, error) {
	defer ss.s.lock(ctx)()

	for _, session := range ss.s.data.sessions {
		if session.PersonID == personID && session.Status == model.SessionActive {
			return cloneSession(session), nil
		}
	}
	return nil, fmt.Errorf("%w: active session for person %s", store.ErrNotFound, personID)
}

func (ss sessionStore) FindActiveByResource(ctx context.Context, resourceID string) (*model.Session, error) {
	defer ss.s.lock(ctx)()

	for _, session := range ss.s.data.sessions {
		if session.ResourceID == resourceID && session.Status == model.SessionActive {
			return cloneSession(session), nil
		}
	}
	return nil, fmt.Errorf("%w: active session for resource %s", store.ErrNotFound, resourceID)
}

func (ss sessionStore) FindLatestCompletedByPerson(ctx context.Context, personID string) (*model.Session, error) {
	defer ss.s.lock(ctx)()

	var latest *model.Session
	for _, session := range ss.s.data.sessions {
		if session.PersonID != personID || session.Status != model.SessionCompleted {
			continue
		}
		if latest == nil || latestEnd(session).After(latestEnd(latest)) {
			latest = session
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: completed session for person %s", store.ErrNotFound, personID)
	}
	return cloneSession(latest), nil
}

func (ss sessionStore) activeLocked() []*model.Session {
	var active []*model.Session
	for _, session := range ss.s.data.sessions {
		if session.Status == model.SessionActive {
			active = append(active, cloneSession(session))
		}
	}
	sortSessionsByStart(active)
	return active
}

func (ss sessionStore) ListActive(ctx context.Context, limit int, offset int64) ([]*model.Session, error) {
	defer ss.s.lock(ctx)()
	return page(ss.activeLocked(), limit, offset), nil
}

func (ss sessionStore) CountActive(ctx context.Context) (int64, error) {
	defer ss.s.lock(ctx)()
	return int64(len(ss.activeLocked())), nil
}

func (ss sessionStore) ListActiveExpiredAt(ctx context.Context, at time.Time) ([]*model.Session, error) {
	defer ss.s.lock(ctx)()

	var expired []*model.Session
	for _, session := range ss.activeLocked() {
		if !session.ExpectedEndTime.After(at) {
			expired = append(expired, session)
		}
	}
	return expired, nil
}

func (ss sessionStore) ListStartedSince(ctx context.Context, since time.Time) ([]*model.Session, error) {
	defer ss.s.lock(ctx)()

	var started []*model.Session
	for _, session := range ss.s.data.sessions {
		if !session.StartTime.Before(since) {
			started = append(started, cloneSession(session))
		}
	}
	sortSessionsByStart(started)
	return started, nil
}

func (ss sessionStore) Finish(ctx context.Context, id string, status model.SessionStatus, end time.Time, durationMinutes *int) (*model.Session, error) {
	defer ss.s.lock(ctx)()

	session, ok := ss.s.data.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", store.ErrNotFound, id)
	}
	if session.Status != model.SessionActive {
		return nil, fmt.Errorf("%w: session %s is %s", store.ErrPrecondition, id, session.Status)
	}
	session.Status = status
	endTime := end
	session.EndTime = &endTime
	if durationMinutes != nil {
		d := *durationMinutes
		session.DurationMinutes = &d
	}
	return cloneSession(session), nil
}

type checkoutStore struct{ s *Store }

func (cs checkoutStore) Create(ctx context.Context, checkout *model.Checkout) error {
	defer cs.s.lock(ctx)()

	if _, ok := cs.s.data.checkouts[checkout.ID]; ok {
		return fmt.Errorf("%w: checkout %s", store.ErrDuplicate, checkout.ID)
	}
	for _, existing := range cs.s.data.checkouts {
		if existing.IsOutstanding() && existing.PersonID == checkout.PersonID && existing.BookID == checkout.BookID {
			return fmt.Errorf("%w: person %s already holds book %s", store.ErrDuplicate, checkout.PersonID, checkout.BookID)
		}
	}
	c := cloneCheckout(checkout)
	c.Outstanding = c.IsOutstanding()
	cs.s.data.checkouts[checkout.ID] = c
	return nil
}

func (cs checkoutStore) FindByID(ctx context.Context, id string) (*model.Checkout, error) {
	defer cs.s.lock(ctx)()

	if checkout, ok := cs.s.data.checkouts[id]; ok {
		return cloneCheckout(checkout), nil
	}
	return nil, fmt.Errorf("%w: checkout %s", store.ErrNotFound, id)
}

func (cs checkoutStore) FindOutstanding(ctx context.Context, personID, bookID string) (*model.Checkout, error) {
	defer cs.s.lock(ctx)()

	for _, checkout := range cs.s.data.checkouts {
		if checkout.IsOutstanding() && checkout.PersonID == personID && checkout.BookID == bookID {
			return cloneCheckout(checkout), nil
		}
	}
	return nil, fmt.Errorf("%w: outstanding checkout of %s by %s", store.ErrNotFound, bookID, personID)
}

func (cs checkoutStore) ListByPerson(ctx context.Context, personID string) ([]*model.Checkout, error) {
	defer cs.s.lock(ctx)()

	var list []*model.Checkout
	for _, checkout := range cs.s.data.checkouts {
		if checkout.PersonID == personID {
			list = append(list, cloneCheckout(checkout))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CheckoutDate.After(list[j].CheckoutDate)
	})
	return list, nil
}

func (cs checkoutStore) CountOutstandingByBook(ctx context.Context, bookID string) (int64, error) {
	defer cs.s.lock(ctx)()

	var n int64
	for _, checkout := range cs.s.data.checkouts {
		if checkout.BookID == bookID && checkout.IsOutstanding() {
			n++
		}
	}
	return n, nil
}

func (cs checkoutStore) overdueLocked(at time.Time) []*model.Checkout {
	var list []*model.Checkout
	for _, checkout := range cs.s.data.checkouts {
		if checkout.IsOutstanding() && checkout.DueDate.Before(at) {
			list = append(list, cloneCheckout(checkout))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].DueDate.Before(list[j].DueDate)
	})
	return list
}

func (cs checkoutStore) ListOverdue(ctx context.Context, at time.Time, limit int, offset int64) ([]*model.Checkout, error) {
	defer cs.s.lock(ctx)()
	return page(cs.overdueLocked(at), limit, offset), nil
}

func (cs checkoutStore) CountOverdue(ctx context.Context, at time.Time) (int64, error) {
	defer cs.s.lock(ctx)()
	return int64(len(cs.overdueLocked(at))), nil
}

func (cs checkoutStore) Close(ctx context.Context, id string, returnDate time.Time, daysOverdue, fineCents int) (*model.Checkout, error) {
	defer cs.s.lock(ctx)()

	checkout, ok := cs.s.data.checkouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: checkout %s", store.ErrNotFound, id)
	}
	if !checkout.IsOutstanding() {
		return nil, fmt.Errorf("%w: checkout %s is %s", store.ErrPrecondition, id, checkout.Status)
	}
	rd := returnDate
	checkout.ReturnDate = &rd
	checkout.Status = model.CheckoutReturned
	checkout.Outstanding = false
	checkout.DaysOverdue = daysOverdue
	checkout.FineCents = fineCents
	checkout.FineEligible = daysOverdue > 0
	return cloneCheckout(checkout), nil
}

func (cs checkoutStore) MarkOverdue(ctx context.Context, at time.Time) ([]*model.Checkout, error) {
	defer cs.s.lock(ctx)()

	var marked []*model.Checkout
	for _, checkout := range cs.s.data.checkouts {
		if checkout.Status == model.CheckoutActive && checkout.DueDate.Before(at) {
			checkout.Status = model.CheckoutOverdue
			marked = append(marked, cloneCheckout(checkout))
		}
	}
	sort.Slice(marked, func(i, j int) bool {
		return marked[i].DueDate.Before(marked[j].DueDate)
	})
	return marked, nil
}

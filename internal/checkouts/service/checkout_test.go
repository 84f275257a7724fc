package service

import (
	"context"
	"sync"
	"testing"
	"time"

	checkouterrors "shelfwatch/internal/checkouts/errors"
	"shelfwatch/internal/events"
	"shelfwatch/internal/guard"
	sessionserrors "shelfwatch/internal/sessions/errors"
	sessionservice "shelfwatch/internal/sessions/service"
	"shelfwatch/internal/store"
	"shelfwatch/internal/store/memstore"
	"shelfwatch/internal/store/storetest"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store      store.Store
	clock      *storetest.Clock
	dispatcher *storetest.Dispatcher
	sessions   sessionservice.SessionService
	svc        CheckoutService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	clock := storetest.NewClock(t0)
	log := logger.Nop()
	dispatcher := &storetest.Dispatcher{}
	limits := sessionservice.TimeLimits{
		ByCategory: map[string]int{model.CategoryJuniorHigh: 90},
		Default:    60,
	}

	sessions := sessionservice.NewSessionService(
		st,
		guard.NewGuard(st, guard.Policy{}, log, clock.Now),
		NewReleaser(st, log),
		dispatcher,
		limits,
		log,
		clock.Now,
	)
	return &fixture{
		store:      st,
		clock:      clock,
		dispatcher: dispatcher,
		sessions:   sessions,
		svc: NewCheckoutService(st, sessions, dispatcher, limits,
			LoanPolicy{LoanDays: 14, FinePerDayCents: 25}, log, clock.Now),
	}
}

func (f *fixture) equipment(t *testing.T, id string) *model.Equipment {
	t.Helper()
	e, err := f.store.Equipment().FindByID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) assertCopiesInvariant(t *testing.T, bookID string) {
	t.Helper()
	book, err := f.store.Books().FindByID(context.Background(), bookID)
	require.NoError(t, err)
	outstanding, err := f.store.Checkouts().CountOutstandingByBook(context.Background(), bookID)
	require.NoError(t, err)
	assert.EqualValues(t, book.TotalCopies, int64(book.AvailableCopies)+outstanding)
}

func TestReserve_LaptopLifecycle(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().WithCategory(model.CategoryJuniorHigh).Create(t, f.store)
	laptop := storetest.NewEquipmentBuilder().WithCode("LAPTOP001").Create(t, f.store)

	session, err := f.svc.Reserve(context.Background(), laptop.ID, person.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionResource, session.Kind)
	assert.Equal(t, laptop.ID, session.ResourceID)
	assert.Equal(t, 90, session.TimeLimitMinutes)
	assert.Equal(t, model.EquipmentInUse, f.equipment(t, laptop.ID).Status)

	evs := f.dispatcher.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeReservationUpdate, evs[0].Type())
	assert.Equal(t, laptop.ID, evs[0].ResourceID())

	other := storetest.NewPersonBuilder().WithBarcode("2023002").Create(t, f.store)
	_, err = f.svc.Reserve(context.Background(), laptop.ID, other.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrNotAvailable)

	f.clock.Advance(25 * time.Minute)
	ended, err := f.svc.Release(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, ended.Status)
	assert.Equal(t, 25, *ended.DurationMinutes)
	assert.Equal(t, model.EquipmentAvailable, f.equipment(t, laptop.ID).Status)

	_, err = f.svc.Reserve(context.Background(), laptop.ID, other.ID)
	require.NoError(t, err)
}

func TestReserve_EquipmentCapShortensLimit(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().WithCategory(model.CategoryJuniorHigh).Create(t, f.store)
	tablet := storetest.NewEquipmentBuilder().WithCode("TABLET01").WithMaxMinutes(30).Create(t, f.store)

	session, err := f.svc.Reserve(context.Background(), tablet.ID, person.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, session.TimeLimitMinutes)
}

func TestReserve_MaintenanceNotAvailable(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)
	broken := storetest.NewEquipmentBuilder().WithStatus(model.EquipmentMaintenance).Create(t, f.store)

	_, err := f.svc.Reserve(context.Background(), broken.ID, person.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.ErrorIs(t, err, checkouterrors.ErrNotAvailable)
}

func TestReserve_UnknownEquipmentAndPerson(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)
	laptop := storetest.NewEquipmentBuilder().Create(t, f.store)

	_, err := f.svc.Reserve(context.Background(), "missing", person.ID)
	assert.ErrorIs(t, err, checkouterrors.ErrEquipmentNotFound)

	_, err = f.svc.Reserve(context.Background(), laptop.ID, "missing")
	assert.ErrorIs(t, err, checkouterrors.ErrPersonNotFound)
	assert.Equal(t, model.EquipmentAvailable, f.equipment(t, laptop.ID).Status)
}

func TestReserve_ActiveSessionRollsBackEquipment(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)
	laptop := storetest.NewEquipmentBuilder().Create(t, f.store)

	_, err := f.sessions.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)
	f.dispatcher.Reset()

	_, err = f.svc.Reserve(context.Background(), laptop.ID, person.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, sessionserrors.ErrActiveSessionExists)

	assert.Equal(t, model.EquipmentAvailable, f.equipment(t, laptop.ID).Status)
	active, err := f.store.Sessions().FindActiveByResource(context.Background(), laptop.ID)
	assert.Nil(t, active)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.dispatcher.Events())
}

func TestReserve_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	laptop := storetest.NewEquipmentBuilder().WithCode("LAPTOP001").Create(t, f.store)

	const workers = 10
	people := make([]*model.Person, workers)
	for i := range people {
		people[i] = storetest.NewPersonBuilder().WithBarcode(string(rune('0'+i)) + "0000").Create(t, f.store)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, p := range people {
		wg.Add(1)
		go func(personID string) {
			defer wg.Done()
			_, err := f.svc.Reserve(context.Background(), laptop.ID, personID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if apperrors.HasCode(err, apperrors.CodeConflict) {
				conflicts++
			}
		}(p.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, model.EquipmentInUse, f.equipment(t, laptop.ID).Status)

	active, err := f.store.Sessions().FindActiveByResource(context.Background(), laptop.ID)
	require.NoError(t, err)
	assert.Equal(t, laptop.ID, active.ResourceID)
}

func TestRelease_VisitSessionRejected(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)
	visit, err := f.sessions.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	_, err = f.svc.Release(context.Background(), visit.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrNotEquipmentSession)
}

func TestCancel_ReleasesEquipment(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)
	laptop := storetest.NewEquipmentBuilder().Create(t, f.store)

	session, err := f.svc.Reserve(context.Background(), laptop.ID, person.ID)
	require.NoError(t, err)

	_, err = f.sessions.Cancel(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EquipmentAvailable, f.equipment(t, laptop.ID).Status)
}

func TestCheckout_TwoCopyBook(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().WithAccession("ACC001234").WithCopies(2, 2).Create(t, f.store)
	a := storetest.NewPersonBuilder().WithBarcode("4001").Create(t, f.store)
	b := storetest.NewPersonBuilder().WithBarcode("4002").Create(t, f.store)
	c := storetest.NewPersonBuilder().WithBarcode("4003").Create(t, f.store)

	first, err := f.svc.Checkout(context.Background(), book.ID, a.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, t0.AddDate(0, 0, 14), first.DueDate)
	f.assertCopiesInvariant(t, book.ID)

	_, err = f.svc.Checkout(context.Background(), book.ID, a.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrAlreadyCheckedOut)

	_, err = f.svc.Checkout(context.Background(), book.ID, b.ID, nil)
	require.NoError(t, err)
	f.assertCopiesInvariant(t, book.ID)

	_, err = f.svc.Checkout(context.Background(), book.ID, c.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrNoCopiesAvailable)

	returned, err := f.svc.ReturnBook(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CheckoutReturned, returned.Status)
	assert.False(t, returned.FineEligible)
	f.assertCopiesInvariant(t, book.ID)

	_, err = f.svc.Checkout(context.Background(), book.ID, c.ID, nil)
	require.NoError(t, err)
	f.assertCopiesInvariant(t, book.ID)
}

func TestCheckout_ConcurrentLastCopy(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().WithCopies(1, 1).Create(t, f.store)

	const workers = 8
	ids := make([]string, workers)
	for i := range ids {
		ids[i] = storetest.NewPersonBuilder().WithBarcode(string(rune('1'+i)) + "111").Create(t, f.store).ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(personID string) {
			defer wg.Done()
			if _, err := f.svc.Checkout(context.Background(), book.ID, personID, nil); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	f.assertCopiesInvariant(t, book.ID)
}

func TestCheckout_ExplicitDueDate(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().Create(t, f.store)
	person := storetest.NewPersonBuilder().Create(t, f.store)

	past := t0.Add(-time.Hour)
	_, err := f.svc.Checkout(context.Background(), book.ID, person.ID, &past)
	assert.ErrorIs(t, err, checkouterrors.ErrInvalidDueDate)

	due := t0.AddDate(0, 0, 3)
	checkout, err := f.svc.Checkout(context.Background(), book.ID, person.ID, &due)
	require.NoError(t, err)
	assert.Equal(t, due, checkout.DueDate)
}

func TestCheckout_UnknownBook(t *testing.T) {
	f := newFixture(t)
	person := storetest.NewPersonBuilder().Create(t, f.store)

	_, err := f.svc.Checkout(context.Background(), "missing", person.ID, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.ErrorIs(t, err, checkouterrors.ErrBookNotFound)
}

func TestReturnBook_LateFine(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().Create(t, f.store)
	person := storetest.NewPersonBuilder().Create(t, f.store)

	checkout, err := f.svc.Checkout(context.Background(), book.ID, person.ID, nil)
	require.NoError(t, err)

	f.clock.Advance(14*24*time.Hour + 2*24*time.Hour + time.Hour)
	returned, err := f.svc.ReturnBook(context.Background(), checkout.ID)
	require.NoError(t, err)
	assert.True(t, returned.FineEligible)
	assert.Equal(t, 3, returned.DaysOverdue)
	assert.Equal(t, 75, returned.FineCents)
	require.NotNil(t, returned.ReturnDate)

	_, err = f.svc.ReturnBook(context.Background(), checkout.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrAlreadyReturned)
	f.assertCopiesInvariant(t, book.ID)
}

func TestReturnBook_CopyCounterDriftIsNotReportedAsReturned(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().WithCopies(1, 1).Create(t, f.store)
	person := storetest.NewPersonBuilder().Create(t, f.store)

	checkout, err := f.svc.Checkout(context.Background(), book.ID, person.ID, nil)
	require.NoError(t, err)
	_, err = f.store.Books().AdjustAvailable(context.Background(), book.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.ReturnBook(context.Background(), checkout.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
	assert.ErrorIs(t, err, checkouterrors.ErrCopiesOutOfSync)
	assert.NotErrorIs(t, err, checkouterrors.ErrAlreadyReturned)
	assert.Equal(t, book.ID, apperrors.AsAppError(err).Details["book_id"])

	current, err := f.store.Checkouts().FindByID(context.Background(), checkout.ID)
	require.NoError(t, err)
	assert.True(t, current.IsOutstanding())
}

func TestReturnBook_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ReturnBook(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, checkouterrors.ErrCheckoutNotFound)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	book := storetest.NewBookBuilder().WithCopies(3, 3).Create(t, f.store)
	a := storetest.NewPersonBuilder().WithBarcode("6001").Create(t, f.store)
	b := storetest.NewPersonBuilder().WithBarcode("6002").Create(t, f.store)

	_, err := f.svc.Checkout(context.Background(), book.ID, a.ID, nil)
	require.NoError(t, err)
	short := t0.AddDate(0, 0, 30)
	_, err = f.svc.Checkout(context.Background(), book.ID, b.ID, &short)
	require.NoError(t, err)
	f.dispatcher.Reset()

	f.clock.Advance(20 * 24 * time.Hour)
	marked, err := f.svc.MarkOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, a.ID, marked[0].PersonID)
	assert.Equal(t, model.CheckoutOverdue, marked[0].Status)
	assert.Len(t, f.dispatcher.Events(), 1)

	overdue, total, err := f.svc.ListOverdue(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, overdue, 1)

	_, err = f.svc.Checkout(context.Background(), book.ID, a.ID, nil)
	assert.ErrorIs(t, err, checkouterrors.ErrAlreadyCheckedOut)
	f.assertCopiesInvariant(t, book.ID)

	loans, err := f.svc.ListForPerson(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, loans, 1)
}

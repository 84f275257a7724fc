package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelfwatch/internal/events"
	"shelfwatch/internal/guard"
	sessionserrors "shelfwatch/internal/sessions/errors"
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

var limits = TimeLimits{
	ByCategory: map[string]int{
		model.CategoryPrimary:    60,
		model.CategoryJuniorHigh: 90,
		model.CategorySeniorHigh: 120,
	},
	Default: 60,
}

type fixture struct {
	store      store.Store
	clock      *storetest.Clock
	dispatcher *storetest.Dispatcher
	releaser   *fakeReleaser
	svc        SessionService
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
	err      error
}

func (f *fakeReleaser) ReleaseEquipment(_ context.Context, session *model.Session) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.released = append(f.released, session.ResourceID)
	return []events.Event{events.ReservationUpdate{Act: events.ActionEnded, Session: session}}, nil
}

func newFixture(t *testing.T, policy guard.Policy) *fixture {
	t.Helper()
	st := memstore.New()
	clock := storetest.NewClock(t0)
	f := &fixture{
		store:      st,
		clock:      clock,
		dispatcher: &storetest.Dispatcher{},
		releaser:   &fakeReleaser{},
	}
	g := guard.NewGuard(st, policy, logger.Nop(), clock.Now)
	f.svc = NewSessionService(st, g, f.releaser, f.dispatcher, limits, logger.Nop(), clock.Now)
	return f
}

func TestTimeLimits(t *testing.T) {
	assert.Equal(t, 90, limits.For("junior_high"))
	assert.Equal(t, 60, limits.For("UNKNOWN"))
	assert.Equal(t, 60, TimeLimits{}.For(model.CategoryStaff))

	laptop := &model.Equipment{MaxMinutes: 45}
	assert.Equal(t, 45, limits.ForEquipment(model.CategorySeniorHigh, laptop))
	assert.Equal(t, 60, limits.ForEquipment(model.CategoryPrimary, &model.Equipment{MaxMinutes: 240}))
	assert.Equal(t, 90, limits.ForEquipment(model.CategoryJuniorHigh, nil))
}

func TestCheckIn_StartsVisitWithCategoryLimit(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute})
	person := storetest.NewPersonBuilder().WithCategory(model.CategoryJuniorHigh).Create(t, f.store)

	session, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	assert.Equal(t, model.SessionActive, session.Status)
	assert.Equal(t, model.SessionVisit, session.Kind)
	assert.Equal(t, 90, session.TimeLimitMinutes)
	assert.Equal(t, t0.Add(90*time.Minute), session.ExpectedEndTime)

	evs := f.dispatcher.Events()
	require.Len(t, evs, 1)
	update, ok := evs[0].(events.SessionUpdate)
	require.True(t, ok)
	assert.Equal(t, events.ActionCreated, update.Act)
	assert.Equal(t, person.ID, update.Person.ID)
}

func TestCheckIn_UnknownPerson(t *testing.T) {
	f := newFixture(t, guard.Policy{})

	_, err := f.svc.CheckIn(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.ErrorIs(t, err, sessionserrors.ErrPersonNotFound)
}

func TestCheckIn_DuplicateScanRejected(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	_, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.CheckIn(context.Background(), person.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.ErrorIs(t, err, sessionserrors.ErrDuplicateScan)
}

func TestCheckIn_ActiveSessionOutsideWindow(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	_, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	f.clock.Advance(45 * time.Minute)
	_, err = f.svc.CheckIn(context.Background(), person.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, sessionserrors.ErrActiveSessionExists)
}

func TestCheckIn_CooldownBlocksWithRemaining(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute, CheckinCooldown: 30 * time.Minute})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	session, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)
	f.clock.Advance(40 * time.Minute)
	_, err = f.svc.End(context.Background(), session.ID)
	require.NoError(t, err)

	f.clock.Advance(18 * time.Minute)
	_, err = f.svc.CheckIn(context.Background(), person.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, sessionserrors.ErrCooldown)

	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodePolicyBlocked, appErr.Code)
	assert.EqualValues(t, 720, appErr.Details[apperrors.DetailRemainingSeconds])
}

func TestEnd_RecordsFlooredDurationAndAllowsReturn(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute})
	person := storetest.NewPersonBuilder().WithCategory(model.CategoryJuniorHigh).Create(t, f.store)

	session, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	f.clock.Advance(40*time.Minute + 50*time.Second)
	ended, err := f.svc.End(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, ended.Status)
	require.NotNil(t, ended.DurationMinutes)
	assert.Equal(t, 40, *ended.DurationMinutes)
	require.NotNil(t, ended.EndTime)

	f.clock.Advance(31 * time.Minute)
	again, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, again.ID)
}

func TestEnd_Twice(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	session, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)
	_, err = f.svc.End(context.Background(), session.ID)
	require.NoError(t, err)

	_, err = f.svc.End(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.ErrorIs(t, err, sessionserrors.ErrSessionNotActive)
}

func TestEnd_PersonLookupFailureIsLogged(t *testing.T) {
	st := memstore.New()
	clock := storetest.NewClock(t0)
	person := storetest.NewPersonBuilder().Create(t, st)
	seed := NewSessionService(st, guard.NewGuard(st, guard.Policy{}, logger.Nop(), clock.Now), nil, &storetest.Dispatcher{}, limits, logger.Nop(), clock.Now)
	session, err := seed.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)

	var logs bytes.Buffer
	log := logger.New(logger.Config{Level: logger.WARN, Format: logger.TEXT, Output: &logs})
	failing := &storetest.Failing{Store: st, FailPeople: true}
	dispatcher := &storetest.Dispatcher{}
	svc := NewSessionService(failing, guard.NewGuard(failing, guard.Policy{}, log, clock.Now), nil, dispatcher, limits, log, clock.Now)

	ended, err := svc.End(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, ended.Status)

	emitted := dispatcher.Events()
	require.Len(t, emitted, 1)
	update, ok := emitted[0].(events.SessionUpdate)
	require.True(t, ok)
	assert.Nil(t, update.Person)
	assert.Contains(t, logs.String(), "Failed to load person for session update")
	assert.Contains(t, logs.String(), person.ID)
}

func TestEnd_UnknownSession(t *testing.T) {
	f := newFixture(t, guard.Policy{})

	_, err := f.svc.End(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, sessionserrors.ErrSessionNotFound)
}

func TestCancel_HasNoDuration(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	session, err := f.svc.CheckIn(context.Background(), person.ID)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)

	cancelled, err := f.svc.Cancel(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCancelled, cancelled.Status)
	assert.Nil(t, cancelled.DurationMinutes)
}

func TestEnd_ReleasesBoundEquipment(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	person := storetest.NewPersonBuilder().Create(t, f.store)
	session := NewSession(person.ID, model.SessionResource, "laptop-1", 60, t0)
	require.NoError(t, f.store.Sessions().Create(context.Background(), session))

	_, err := f.svc.End(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop-1"}, f.releaser.released)

	evs := f.dispatcher.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeSessionUpdate, evs[0].Type())
	assert.Equal(t, events.TypeReservationUpdate, evs[1].Type())
}

func TestEnd_ReleaseFailureRollsBack(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	f.releaser.err = errors.New("equipment store down")
	person := storetest.NewPersonBuilder().Create(t, f.store)
	session := NewSession(person.ID, model.SessionResource, "laptop-1", 60, t0)
	require.NoError(t, f.store.Sessions().Create(context.Background(), session))

	_, err := f.svc.End(context.Background(), session.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))

	current, err := f.store.Sessions().FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, current.Status)
	assert.Empty(t, f.dispatcher.Events())
}

func TestConcurrentCheckIn_OneSessionWins(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CheckIn(context.Background(), person.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	count, err := f.store.Sessions().CountActive(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestListActive(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	for _, barcode := range []string{"1001", "1002", "1003"} {
		p := storetest.NewPersonBuilder().WithBarcode(barcode).Create(t, f.store)
		_, err := f.svc.CheckIn(context.Background(), p.ID)
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	page, total, err := f.svc.ListActive(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 2)

	rest, _, err := f.svc.ListActive(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	junior := storetest.NewPersonBuilder().WithBarcode("2001").WithCategory(model.CategoryJuniorHigh).Create(t, f.store)
	primary := storetest.NewPersonBuilder().WithBarcode("2002").WithCategory(model.CategoryPrimary).Create(t, f.store)

	_, err := f.svc.CheckIn(context.Background(), junior.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(context.Background(), primary.ID)
	require.NoError(t, err)

	f.clock.Advance(75 * time.Minute)
	expired, err := f.svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, primary.ID, expired[0].PersonID)
	assert.Equal(t, 75, *expired[0].DurationMinutes)

	active, err := f.svc.ActiveFor(context.Background(), junior.ID)
	require.NoError(t, err)
	assert.True(t, active.IsActive())
}

func TestActiveFor_None(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	person := storetest.NewPersonBuilder().Create(t, f.store)

	_, err := f.svc.ActiveFor(context.Background(), person.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestStatistics(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	a := storetest.NewPersonBuilder().WithBarcode("3001").Create(t, f.store)
	b := storetest.NewPersonBuilder().WithBarcode("3002").Create(t, f.store)

	first, err := f.svc.CheckIn(context.Background(), a.ID)
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.End(context.Background(), first.ID)
	require.NoError(t, err)

	_, err = f.svc.CheckIn(context.Background(), a.ID)
	require.NoError(t, err)
	second, err := f.svc.CheckIn(context.Background(), b.ID)
	require.NoError(t, err)
	f.clock.Advance(40 * time.Minute)
	_, err = f.svc.End(context.Background(), second.ID)
	require.NoError(t, err)

	stats, err := f.svc.Statistics(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCheckIns)
	assert.Equal(t, 2, stats.UniquePersons)
	assert.Equal(t, 2, stats.CompletedSessions)
	assert.EqualValues(t, 1, stats.ActiveNow)
	assert.InDelta(t, 30.0, stats.AverageMinutes, 0.001)
}

func TestStoreFailureIsInternal(t *testing.T) {
	st := &storetest.Failing{Store: memstore.New(), FailSessions: true}
	clock := storetest.NewClock(t0)
	svc := NewSessionService(st, guard.NewGuard(st, guard.Policy{}, logger.Nop(), clock.Now), nil, &storetest.Dispatcher{}, limits, logger.Nop(), clock.Now)

	_, _, err := svc.ListActive(context.Background(), 10, 0)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shelfwatch/internal/audit"
	checkoutservice "shelfwatch/internal/checkouts/service"
	"shelfwatch/internal/guard"
	"shelfwatch/internal/identity"
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

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) Recent(_ context.Context, limit int) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if limit > len(r.entries) {
		limit = len(r.entries)
	}
	return r.entries[len(r.entries)-limit:], nil
}

type fixture struct {
	store store.Store
	clock *storetest.Clock
	audit *recordingAudit
	svc   ScanService
}

func newFixture(t *testing.T, policy guard.Policy) *fixture {
	t.Helper()
	st := memstore.New()
	clock := storetest.NewClock(t0)
	log := logger.Nop()
	dispatcher := &storetest.Dispatcher{}
	limits := sessionservice.TimeLimits{
		ByCategory: map[string]int{model.CategoryJuniorHigh: 90, model.CategoryPrimary: 30},
		Default:    60,
	}
	g := guard.NewGuard(st, policy, log, clock.Now)
	sessions := sessionservice.NewSessionService(st, g, checkoutservice.NewReleaser(st, log), dispatcher, limits, log, clock.Now)
	checkouts := checkoutservice.NewCheckoutService(st, sessions, dispatcher, limits,
		checkoutservice.LoanPolicy{LoanDays: 14, FinePerDayCents: 10}, log, clock.Now)
	rec := &recordingAudit{}

	return &fixture{
		store: st,
		clock: clock,
		audit: rec,
		svc:   NewScanService(st, identity.NewResolver(st, log), g, sessions, checkouts, rec, log, clock.Now),
	}
}

func (f *fixture) scan(t *testing.T, token, personID string) *Result {
	t.Helper()
	result, err := f.svc.Submit(context.Background(), model.ScanRequest{Token: token, PersonID: personID, Station: "front-desk"})
	require.NoError(t, err)
	return result
}

func TestScanPerson_CheckInCheckOutCheckIn(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute})
	storetest.NewPersonBuilder().WithBarcode("2023001").WithName("Ada", "Lovelace").Create(t, f.store)

	in := f.scan(t, "2023001", "")
	assert.Equal(t, identity.TypePerson, in.Type)
	assert.Equal(t, OutcomeAllowed, in.Outcome)
	assert.Equal(t, ActionCheckIn, in.Action)
	assert.Equal(t, "Welcome, Ada Lovelace! Time limit: 90 minutes.", in.Message)
	session := in.Data.(*model.Session)
	assert.Equal(t, 90, session.TimeLimitMinutes)

	f.clock.Advance(40 * time.Minute)
	out := f.scan(t, "2023001", "")
	assert.Equal(t, ActionCheckOut, out.Action)
	assert.Equal(t, OutcomeAllowed, out.Outcome)
	ended := out.Data.(*model.Session)
	assert.Equal(t, session.ID, ended.ID)
	assert.Equal(t, 40, *ended.DurationMinutes)
	assert.Equal(t, "Goodbye, Ada Lovelace. Visit lasted 40 minutes.", out.Message)

	f.clock.Advance(time.Minute)
	again := f.scan(t, "2023001", "")
	assert.Equal(t, ActionCheckIn, again.Action)
	assert.Equal(t, OutcomeAllowed, again.Outcome)
	assert.NotEqual(t, session.ID, again.Data.(*model.Session).ID)

	require.Len(t, f.audit.entries, 3)
	assert.Equal(t, "front-desk", f.audit.entries[0].Station)
	assert.Equal(t, "PERSON", f.audit.entries[0].TokenType)
	assert.Equal(t, "CHECK_OUT", f.audit.entries[1].Action)
}

func TestScanPerson_CooldownRemainingDecreases(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute, CheckinCooldown: 30 * time.Minute})
	storetest.NewPersonBuilder().WithBarcode("2023001").Create(t, f.store)

	f.scan(t, "2023001", "")
	f.clock.Advance(20 * time.Minute)
	f.scan(t, "2023001", "")

	f.clock.Advance(18 * time.Minute)
	blocked := f.scan(t, "2023001", "")
	assert.Equal(t, OutcomeCooldown, blocked.Outcome)
	assert.Equal(t, ActionCheckIn, blocked.Action)
	assert.EqualValues(t, 720, blocked.RemainingSeconds)
	assert.Equal(t, "Please wait 12 more minutes before checking in again", blocked.Message)

	f.clock.Advance(90 * time.Second)
	later := f.scan(t, "2023001", "")
	assert.Equal(t, OutcomeCooldown, later.Outcome)
	assert.Less(t, later.RemainingSeconds, blocked.RemainingSeconds)

	f.clock.Advance(15 * time.Minute)
	allowed := f.scan(t, "2023001", "")
	assert.Equal(t, OutcomeAllowed, allowed.Outcome)
}

func TestScanUnknown(t *testing.T) {
	f := newFixture(t, guard.Policy{})

	result := f.scan(t, "NOPE-42", "")
	assert.Equal(t, identity.TypeUnknown, result.Type)
	assert.Equal(t, OutcomeDenied, result.Outcome)
	assert.Equal(t, "Unrecognized code", result.Message)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, "DENIED", f.audit.entries[0].Outcome)
}

func TestScanBook_BorrowReturnAndLookup(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	book := storetest.NewBookBuilder().WithAccession("ACC001234").WithCopies(2, 2).Create(t, f.store)
	a := storetest.NewPersonBuilder().WithBarcode("4001").Create(t, f.store)
	b := storetest.NewPersonBuilder().WithBarcode("4002").Create(t, f.store)
	c := storetest.NewPersonBuilder().WithBarcode("4003").Create(t, f.store)

	lookup := f.scan(t, "ACC001234", "")
	assert.Equal(t, ActionLookup, lookup.Action)

	assert.Equal(t, ActionBorrow, f.scan(t, "ACC001234", a.ID).Action)
	assert.Equal(t, ActionBorrow, f.scan(t, "ACC001234", b.ID).Action)

	denied := f.scan(t, "ACC001234", c.ID)
	assert.Equal(t, OutcomeDenied, denied.Outcome)
	assert.Equal(t, "No copies available", denied.Message)

	returned := f.scan(t, "ACC001234", a.ID)
	assert.Equal(t, ActionReturn, returned.Action)
	assert.Equal(t, OutcomeAllowed, returned.Outcome)

	current, err := f.store.Books().FindByID(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.AvailableCopies)
	assert.Equal(t, book.ID, f.audit.entries[len(f.audit.entries)-1].ResourceID)
}

func TestScanBook_UnknownPersonDenied(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	storetest.NewBookBuilder().Create(t, f.store)

	result := f.scan(t, "ACC001234", "ghost")
	assert.Equal(t, OutcomeDenied, result.Outcome)
}

func TestScanEquipment_ReserveAndRelease(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	laptop := storetest.NewEquipmentBuilder().WithCode("LAPTOP001").Create(t, f.store)
	a := storetest.NewPersonBuilder().WithBarcode("7001").Create(t, f.store)
	b := storetest.NewPersonBuilder().WithBarcode("7002").Create(t, f.store)

	reserved := f.scan(t, "LAPTOP001", a.ID)
	assert.Equal(t, ActionReserve, reserved.Action)
	assert.Equal(t, OutcomeAllowed, reserved.Outcome)

	taken := f.scan(t, "LAPTOP001", b.ID)
	assert.Equal(t, OutcomeDenied, taken.Outcome)
	assert.Equal(t, "Equipment is not available", taken.Message)

	released := f.scan(t, "LAPTOP001", a.ID)
	assert.Equal(t, ActionRelease, released.Action)

	current, err := f.store.Equipment().FindByID(context.Background(), laptop.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EquipmentAvailable, current.Status)

	status := f.scan(t, "LAPTOP001", "")
	assert.Equal(t, ActionLookup, status.Action)
}

func TestScanEquipment_PersonAlreadyInVisit(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	storetest.NewEquipmentBuilder().WithCode("LAPTOP001").Create(t, f.store)
	person := storetest.NewPersonBuilder().WithBarcode("8001").Create(t, f.store)
	f.scan(t, "8001", "")

	result := f.scan(t, "LAPTOP001", person.ID)
	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Equal(t, ActionReserve, result.Action)
}

func TestSubmit_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	f.audit.err = errors.New("audit db down")
	storetest.NewPersonBuilder().WithBarcode("2023001").Create(t, f.store)

	result := f.scan(t, "2023001", "")
	assert.Equal(t, OutcomeAllowed, result.Outcome)

	_, err := f.svc.Recent(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnavailable))
}

func TestSubmit_StoreFailureIsError(t *testing.T) {
	st := &storetest.Failing{Store: memstore.New(), FailPeople: true}
	log := logger.Nop()
	svc := NewScanService(st, identity.NewResolver(st, log), nil, nil, nil, nil, log, nil)

	_, err := svc.Submit(context.Background(), model.ScanRequest{Token: "2023001"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
}

func TestStatus(t *testing.T) {
	f := newFixture(t, guard.Policy{DuplicateWindow: 30 * time.Minute, CheckinCooldown: 30 * time.Minute})
	storetest.NewPersonBuilder().WithBarcode("2023001").WithName("Ada", "Lovelace").Create(t, f.store)

	status, err := f.svc.Status(context.Background(), "2023001")
	require.NoError(t, err)
	assert.False(t, status.IsCheckedIn)
	assert.True(t, status.CanCheckIn)

	f.scan(t, "2023001", "")
	status, err = f.svc.Status(context.Background(), "2023001")
	require.NoError(t, err)
	assert.True(t, status.IsCheckedIn)
	assert.False(t, status.CanCheckIn)
	require.NotNil(t, status.ActiveSession)

	f.clock.Advance(10 * time.Minute)
	f.scan(t, "2023001", "")
	f.clock.Advance(5 * time.Minute)
	status, err = f.svc.Status(context.Background(), "2023001")
	require.NoError(t, err)
	assert.False(t, status.CanCheckIn)
	assert.EqualValues(t, 25*60, status.CooldownRemainingSeconds)

	_, err = f.svc.Status(context.Background(), "9999999")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestStatistics_DefaultsToToday(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	storetest.NewPersonBuilder().WithBarcode("2023001").Create(t, f.store)
	f.scan(t, "2023001", "")

	stats, err := f.svc.Statistics(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC), stats.Since)
	assert.Equal(t, 1, stats.TotalCheckIns)
}

func TestRecent(t *testing.T) {
	f := newFixture(t, guard.Policy{})
	f.scan(t, "X1", "")
	f.scan(t, "X2", "")

	entries, err := f.svc.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "X2", entries[0].Token)
}

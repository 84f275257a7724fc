package storetest

import (
	"context"
	"errors"
	"time"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/model"
)

var ErrUnavailable = errors.New("store unavailable")

// Failing wraps a store and makes the selected collections fail every call
// with ErrUnavailable.
type Failing struct {
	store.Store

	FailPeople    bool
	FailSessions  bool
	FailCheckouts bool
}

func (f *Failing) People() store.People {
	if f.FailPeople {
		return failingPeople{}
	}
	return f.Store.People()
}

func (f *Failing) Sessions() store.Sessions {
	if f.FailSessions {
		return failingSessions{}
	}
	return f.Store.Sessions()
}

func (f *Failing) Checkouts() store.Checkouts {
	if f.FailCheckouts {
		return failingCheckouts{}
	}
	return f.Store.Checkouts()
}

type failingPeople struct{}

func (failingPeople) Create(context.Context, *model.Person) error { return ErrUnavailable }
func (failingPeople) FindByID(context.Context, string) (*model.Person, error) {
	return nil, ErrUnavailable
}
func (failingPeople) FindByBarcode(context.Context, string) (*model.Person, error) {
	return nil, ErrUnavailable
}

type failingSessions struct{}

func (failingSessions) Create(context.Context, *model.Session) error { return ErrUnavailable }
func (failingSessions) FindByID(context.Context, string) (*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) FindActiveByPerson(context.Context, string) (*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) FindActiveByResource(context.Context, string) (*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) FindLatestCompletedByPerson(context.Context, string) (*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) ListActive(context.Context, int, int64) ([]*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) CountActive(context.Context) (int64, error) { return 0, ErrUnavailable }
func (failingSessions) ListActiveExpiredAt(context.Context, time.Time) ([]*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) ListStartedSince(context.Context, time.Time) ([]*model.Session, error) {
	return nil, ErrUnavailable
}
func (failingSessions) Finish(context.Context, string, model.SessionStatus, time.Time, *int) (*model.Session, error) {
	return nil, ErrUnavailable
}

type failingCheckouts struct{}

func (failingCheckouts) Create(context.Context, *model.Checkout) error { return ErrUnavailable }
func (failingCheckouts) FindByID(context.Context, string) (*model.Checkout, error) {
	return nil, ErrUnavailable
}
func (failingCheckouts) FindOutstanding(context.Context, string, string) (*model.Checkout, error) {
	return nil, ErrUnavailable
}
func (failingCheckouts) ListByPerson(context.Context, string) ([]*model.Checkout, error) {
	return nil, ErrUnavailable
}
func (failingCheckouts) CountOutstandingByBook(context.Context, string) (int64, error) {
	return 0, ErrUnavailable
}
func (failingCheckouts) ListOverdue(context.Context, time.Time, int, int64) ([]*model.Checkout, error) {
	return nil, ErrUnavailable
}
func (failingCheckouts) CountOverdue(context.Context, time.Time) (int64, error) {
	return 0, ErrUnavailable
}
func (failingCheckouts) Close(context.Context, string, time.Time, int, int) (*model.Checkout, error) {
	return nil, ErrUnavailable
}
func (failingCheckouts) MarkOverdue(context.Context, time.Time) ([]*model.Checkout, error) {
	return nil, ErrUnavailable
}

// Package store defines the record store used by the presence and checkout
// services. Implementations must apply every conditional write atomically:
// the condition and the mutation are one operation, never a read followed by
// a write.
package store

import (
	"context"
	"errors"
	"time"

	"shelfwatch/pkg/model"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a write would break a uniqueness rule,
	// such as a second ACTIVE session for one person.
	ErrDuplicate = errors.New("duplicate record")

	// ErrPrecondition is returned when a conditional write found the record
	// in a state other than the one required.
	ErrPrecondition = errors.New("precondition failed")
)

// TxFunc runs inside a transaction. The context passed in must be used for
// every store call that belongs to the transaction.
type TxFunc func(ctx context.Context) error

type People interface {
	Create(ctx context.Context, p *model.Person) error
	FindByID(ctx context.Context, id string) (*model.Person, error)
	FindByBarcode(ctx context.Context, barcode string) (*model.Person, error)
}

type Books interface {
	Create(ctx context.Context, b *model.Book) error
	FindByID(ctx context.Context, id string) (*model.Book, error)
	FindByAccession(ctx context.Context, accession string) (*model.Book, error)
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)
	// AdjustAvailable adds delta to available_copies only if the result stays
	// within [0, total_copies]; otherwise ErrPrecondition.
	AdjustAvailable(ctx context.Context, id string, delta int) (*model.Book, error)
}

type Equipment interface {
	Create(ctx context.Context, e *model.Equipment) error
	FindByID(ctx context.Context, id string) (*model.Equipment, error)
	FindByCode(ctx context.Context, code string) (*model.Equipment, error)
	// TransitionStatus moves equipment from one status to another only if its
	// current status equals from; otherwise ErrPrecondition.
	TransitionStatus(ctx context.Context, id string, from, to model.EquipmentStatus) (*model.Equipment, error)
}

type Sessions interface {
	// Create fails with ErrDuplicate if the person, or the bound equipment,
	// already has an ACTIVE session.
	Create(ctx context.Context, s *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindActiveByPerson(ctx context.Context, personID string) (*model.Session, error)
	FindActiveByResource(ctx context.Context, resourceID string) (*model.Session, error)
	FindLatestCompletedByPerson(ctx context.Context, personID string) (*model.Session, error)
	ListActive(ctx context.Context, limit int, offset int64) ([]*model.Session, error)
	CountActive(ctx context.Context) (int64, error)
	ListActiveExpiredAt(ctx context.Context, at time.Time) ([]*model.Session, error)
	ListStartedSince(ctx context.Context, since time.Time) ([]*model.Session, error)
	// Finish moves an ACTIVE session to a terminal status; ErrPrecondition if
	// the session is not ACTIVE.
	Finish(ctx context.Context, id string, status model.SessionStatus, end time.Time, durationMinutes *int) (*model.Session, error)
}

type Checkouts interface {
	// Create fails with ErrDuplicate if the person already holds an
	// outstanding loan of the same book.
	Create(ctx context.Context, c *model.Checkout) error
	FindByID(ctx context.Context, id string) (*model.Checkout, error)
	FindOutstanding(ctx context.Context, personID, bookID string) (*model.Checkout, error)
	ListByPerson(ctx context.Context, personID string) ([]*model.Checkout, error)
	CountOutstandingByBook(ctx context.Context, bookID string) (int64, error)
	ListOverdue(ctx context.Context, at time.Time, limit int, offset int64) ([]*model.Checkout, error)
	CountOverdue(ctx context.Context, at time.Time) (int64, error)
	// Close returns an outstanding loan; ErrPrecondition if it is already returned.
	Close(ctx context.Context, id string, returnDate time.Time, daysOverdue, fineCents int) (*model.Checkout, error)
	// MarkOverdue flags ACTIVE loans whose due date is before at.
	MarkOverdue(ctx context.Context, at time.Time) ([]*model.Checkout, error)
}

type Store interface {
	People() People
	Books() Books
	Equipment() Equipment
	Sessions() Sessions
	Checkouts() Checkouts

	ExecuteTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}

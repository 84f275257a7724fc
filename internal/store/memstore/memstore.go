// Package memstore is an in-process implementation of store.Store. A single
// mutex serializes every operation; a transaction holds it for its whole
// duration and restores a snapshot when the function fails.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/model"
)

type txKey struct{}

type data struct {
	people    map[string]*model.Person
	books     map[string]*model.Book
	equipment map[string]*model.Equipment
	sessions  map[string]*model.Session
	checkouts map[string]*model.Checkout
}

type Store struct {
	mu   sync.Mutex
	data data
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: newData()}
}

func newData() data {
	return data{
		people:    make(map[string]*model.Person),
		books:     make(map[string]*model.Book),
		equipment: make(map[string]*model.Equipment),
		sessions:  make(map[string]*model.Session),
		checkouts: make(map[string]*model.Checkout),
	}
}

func (s *Store) People() store.People       { return peopleStore{s} }
func (s *Store) Books() store.Books         { return bookStore{s} }
func (s *Store) Equipment() store.Equipment { return equipmentStore{s} }
func (s *Store) Sessions() store.Sessions   { return sessionStore{s} }
func (s *Store) Checkouts() store.Checkouts { return checkoutStore{s} }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) ExecuteTransaction(ctx context.Context, fn store.TxFunc) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store mutex unless ctx belongs to a transaction that
// already holds it. The returned func releases whatever was acquired.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (d data) clone() data {
	c := newData()
	for k, v := range d.people {
		c.people[k] = clonePerson(v)
	}
	for k, v := range d.books {
		c.books[k] = cloneBook(v)
	}
	for k, v := range d.equipment {
		c.equipment[k] = cloneEquipment(v)
	}
	for k, v := range d.sessions {
		c.sessions[k] = cloneSession(v)
	}
	for k, v := range d.checkouts {
		c.checkouts[k] = cloneCheckout(v)
	}
	return c
}

func clonePerson(p *model.Person) *model.Person {
	c := *p
	return &c
}

func cloneBook(b *model.Book) *model.Book {
	c := *b
	return &c
}

func cloneEquipment(e *model.Equipment) *model.Equipment {
	c := *e
	return &c
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.DurationMinutes != nil {
		d := *s.DurationMinutes
		c.DurationMinutes = &d
	}
	return &c
}

func cloneCheckout(co *model.Checkout) *model.Checkout {
	c := *co
	if co.ReturnDate != nil {
		t := *co.ReturnDate
		c.ReturnDate = &t
	}
	return &c
}

func page[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func sortSessionsByStart(list []*model.Session) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
}

func latestEnd(s *model.Session) time.Time {
	if s.EndTime == nil {
		return time.Time{}
	}
	return *s.EndTime
}

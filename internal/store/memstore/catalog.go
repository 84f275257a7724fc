package memstore

import (
	"context"
	"fmt"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/model"
)

type peopleStore struct{ s *Store }

func (p peopleStore) Create(ctx context.Context, person *model.Person) error {
	defer p.s.lock(ctx)()

	if _, ok := p.s.data.people[person.ID]; ok {
		return fmt.Errorf("%w: person %s", store.ErrDuplicate, person.ID)
	}
	for _, existing := range p.s.data.people {
		if existing.Barcode == person.Barcode {
			return fmt.Errorf("%w: barcode %s", store.ErrDuplicate, person.Barcode)
		}
	}
	p.s.data.people[person.ID] = clonePerson(person)
	return nil
}

func (p peopleStore) FindByID(ctx context.Context, id string) (*model.Person, error) {
	defer p.s.lock(ctx)()

	if person, ok := p.s.data.people[id]; ok {
		return clonePerson(person), nil
	}
	return nil, fmt.Errorf("%w: person %s", store.ErrNotFound, id)
}

func (p peopleStore) FindByBarcode(ctx context.Context, barcode string) (*model.Person, error) {
	defer p.s.lock(ctx)()

	for _, person := range p.s.data.people {
		if person.Barcode == barcode {
			return clonePerson(person), nil
		}
	}
	return nil, fmt.Errorf("%w: person barcode %s", store.ErrNotFound, barcode)
}

type bookStore struct{ s *Store }

func (b bookStore) Create(ctx context.Context, book *model.Book) error {
	defer b.s.lock(ctx)()

	if _, ok := b.s.data.books[book.ID]; ok {
		return fmt.Errorf("%w: book %s", store.ErrDuplicate, book.ID)
	}
	for _, existing := range b.s.data.books {
		if existing.AccessionNumber == book.AccessionNumber {
			return fmt.Errorf("%w: accession %s", store.ErrDuplicate, book.AccessionNumber)
		}
	}
	b.s.data.books[book.ID] = cloneBook(book)
	return nil
}

func (b bookStore) FindByID(ctx context.Context, id string) (*model.Book, error) {
	defer b.s.lock(ctx)()

	if book, ok := b.s.data.books[id]; ok {
		return cloneBook(book), nil
	}
	return nil, fmt.Errorf("%w: book %s", store.ErrNotFound, id)
}

func (b bookStore) FindByAccession(ctx context.Context, accession string) (*model.Book, error) {
	defer b.s.lock(ctx)()

	for _, book := range b.s.data.books {
		if book.AccessionNumber == accession {
			return cloneBook(book), nil
		}
	}
	return nil, fmt.Errorf("%w: accession %s", store.ErrNotFound, accession)
}

func (b bookStore) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	defer b.s.lock(ctx)()

	for _, book := range b.s.data.books {
		if book.ISBN != "" && book.ISBN == isbn {
			return cloneBook(book), nil
		}
	}
	return nil, fmt.Errorf("%w: isbn %s", store.ErrNotFound, isbn)
}

func (b bookStore) AdjustAvailable(ctx context.Context, id string, delta int) (*model.Book, error) {
	defer b.s.lock(ctx)()

	book, ok := b.s.data.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: book %s", store.ErrNotFound, id)
	}
	next := book.AvailableCopies + delta
	if next < 0 || next > book.TotalCopies {
		return nil, fmt.Errorf("%w: book %s has %d of %d copies available", store.ErrPrecondition, id, book.AvailableCopies, book.TotalCopies)
	}
	book.AvailableCopies = next
	return cloneBook(book), nil
}

type equipmentStore struct{ s *Store }

func (e equipmentStore) Create(ctx context.Context, eq *model.Equipment) error {
	defer e.s.lock(ctx)()

	if _, ok := e.s.data.equipment[eq.ID]; ok {
		return fmt.Errorf("%w: equipment %s", store.ErrDuplicate, eq.ID)
	}
	for _, existing := range e.s.data.equipment {
		if existing.Code == eq.Code {
			return fmt.Errorf("%w: equipment code %s", store.ErrDuplicate, eq.Code)
		}
	}
	e.s.data.equipment[eq.ID] = cloneEquipment(eq)
	return nil
}

func (e equipmentStore) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	defer e.s.lock(ctx)()

	if eq, ok := e.s.data.equipment[id]; ok {
		return cloneEquipment(eq), nil
	}
	return nil, fmt.Errorf("%w: equipment %s", store.ErrNotFound, id)
}

func (e equipmentStore) FindByCode(ctx context.Context, code string) (*model.Equipment, error) {
	defer e.s.lock(ctx)()

	for _, eq := range e.s.data.equipment {
		if eq.Code == code {
			return cloneEquipment(eq), nil
		}
	}
	return nil, fmt.Errorf("%w: equipment code %s", store.ErrNotFound, code)
}

func (e equipmentStore) TransitionStatus(ctx context.Context, id string, from, to model.EquipmentStatus) (*model.Equipment, error) {
	defer e.s.lock(ctx)()

	eq, ok := e.s.data.equipment[id]
	if !ok {
		return nil, fmt.Errorf("%w: equipment %s", store.ErrNotFound, id)
	}
	if eq.Status != from {
		return nil, fmt.Errorf("%w: equipment %s is %s, not %s", store.ErrPrecondition, id, eq.Status, from)
	}
	eq.Status = to
	return cloneEquipment(eq), nil
}

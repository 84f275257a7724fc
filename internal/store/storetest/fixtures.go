// Package storetest holds record builders and store doubles shared by service
// tests.
package storetest

import (
	"context"
	"testing"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type PersonBuilder struct {
	p model.Person
}

func NewPersonBuilder() *PersonBuilder {
	return &PersonBuilder{
		p: model.Person{
			ID:        uuid.NewString(),
			Barcode:   "2023001",
			FirstName: "Test",
			LastName:  "Reader",
			Category:  model.CategoryJuniorHigh,
		},
	}
}

func (b *PersonBuilder) WithID(id string) *PersonBuilder {
	b.p.ID = id
	return b
}

func (b *PersonBuilder) WithBarcode(barcode string) *PersonBuilder {
	b.p.Barcode = barcode
	return b
}

func (b *PersonBuilder) WithCategory(category string) *PersonBuilder {
	b.p.Category = category
	return b
}

func (b *PersonBuilder) WithName(first, last string) *PersonBuilder {
	b.p.FirstName = first
	b.p.LastName = last
	return b
}

func (b *PersonBuilder) Build() *model.Person {
	p := b.p
	return &p
}

// Create builds the person and stores it.
func (b *PersonBuilder) Create(t *testing.T, st store.Store) *model.Person {
	t.Helper()
	p := b.Build()
	require.NoError(t, st.People().Create(context.Background(), p))
	return p
}

type BookBuilder struct {
	b model.Book
}

func NewBookBuilder() *BookBuilder {
	return &BookBuilder{
		b: model.Book{
			ID:              uuid.NewString(),
			AccessionNumber: "ACC001234",
			ISBN:            "9780306406157",
			Title:           "Test Book",
			TotalCopies:     2,
			AvailableCopies: 2,
		},
	}
}

func (b *BookBuilder) WithID(id string) *BookBuilder {
	b.b.ID = id
	return b
}

func (b *BookBuilder) WithAccession(accession string) *BookBuilder {
	b.b.AccessionNumber = accession
	return b
}

func (b *BookBuilder) WithISBN(isbn string) *BookBuilder {
	b.b.ISBN = isbn
	return b
}

func (b *BookBuilder) WithCopies(total, available int) *BookBuilder {
	b.b.TotalCopies = total
	b.b.AvailableCopies = available
	return b
}

func (b *BookBuilder) Build() *model.Book {
	book := b.b
	return &book
}

func (b *BookBuilder) Create(t *testing.T, st store.Store) *model.Book {
	t.Helper()
	book := b.Build()
	require.NoError(t, st.Books().Create(context.Background(), book))
	return book
}

type EquipmentBuilder struct {
	e model.Equipment
}

func NewEquipmentBuilder() *EquipmentBuilder {
	return &EquipmentBuilder{
		e: model.Equipment{
			ID:     uuid.NewString(),
			Code:   "LAPTOP001",
			Name:   "Laptop 1",
			Status: model.EquipmentAvailable,
		},
	}
}

func (b *EquipmentBuilder) WithID(id string) *EquipmentBuilder {
	b.e.ID = id
	return b
}

func (b *EquipmentBuilder) WithCode(code string) *EquipmentBuilder {
	b.e.Code = code
	return b
}

func (b *EquipmentBuilder) WithStatus(status model.EquipmentStatus) *EquipmentBuilder {
	b.e.Status = status
	return b
}

func (b *EquipmentBuilder) WithMaxMinutes(minutes int) *EquipmentBuilder {
	b.e.MaxMinutes = minutes
	return b
}

func (b *EquipmentBuilder) Build() *model.Equipment {
	e := b.e
	return &e
}

func (b *EquipmentBuilder) Create(t *testing.T, st store.Store) *model.Equipment {
	t.Helper()
	e := b.Build()
	require.NoError(t, st.Equipment().Create(context.Background(), e))
	return e
}

// Package identity classifies a scanned token as a person, a book, a piece of
// equipment, or nothing known.
package identity

import (
	"context"
	"errors"
	"fmt"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/sanitizer"
)

type TokenType string

const (
	TypePerson    TokenType = "PERSON"
	TypeBook      TokenType = "BOOK"
	TypeEquipment TokenType = "EQUIPMENT"
	TypeUnknown   TokenType = "UNKNOWN"
)

// Match is the closed set of resolution results: PersonMatch, BookMatch,
// EquipmentMatch and UnknownMatch.
type Match interface {
	Type() TokenType
	Token() string
	isMatch()
}

type PersonMatch struct {
	token  string
	Person *model.Person
}

type BookMatch struct {
	token string
	Book  *model.Book
}

type EquipmentMatch struct {
	token     string
	Equipment *model.Equipment
}

type UnknownMatch struct {
	token string
}

func (PersonMatch) Type() TokenType    { return TypePerson }
func (BookMatch) Type() TokenType      { return TypeBook }
func (EquipmentMatch) Type() TokenType { return TypeEquipment }
func (UnknownMatch) Type() TokenType   { return TypeUnknown }

func (m PersonMatch) Token() string    { return m.token }
func (m BookMatch) Token() string      { return m.token }
func (m EquipmentMatch) Token() string { return m.token }
func (m UnknownMatch) Token() string   { return m.token }

func (PersonMatch) isMatch()    {}
func (BookMatch) isMatch()      {}
func (EquipmentMatch) isMatch() {}
func (UnknownMatch) isMatch()   {}

type Resolver interface {
	// Resolve never reports absence as an error: an unrecognized token yields
	// UnknownMatch. Errors are store failures only.
	Resolve(ctx context.Context, token string) (Match, error)
}

type resolver struct {
	store store.Store
	log   *logger.Logger
}

func NewResolver(st store.Store, log *logger.Logger) Resolver {
	return &resolver{store: st, log: log}
}

// Resolve tries, in order and stopping at the first hit: person barcode
// (numeric tokens only), book accession number, book ISBN, equipment code.
func (r *resolver) Resolve(ctx context.Context, raw string) (Match, error) {
	token := sanitizer.SanitizeToken(raw)
	if token == "" {
		return UnknownMatch{token: token}, nil
	}

	if sanitizer.IsNumeric(token) {
		person, err := r.store.People().FindByBarcode(ctx, token)
		if err == nil {
			if err := r.attachActiveSession(ctx, person); err != nil {
				return nil, err
			}
			return PersonMatch{token: token, Person: person}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up person: %w", err)
		}
	}

	book, err := r.store.Books().FindByAccession(ctx, token)
	if err == nil {
		return BookMatch{token: token, Book: book}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up book by accession: %w", err)
	}

	if isbn := sanitizer.NormalizeISBN(token); isbn != "" {
		book, err := r.store.Books().FindByISBN(ctx, isbn)
		if err == nil {
			return BookMatch{token: token, Book: book}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up book by isbn: %w", err)
		}
	}

	equipment, err := r.store.Equipment().FindByCode(ctx, token)
	if err == nil {
		return EquipmentMatch{token: token, Equipment: equipment}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up equipment: %w", err)
	}

	r.log.Debug("Token not recognized", "token", token)
	return UnknownMatch{token: token}, nil
}

func (r *resolver) attachActiveSession(ctx context.Context, person *model.Person) error {
	session, err := r.store.Sessions().FindActiveByPerson(ctx, person.ID)
	switch {
	case err == nil:
		person.ActiveSessionID = session.ID
	case errors.Is(err, store.ErrNotFound):
		person.ActiveSessionID = ""
	default:
		return fmt.Errorf("failed to look up active session: %w", err)
	}
	return nil
}

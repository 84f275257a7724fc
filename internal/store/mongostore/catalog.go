package mongostore

import (
	"context"
	"fmt"

	"shelfwatch/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

type peopleRepository struct{ base }

func (r peopleRepository) Create(ctx context.Context, p *model.Person) error {
	return r.insert(ctx, p, "person")
}

func (r peopleRepository) FindByID(ctx context.Context, id string) (*model.Person, error) {
	return findOne[model.Person](ctx, r.base, bson.M{"_id": id}, "person "+id)
}

func (r peopleRepository) FindByBarcode(ctx context.Context, barcode string) (*model.Person, error) {
	return findOne[model.Person](ctx, r.base, bson.M{"barcode": barcode}, "person with barcode "+barcode)
}

type bookRepository struct{ base }

func (r bookRepository) Create(ctx context.Context, b *model.Book) error {
	return r.insert(ctx, b, "book")
}

func (r bookRepository) FindByID(ctx context.Context, id string) (*model.Book, error) {
	return findOne[model.Book](ctx, r.base, bson.M{"_id": id}, "book "+id)
}

func (r bookRepository) FindByAccession(ctx context.Context, accession string) (*model.Book, error) {
	return findOne[model.Book](ctx, r.base, bson.M{"accession_number": accession}, "book with accession "+accession)
}

func (r bookRepository) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	return findOne[model.Book](ctx, r.base, bson.M{"isbn": isbn}, "book with isbn "+isbn)
}

// AdjustAvailable evaluates the bounds against the stored document in the
// same operation as the increment.
func (r bookRepository) AdjustAvailable(ctx context.Context, id string, delta int) (*model.Book, error) {
	next := bson.M{"$add": bson.A{"$available_copies", delta}}
	filter := bson.M{
		"_id": id,
		"$expr": bson.M{"$and": bson.A{
			bson.M{"$gte": bson.A{next, 0}},
			bson.M{"$lte": bson.A{next, "$total_copies"}},
		}},
	}
	update := bson.M{"$inc": bson.M{"available_copies": delta}}

	return conditionalUpdate[model.Book](ctx, r.base, id, filter, update, fmt.Sprintf("book (delta %d)", delta))
}

type equipmentRepository struct{ base }

func (r equipmentRepository) Create(ctx context.Context, e *model.Equipment) error {
	return r.insert(ctx, e, "equipment")
}

func (r equipmentRepository) FindByID(ctx context.Context, id string) (*model.Equipment, error) {
	return findOne[model.Equipment](ctx, r.base, bson.M{"_id": id}, "equipment "+id)
}

func (r equipmentRepository) FindByCode(ctx context.Context, code string) (*model.Equipment, error) {
	return findOne[model.Equipment](ctx, r.base, bson.M{"code": code}, "equipment with code "+code)
}

func (r equipmentRepository) TransitionStatus(ctx context.Context, id string, from, to model.EquipmentStatus) (*model.Equipment, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to}}

	return conditionalUpdate[model.Equipment](ctx, r.base, id, filter, update, "equipment")
}

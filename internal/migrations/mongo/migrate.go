package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"shelfwatch/internal/migrations/mongo/validators"
	"shelfwatch/internal/store/mongostore"
)

var (
	PeopleIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "barcode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_barcode"),
		},
	}

	BooksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "accession_number", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_accession"),
		},
		{
			Keys:    bson.D{{Key: "isbn", Value: 1}},
			Options: options.Index().SetName("isbn"),
		},
	}

	EquipmentIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_code"),
		},
	}

	// The two partial unique indexes are what make session creation a
	// conditional write: a second ACTIVE session for the same person, or for
	// the same piece of equipment, fails with a duplicate key error.
	SessionsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "person_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_active_person").
				SetPartialFilterExpression(bson.M{"status": "ACTIVE"}),
		},
		{
			Keys: bson.D{{Key: "resource_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_active_resource").
				SetPartialFilterExpression(bson.M{"status": "ACTIVE", "kind": "RESOURCE"}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_time", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expected_end_time", Value: 1}}},
		{Keys: bson.D{{Key: "person_id", Value: 1}, {Key: "status", Value: 1}, {Key: "end_time", Value: -1}}},
		{Keys: bson.D{{Key: "start_time", Value: 1}}},
	}

	CheckoutsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "person_id", Value: 1}, {Key: "book_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_outstanding_loan").
				SetPartialFilterExpression(bson.M{"outstanding": true}),
		},
		{Keys: bson.D{{Key: "person_id", Value: 1}, {Key: "checkout_date", Value: -1}}},
		{Keys: bson.D{{Key: "book_id", Value: 1}, {Key: "outstanding", Value: 1}}},
		{Keys: bson.D{{Key: "outstanding", Value: 1}, {Key: "due_date", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running shelfwatch Mongo migrations on database: %s\n", dbName)

	collections := []struct {
		Name      string
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		{mongostore.PeopleCollection, PeopleIndexes, validators.PersonValidator},
		{mongostore.BooksCollection, BooksIndexes, validators.BookValidator},
		{mongostore.EquipmentCollection, EquipmentIndexes, validators.EquipmentValidator},
		{mongostore.SessionsCollection, SessionsIndexes, validators.SessionValidator},
		{mongostore.CheckoutsCollection, CheckoutsIndexes, validators.CheckoutValidator},
	}

	for _, def := range collections {
		if err := ensureCollection(ctx, db, def.Name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	fmt.Println("✅ All Mongo migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
	} else {
		fmt.Printf("ℹ️ Collection %s already exists, updating validator if needed\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}

// Package mongostore implements store.Store on MongoDB. Uniqueness rules are
// backed by the partial unique indexes created by cmd/migrate; conditional
// writes use filtered FindOneAndUpdate so the check and the write are one
// server-side operation. Multi-document transactions need a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/config"
	mongotx "shelfwatch/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PeopleCollection    = "People"
	BooksCollection     = "Books"
	EquipmentCollection = "Equipment"
	SessionsCollection  = "Sessions"
	CheckoutsCollection = "Checkouts"
)

type Store struct {
	client    *mongo.Client
	db        *mongo.Database
	txManager mongotx.TransactionManager

	people    peopleRepository
	books     bookRepository
	equipment equipmentRepository
	sessions  sessionRepository
	checkouts checkoutRepository
}

var _ store.Store = (*Store)(nil)

func NewFromConfig(cfg *config.Config) *Store {
	return New(cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.ReadTimeout, cfg.WriteTimeout)
}

func New(client *mongo.Client, dbName string, readTimeout, writeTimeout time.Duration) *Store {
	db := client.Database(dbName)
	collection := func(name string) base {
		return base{
			coll:         db.Collection(name),
			readTimeout:  readTimeout,
			writeTimeout: writeTimeout,
		}
	}

	s := &Store{
		client:    client,
		db:        db,
		txManager: mongotx.NewTransactionManager(client),
		people:    peopleRepository{collection(PeopleCollection)},
		books:     bookRepository{collection(BooksCollection)},
		equipment: equipmentRepository{collection(EquipmentCollection)},
		sessions:  sessionRepository{collection(SessionsCollection)},
	}
	s.checkouts = checkoutRepository{base: collection(CheckoutsCollection), tx: s.txManager}
	return s
}

func (s *Store) People() store.People       { return s.people }
func (s *Store) Books() store.Books         { return s.books }
func (s *Store) Equipment() store.Equipment { return s.equipment }
func (s *Store) Sessions() store.Sessions   { return s.sessions }
func (s *Store) Checkouts() store.Checkouts { return s.checkouts }

func (s *Store) ExecuteTransaction(ctx context.Context, fn store.TxFunc) error {
	return s.txManager.ExecuteTransaction(ctx, mongotx.TransactionFunc(fn))
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

type base struct {
	coll         *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// Inside a transaction the session context is returned unchanged with a no-op
// cancel so the session binding is not lost.
func (b base) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InTransaction(ctx) {
		return ctx, func() {}
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, timeout)
}

func (b base) insert(ctx context.Context, doc any, what string) error {
	ctx, cancel := b.withTimeout(ctx, b.writeTimeout)
	defer cancel()

	if _, err := b.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s: %v", store.ErrDuplicate, what, err)
		}
		return fmt.Errorf("failed to create %s: %w", what, err)
	}
	return nil
}

// conditionalUpdate applies update to the document matching filter and
// returns it post-update. When nothing matches, the _id alone decides
// between ErrNotFound and ErrPrecondition.
func conditionalUpdate[T any](ctx context.Context, b base, id string, filter bson.M, update bson.M, what string) (*T, error) {
	ctx, cancel := b.withTimeout(ctx, b.writeTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out T
	err := b.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update %s %s: %w", what, id, err)
	}

	n, countErr := b.coll.CountDocuments(ctx, bson.M{"_id": id})
	if countErr != nil {
		return nil, fmt.Errorf("failed to check %s %s: %w", what, id, countErr)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, what, id)
	}
	return nil, fmt.Errorf("%w: %s %s", store.ErrPrecondition, what, id)
}

func findOne[T any](ctx context.Context, b base, filter bson.M, what string, opts ...*options.FindOneOptions) (*T, error) {
	ctx, cancel := b.withTimeout(ctx, b.readTimeout)
	defer cancel()

	var out T
	if err := b.coll.FindOne(ctx, filter, opts...).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, what)
		}
		return nil, fmt.Errorf("failed to find %s: %w", what, err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, b base, filter bson.M, what string, opts ...*options.FindOptions) ([]*T, error) {
	ctx, cancel := b.withTimeout(ctx, b.readTimeout)
	defer cancel()

	cursor, err := b.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	out := []*T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}
	return out, nil
}

func count(ctx context.Context, b base, filter bson.M, what string) (int64, error) {
	ctx, cancel := b.withTimeout(ctx, b.readTimeout)
	defer cancel()

	n, err := b.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

func pageOptions(limit int, offset int64) *options.FindOptions {
	opts := options.Find().SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

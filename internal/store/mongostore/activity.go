package mongostore

import (
	"context"
	"fmt"
	"time"

	"shelfwatch/pkg/db/mongo"
	"shelfwatch/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionRepository struct{ base }

func (r sessionRepository) Create(ctx context.Context, s *model.Session) error {
	return r.insert(ctx, s, "session")
}

func (r sessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return findOne[model.Session](ctx, r.base, bson.M{"_id": id}, "session "+id)
}

func (r sessionRepository) FindActiveByPerson(ctx context.Context, personID string) (*model.Session, error) {
	filter := bson.M{"person_id": personID, "status": model.SessionActive}
	return findOne[model.Session](ctx, r.base, filter, "active session for person "+personID)
}

func (r sessionRepository) FindActiveByResource(ctx context.Context, resourceID string) (*model.Session, error) {
	filter := bson.M{"resource_id": resourceID, "status": model.SessionActive}
	return findOne[model.Session](ctx, r.base, filter, "active session for resource "+resourceID)
}

func (r sessionRepository) FindLatestCompletedByPerson(ctx context.Context, personID string) (*model.Session, error) {
	filter := bson.M{"person_id": personID, "status": model.SessionCompleted}
	opts := options.FindOne().SetSort(bson.D{{Key: "end_time", Value: -1}})
	return findOne[model.Session](ctx, r.base, filter, "completed session for person "+personID, opts)
}

func (r sessionRepository) ListActive(ctx context.Context, limit int, offset int64) ([]*model.Session, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[model.Session](ctx, r.base, bson.M{"status": model.SessionActive}, "active sessions", opts)
}

func (r sessionRepository) CountActive(ctx context.Context) (int64, error) {
	return count(ctx, r.base, bson.M{"status": model.SessionActive}, "active sessions")
}

func (r sessionRepository) ListActiveExpiredAt(ctx context.Context, at time.Time) ([]*model.Session, error) {
	filter := bson.M{
		"status":            model.SessionActive,
		"expected_end_time": bson.M{"$lte": at},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	return findAll[model.Session](ctx, r.base, filter, "expired sessions", opts)
}

func (r sessionRepository) ListStartedSince(ctx context.Context, since time.Time) ([]*model.Session, error) {
	filter := bson.M{"start_time": bson.M{"$gte": since}}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	return findAll[model.Session](ctx, r.base, filter, "sessions", opts)
}

func (r sessionRepository) Finish(ctx context.Context, id string, status model.SessionStatus, end time.Time, durationMinutes *int) (*model.Session, error) {
	set := bson.M{"status": status, "end_time": end}
	if durationMinutes != nil {
		set["duration_minutes"] = *durationMinutes
	}
	filter := bson.M{"_id": id, "status": model.SessionActive}

	return conditionalUpdate[model.Session](ctx, r.base, id, filter, bson.M{"$set": set}, "session")
}

type checkoutRepository struct {
	base
	tx mongo.TransactionManager
}

func (r checkoutRepository) Create(ctx context.Context, c *model.Checkout) error {
	c.Outstanding = c.IsOutstanding()
	return r.insert(ctx, c, "checkout")
}

func (r checkoutRepository) FindByID(ctx context.Context, id string) (*model.Checkout, error) {
	return findOne[model.Checkout](ctx, r.base, bson.M{"_id": id}, "checkout "+id)
}

func (r checkoutRepository) FindOutstanding(ctx context.Context, personID, bookID string) (*model.Checkout, error) {
	filter := bson.M{"person_id": personID, "book_id": bookID, "outstanding": true}
	return findOne[model.Checkout](ctx, r.base, filter, fmt.Sprintf("outstanding checkout of %s by %s", bookID, personID))
}

func (r checkoutRepository) ListByPerson(ctx context.Context, personID string) ([]*model.Checkout, error) {
	opts := options.Find().SetSort(bson.D{{Key: "checkout_date", Value: -1}})
	return findAll[model.Checkout](ctx, r.base, bson.M{"person_id": personID}, "checkouts", opts)
}

func (r checkoutRepository) CountOutstandingByBook(ctx context.Context, bookID string) (int64, error) {
	return count(ctx, r.base, bson.M{"book_id": bookID, "outstanding": true}, "outstanding checkouts")
}

func overdueFilter(at time.Time) bson.M {
	return bson.M{"outstanding": true, "due_date": bson.M{"$lt": at}}
}

func (r checkoutRepository) ListOverdue(ctx context.Context, at time.Time, limit int, offset int64) ([]*model.Checkout, error) {
	opts := pageOptions(limit, offset).SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "_id", Value: 1}})
	return findAll[model.Checkout](ctx, r.base, overdueFilter(at), "overdue checkouts", opts)
}

func (r checkoutRepository) CountOverdue(ctx context.Context, at time.Time) (int64, error) {
	return count(ctx, r.base, overdueFilter(at), "overdue checkouts")
}

func (r checkoutRepository) Close(ctx context.Context, id string, returnDate time.Time, daysOverdue, fineCents int) (*model.Checkout, error) {
	filter := bson.M{"_id": id, "outstanding": true}
	update := bson.M{"$set": bson.M{
		"status":        model.CheckoutReturned,
		"outstanding":   false,
		"return_date":   returnDate,
		"days_overdue":  daysOverdue,
		"fine_cents":    fineCents,
		"fine_eligible": daysOverdue > 0,
	}}

	return conditionalUpdate[model.Checkout](ctx, r.base, id, filter, update, "checkout")
}

// MarkOverdue selects and flips the loans in one transaction so the returned
// list is exactly what was updated.
func (r checkoutRepository) MarkOverdue(ctx context.Context, at time.Time) ([]*model.Checkout, error) {
	var marked []*model.Checkout

	err := r.tx.ExecuteTransaction(ctx, func(ctx context.Context) error {
		filter := bson.M{"status": model.CheckoutActive, "due_date": bson.M{"$lt": at}}
		opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}})

		found, err := findAll[model.Checkout](ctx, r.base, filter, "due checkouts", opts)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			marked = found
			return nil
		}

		ids := make(bson.A, 0, len(found))
		for _, c := range found {
			ids = append(ids, c.ID)
		}

		wctx, cancel := r.withTimeout(ctx, r.writeTimeout)
		defer cancel()

		_, err = r.coll.UpdateMany(wctx,
			bson.M{"_id": bson.M{"$in": ids}, "status": model.CheckoutActive},
			bson.M{"$set": bson.M{"status": model.CheckoutOverdue}},
		)
		if err != nil {
			return fmt.Errorf("failed to mark checkouts overdue: %w", err)
		}

		for _, c := range found {
			c.Status = model.CheckoutOverdue
		}
		marked = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

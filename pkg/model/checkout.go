package model

import "time"

type CheckoutStatus string

const (
	CheckoutActive   CheckoutStatus = "ACTIVE"
	CheckoutReturned CheckoutStatus = "RETURNED"
	CheckoutOverdue  CheckoutStatus = "OVERDUE"
)

// Checkout is a book loan. A loan holds a copy while it is ACTIVE or OVERDUE.
type Checkout struct {
	ID           string         `json:"id" bson:"_id"`
	PersonID     string         `json:"person_id" bson:"person_id"`
	BookID       string         `json:"book_id" bson:"book_id"`
	CheckoutDate time.Time      `json:"checkout_date" bson:"checkout_date"`
	DueDate      time.Time      `json:"due_date" bson:"due_date"`
	ReturnDate   *time.Time     `json:"return_date,omitempty" bson:"return_date,omitempty"`
	Status       CheckoutStatus `json:"status" bson:"status"`
	Outstanding  bool           `json:"-" bson:"outstanding"`
	FineEligible bool           `json:"fine_eligible" bson:"fine_eligible"`
	DaysOverdue  int            `json:"days_overdue,omitempty" bson:"days_overdue,omitempty"`
	FineCents    int            `json:"fine_cents,omitempty" bson:"fine_cents,omitempty"`
}

func (c *Checkout) IsOutstanding() bool {
	return c.Status == CheckoutActive || c.Status == CheckoutOverdue
}

// DaysOverdueAt counts started days past the due date.
func DaysOverdueAt(due, at time.Time) int {
	if !at.After(due) {
		return 0
	}
	late := at.Sub(due)
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) != 0 {
		days++
	}
	return days
}

package model

import "strings"

const (
	CategoryPrimary    = "PRIMARY"
	CategoryElementary = "ELEMENTARY"
	CategoryJuniorHigh = "JUNIOR_HIGH"
	CategorySeniorHigh = "SENIOR_HIGH"
	CategoryStaff      = "STAFF"
)

// Person is a library patron identified by a scanned barcode. ActiveSessionID
// is filled in on read from the person's ACTIVE session and is never stored.
type Person struct {
	ID              string `json:"id" bson:"_id"`
	Barcode         string `json:"barcode" bson:"barcode" validate:"required,numeric,min=4,max=32"`
	FirstName       string `json:"first_name" bson:"first_name" validate:"required,max=100"`
	LastName        string `json:"last_name" bson:"last_name" validate:"required,max=100"`
	Category        string `json:"category" bson:"category" validate:"required,max=40"`
	ActiveSessionID string `json:"active_session_id,omitempty" bson:"-"`
}

func (p *Person) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

package model

type EquipmentStatus string

const (
	EquipmentAvailable   EquipmentStatus = "AVAILABLE"
	EquipmentInUse       EquipmentStatus = "IN_USE"
	EquipmentMaintenance EquipmentStatus = "MAINTENANCE"
)

// Book is a counted resource: AvailableCopies stays within [0, TotalCopies]
// and only moves together with a Checkout record.
type Book struct {
	ID              string `json:"id" bson:"_id"`
	AccessionNumber string `json:"accession_number" bson:"accession_number" validate:"required,max=40"`
	ISBN            string `json:"isbn,omitempty" bson:"isbn,omitempty" validate:"omitempty,isbn"`
	Title           string `json:"title" bson:"title" validate:"required,max=300"`
	TotalCopies     int    `json:"total_copies" bson:"total_copies" validate:"min=0"`
	AvailableCopies int    `json:"available_copies" bson:"available_copies" validate:"min=0,ltefield=TotalCopies"`
}

// Equipment is a single-unit resource held exclusively by one session while IN_USE.
type Equipment struct {
	ID         string          `json:"id" bson:"_id"`
	Code       string          `json:"code" bson:"code" validate:"required,max=40"`
	Name       string          `json:"name" bson:"name" validate:"required,max=200"`
	Status     EquipmentStatus `json:"status" bson:"status" validate:"required,oneof=AVAILABLE IN_USE MAINTENANCE"`
	MaxMinutes int             `json:"max_minutes,omitempty" bson:"max_minutes,omitempty" validate:"min=0"`
}

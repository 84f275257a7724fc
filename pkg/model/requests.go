package model

import "time"

type ScanRequest struct {
	Token    string `json:"token" validate:"required,max=64,scan_token"`
	PersonID string `json:"person_id,omitempty" validate:"omitempty,max=64"`
	Station  string `json:"station,omitempty" validate:"omitempty,max=64"`
}

type StartSessionRequest struct {
	PersonID string `json:"person_id" validate:"required,max=64"`
}

type ReserveRequest struct {
	EquipmentID string `json:"equipment_id" validate:"required,max=64"`
	PersonID    string `json:"person_id" validate:"required,max=64"`
}

type CheckoutRequest struct {
	BookID   string     `json:"book_id" validate:"required,max=64"`
	PersonID string     `json:"person_id" validate:"required,max=64"`
	DueDate  *time.Time `json:"due_date,omitempty" validate:"omitempty"`
}

// SubscriptionMessage is a client frame on the real-time channel.
type SubscriptionMessage struct {
	Op         string `json:"op" validate:"required,oneof=auth subscribe unsubscribe ping"`
	Token      string `json:"token,omitempty" validate:"required_if=Op auth,max=4096"`
	ResourceID string `json:"resource_id,omitempty" validate:"omitempty,max=64"`
}

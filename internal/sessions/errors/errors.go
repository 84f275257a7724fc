package errors

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotActive is returned when ending or cancelling a session that
	// is already COMPLETED or CANCELLED. Callers should treat it as handled.
	ErrSessionNotActive = errors.New("session is not active")

	ErrActiveSessionExists = errors.New("person already has an active session")

	ErrPersonNotFound = errors.New("person not found")

	ErrDuplicateScan = errors.New("scan repeats a recent action")

	ErrCooldown = errors.New("check-in cooldown active")
)

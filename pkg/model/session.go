package model

import "time"

type SessionKind string

const (
	SessionVisit    SessionKind = "VISIT"
	SessionResource SessionKind = "RESOURCE"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Session records a person's presence in the library, optionally bound to a
// piece of equipment. ExpectedEndTime is informational only.
type Session struct {
	ID               string        `json:"id" bson:"_id"`
	PersonID         string        `json:"person_id" bson:"person_id"`
	Kind             SessionKind   `json:"kind" bson:"kind"`
	ResourceID       string        `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
	StartTime        time.Time     `json:"start_time" bson:"start_time"`
	EndTime          *time.Time    `json:"end_time,omitempty" bson:"end_time,omitempty"`
	ExpectedEndTime  time.Time     `json:"expected_end_time" bson:"expected_end_time"`
	TimeLimitMinutes int           `json:"time_limit_minutes" bson:"time_limit_minutes"`
	Status           SessionStatus `json:"status" bson:"status"`
	DurationMinutes  *int          `json:"duration_minutes,omitempty" bson:"duration_minutes,omitempty"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

func (s *Session) IsEquipmentBound() bool {
	return s.Kind == SessionResource && s.ResourceID != ""
}

// DurationMinutesBetween floors the elapsed time to whole minutes.
func DurationMinutesBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

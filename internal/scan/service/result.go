package service

import (
	"errors"

	"shelfwatch/internal/identity"
	sessionserrors "shelfwatch/internal/sessions/errors"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/model"
)

type Outcome string

const (
	OutcomeAllowed   Outcome = "ALLOWED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeCooldown  Outcome = "COOLDOWN"
	OutcomeDenied    Outcome = "DENIED"
)

type Action string

const (
	ActionCheckIn  Action = "CHECK_IN"
	ActionCheckOut Action = "CHECK_OUT"
	ActionBorrow   Action = "BORROW"
	ActionReturn   Action = "RETURN"
	ActionReserve  Action = "RESERVE"
	ActionRelease  Action = "RELEASE"
	ActionLookup   Action = "LOOKUP"
)

// Result is the answer to one scan. Business rejections are results, not
// errors: every rejected scan carries a human-readable Message.
type Result struct {
	Type             identity.TokenType `json:"type"`
	Outcome          Outcome            `json:"outcome"`
	Action           Action             `json:"action,omitempty"`
	Message          string             `json:"message"`
	RemainingSeconds int64              `json:"remaining_seconds,omitempty"`
	Data             any                `json:"data"`

	personID   string
	resourceID string
}

func (r *Result) Allowed() bool {
	return r.Outcome == OutcomeAllowed
}

type PersonStatus struct {
	Person                   *model.Person  `json:"person"`
	IsCheckedIn              bool           `json:"is_checked_in"`
	CanCheckIn               bool           `json:"can_check_in"`
	ActiveSession            *model.Session `json:"active_session,omitempty"`
	CooldownRemainingSeconds int64          `json:"cooldown_remaining_seconds,omitempty"`
	Message                  string         `json:"message,omitempty"`
}

// rejection turns an expected business error into a scan result. It reports
// false for anything else, which the caller returns as an error.
func rejection(tokenType identity.TokenType, action Action, err error) (*Result, bool) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return nil, false
	}

	result := &Result{Type: tokenType, Action: action, Message: appErr.Message}
	switch appErr.Code {
	case apperrors.CodePolicyBlocked:
		result.Outcome = OutcomeCooldown
		if remaining, ok := appErr.Details[apperrors.DetailRemainingSeconds].(int64); ok {
			result.RemainingSeconds = remaining
		}
	case apperrors.CodeConflict:
		result.Outcome = OutcomeDenied
		if errors.Is(err, sessionserrors.ErrDuplicateScan) || errors.Is(err, sessionserrors.ErrActiveSessionExists) {
			result.Outcome = OutcomeDuplicate
		}
	case apperrors.CodeNotFound, apperrors.CodeInvalidInput, apperrors.CodeValidation:
		result.Outcome = OutcomeDenied
	default:
		return nil, false
	}
	return result, true
}

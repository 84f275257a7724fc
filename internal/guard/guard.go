// Package guard decides whether a presence scan repeats a recent action or
// falls inside the check-in cooldown. It only reads session history.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfwatch/internal/store"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
)

type Attempt string

const (
	AttemptCheckIn  Attempt = "CHECK_IN"
	AttemptCheckOut Attempt = "CHECK_OUT"
)

type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionDuplicate Decision = "DUPLICATE"
	DecisionCooldown  Decision = "COOLDOWN"
)

type Verdict struct {
	Decision  Decision
	Remaining time.Duration
	Reason    string
	// Session is the session the verdict refers to: the ACTIVE one for a
	// duplicate check-in, the last completed one otherwise.
	Session *model.Session
}

func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// RemainingSeconds rounds up so a positive wait never shows as zero.
func (v Verdict) RemainingSeconds() int64 {
	if v.Remaining <= 0 {
		return 0
	}
	secs := int64(v.Remaining / time.Second)
	if v.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

type Policy struct {
	DuplicateWindow time.Duration
	CheckinCooldown time.Duration
}

type Guard interface {
	Check(ctx context.Context, person *model.Person, attempt Attempt) Verdict
}

type guard struct {
	sessions func() store.Sessions
	policy   Policy
	log      *logger.Logger
	now      func() time.Time
}

func NewGuard(st store.Store, policy Policy, log *logger.Logger, now func() time.Time) Guard {
	if now == nil {
		now = time.Now
	}
	return &guard{
		sessions: st.Sessions,
		policy:   policy,
		log:      log,
		now:      now,
	}
}

// Check never fails: a store error allows the attempt and is logged.
func (g *guard) Check(ctx context.Context, person *model.Person, attempt Attempt) Verdict {
	now := g.now()

	switch attempt {
	case AttemptCheckIn:
		return g.checkIn(ctx, person, now)
	case AttemptCheckOut:
		return g.checkOut(ctx, person, now)
	default:
		return allow()
	}
}

func (g *guard) checkIn(ctx context.Context, person *model.Person, now time.Time) Verdict {
	active, err := g.sessions().FindActiveByPerson(ctx, person.ID)
	switch {
	case err == nil:
		since := now.Sub(active.StartTime)
		if since < g.policy.DuplicateWindow {
			return Verdict{
				Decision: DecisionDuplicate,
				Reason: fmt.Sprintf("%s is already checked in (%s). Scan again to check out.",
					person.DisplayName(), formatAgo(since)),
				Session: active,
			}
		}
		return allow()
	case !errors.Is(err, store.ErrNotFound):
		return g.failOpen(person, AttemptCheckIn, err)
	}

	if g.policy.CheckinCooldown <= 0 {
		return allow()
	}

	last, err := g.sessions().FindLatestCompletedByPerson(ctx, person.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return allow()
	case err != nil:
		return g.failOpen(person, AttemptCheckIn, err)
	case last.EndTime == nil:
		return allow()
	}

	remaining := g.policy.CheckinCooldown - now.Sub(*last.EndTime)
	if remaining <= 0 {
		return allow()
	}
	return Verdict{
		Decision:  DecisionCooldown,
		Remaining: remaining,
		Reason:    fmt.Sprintf("Please wait %s before checking in again", formatWait(remaining)),
		Session:   last,
	}
}

func (g *guard) checkOut(ctx context.Context, person *model.Person, now time.Time) Verdict {
	_, err := g.sessions().FindActiveByPerson(ctx, person.ID)
	switch {
	case err == nil:
		return allow()
	case !errors.Is(err, store.ErrNotFound):
		return g.failOpen(person, AttemptCheckOut, err)
	}

	last, err := g.sessions().FindLatestCompletedByPerson(ctx, person.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return allow()
	case err != nil:
		return g.failOpen(person, AttemptCheckOut, err)
	case last.EndTime == nil:
		return allow()
	}

	since := now.Sub(*last.EndTime)
	if since < g.policy.DuplicateWindow {
		return Verdict{
			Decision: DecisionDuplicate,
			Reason:   fmt.Sprintf("%s already checked out %s", person.DisplayName(), formatAgo(since)),
			Session:  last,
		}
	}
	return allow()
}

func (g *guard) failOpen(person *model.Person, attempt Attempt, err error) Verdict {
	g.log.Warn("Guard lookup failed, allowing scan",
		"person_id", person.ID,
		"attempt", attempt,
		"error", err,
	)
	return allow()
}

func allow() Verdict {
	return Verdict{Decision: DecisionAllow}
}

// formatWait renders a positive wait in whole minutes, rounded up.
func formatWait(d time.Duration) string {
	minutes := int(d / time.Minute)
	if d%time.Minute != 0 {
		minutes++
	}
	if minutes == 1 {
		return "1 more minute"
	}
	return fmt.Sprintf("%d more minutes", minutes)
}

func formatAgo(d time.Duration) string {
	minutes := int(d / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes == 1:
		return "1 minute ago"
	default:
		return fmt.Sprintf("%d minutes ago", minutes)
	}
}

// Package ratelimit implements the anti-spam policy for automatic alerts:
// a cooldown window between dispatches combined with a per-day quota.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultCooldown   = 5 * time.Hour
	DefaultDailyQuota = 3
	DefaultTimezone   = "Asia/Manila"

	// DateLayout is the layout of the persisted count date.
	DateLayout = "2006-01-02"
)

// Verdict is the outcome of a rate limit check.
type Verdict int

const (
	Allowed Verdict = iota
	RejectedCooldown
	RejectedQuota
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case RejectedCooldown:
		return "cooldown"
	case RejectedQuota:
		return "quota"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// ErrRejected is returned when a reservation is refused by the policy.
var ErrRejected = errors.New("rate limited")

// RejectedError carries the decision that caused a rejection.
type RejectedError struct {
	Decision Decision
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Decision.Verdict)
}

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectedError) Unwrap() error { return ErrRejected }

// IsRejected reports whether err is a policy rejection, returning its decision.
func IsRejected(err error) (Decision, bool) {
	var r *RejectedError
	if errors.As(err, &r) {
		return r.Decision, true
	}
	return Decision{}, false
}

// Counters are the per-device fields the policy reads and maintains.
type Counters struct {
	LastSent time.Time
	// CountToday is only meaningful when CountDate is today.
	CountToday int
	CountDate  string
}

// Decision explains a Check.
type Decision struct {
	Verdict Verdict
	// Effective is the number of dispatches already made today.
	Effective int
	// NextAllowed is when the cooldown ends, zero when no dispatch was ever made.
	NextAllowed time.Time
}

func (d Decision) Allowed() bool { return d.Verdict == Allowed }

// Policy combines a cooldown window with a daily quota.
// The calendar day is evaluated in Location.
type Policy struct {
	Cooldown   time.Duration
	DailyQuota int
	Location   *time.Location
}

// NewPolicy returns a policy for the named IANA time zone.
func NewPolicy(cooldown time.Duration, quota int, timezone string) (Policy, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Policy{}, errors.Wrapf(err, "invalid timezone %q", timezone)
	}
	p := Policy{
		Cooldown:   cooldown,
		DailyQuota: quota,
		Location:   loc,
	}
	return p, p.Validate()
}

func (p Policy) Validate() error {
	if p.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	if p.DailyQuota < 1 {
		return fmt.Errorf("daily quota must be at least 1, got %d", p.DailyQuota)
	}
	if p.Location == nil {
		return errors.New("must specify a location")
	}
	return nil
}

// Today returns the calendar date of now in the policy zone.
func (p Policy) Today(now time.Time) string {
	return now.In(p.Location).Format(DateLayout)
}

// Effective returns the number of dispatches already counted for today.
// A count stored for any other day is treated as zero.
func (p Policy) Effective(c Counters, now time.Time) int {
	if c.CountDate != p.Today(now) {
		return 0
	}
	return c.CountToday
}

// Check evaluates the policy. Cooldown is checked before the quota.
func (p Policy) Check(c Counters, now time.Time) Decision {
	d := Decision{
		Verdict:   Allowed,
		Effective: p.Effective(c, now),
	}
	if !c.LastSent.IsZero() {
		d.NextAllowed = c.LastSent.Add(p.Cooldown)
		if now.Sub(c.LastSent) < p.Cooldown {
			d.Verdict = RejectedCooldown
			return d
		}
	}
	if d.Effective >= p.DailyQuota {
		d.Verdict = RejectedQuota
	}
	return d
}

// Next returns the counters after a dispatch accepted at now.
func (p Policy) Next(c Counters, now time.Time) Counters {
	return Counters{
		LastSent:   now,
		CountToday: p.Effective(c, now) + 1,
		CountDate:  p.Today(now),
	}
}

// Reserve checks c and, when allowed, returns the updated counters.
// A rejection is reported as a *RejectedError.
func (p Policy) Reserve(c Counters, now time.Time) (Counters, Decision, error) {
	d := p.Check(c, now)
	if !d.Allowed() {
		return c, d, &RejectedError{Decision: d}
	}
	return p.Next(c, now), d, nil
}

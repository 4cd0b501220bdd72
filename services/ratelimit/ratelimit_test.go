package ratelimit_test

import (
	"testing"
	"time"

	"github.com/Dyllj/flood-monitoring-system-sub000/services/ratelimit"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPolicy(t *testing.T) ratelimit.Policy {
	t.Helper()
	p, err := ratelimit.NewPolicy(ratelimit.DefaultCooldown, ratelimit.DefaultDailyQuota, ratelimit.DefaultTimezone)
	require.NoError(t, err)
	return p
}

func TestPolicy_Today(t *testing.T) {
	p := newPolicy(t)
	// 17:00 UTC is already the next day in Manila (UTC+8).
	now := time.Date(2024, 7, 1, 17, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-07-02", p.Today(now))
	assert.Equal(t, "2024-07-01", p.Today(now.Add(-2*time.Hour)))
}

func TestPolicy_NewDayResetsCount(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 7, 2, 4, 0, 0, 0, time.UTC)
	c := ratelimit.Counters{
		LastSent:   now.Add(-12 * time.Hour),
		CountToday: 3,
		CountDate:  p.Today(now.Add(-24 * time.Hour)),
	}

	d := p.Check(c, now)
	assert.Equal(t, ratelimit.Allowed, d.Verdict)
	assert.Equal(t, 0, d.Effective)

	next := p.Next(c, now)
	exp := ratelimit.Counters{
		LastSent:   now,
		CountToday: 1,
		CountDate:  p.Today(now),
	}
	if !cmp.Equal(exp, next) {
		t.Errorf("unexpected counters -exp/+got:\n%s", cmp.Diff(exp, next))
	}
}

func TestPolicy_QuotaIndependentOfCooldown(t *testing.T) {
	// Zero cooldown so that only the quota can reject.
	p := newPolicy(t)
	p.Cooldown = 0

	now := time.Date(2024, 7, 1, 0, 30, 0, 0, time.UTC)
	var c ratelimit.Counters
	for i := 0; i < 3; i++ {
		var err error
		c, _, err = p.Reserve(c, now)
		require.NoError(t, err, "dispatch %d", i+1)
		now = now.Add(time.Hour)
	}
	assert.Equal(t, 3, c.CountToday)

	_, d, err := p.Reserve(c, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ratelimit.ErrRejected))
	assert.Equal(t, ratelimit.RejectedQuota, d.Verdict)
	assert.Equal(t, 3, d.Effective)
}

func TestPolicy_FourthDispatchSameDayWithDefaultCooldown(t *testing.T) {
	p := newPolicy(t)
	// 00:00 Manila, leaving room for three dispatches five hours apart.
	now := time.Date(2024, 6, 30, 16, 0, 0, 0, time.UTC)
	var c ratelimit.Counters
	for i := 0; i < 3; i++ {
		var err error
		c, _, err = p.Reserve(c, now)
		require.NoError(t, err)
		now = now.Add(p.Cooldown)
	}
	require.Equal(t, p.Today(c.LastSent), p.Today(now), "test must stay within one day")

	d := p.Check(c, now)
	assert.Equal(t, ratelimit.RejectedQuota, d.Verdict)
}

func TestPolicy_CooldownIndependentOfQuota(t *testing.T) {
	p := newPolicy(t)
	p.DailyQuota = 1000

	now := time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)
	c, _, err := p.Reserve(ratelimit.Counters{}, now)
	require.NoError(t, err)

	// Same instant.
	_, d, err := p.Reserve(c, now)
	require.Error(t, err)
	assert.Equal(t, ratelimit.RejectedCooldown, d.Verdict)
	assert.Equal(t, 1, d.Effective)
	assert.True(t, d.NextAllowed.Equal(now.Add(p.Cooldown)))

	got, ok := ratelimit.IsRejected(errors.Wrap(err, "reserve"))
	require.True(t, ok)
	assert.Equal(t, ratelimit.RejectedCooldown, got.Verdict)
}

func TestPolicy_CooldownBoundary(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)

	c := ratelimit.Counters{LastSent: now.Add(-p.Cooldown + time.Millisecond)}
	assert.Equal(t, ratelimit.RejectedCooldown, p.Check(c, now).Verdict)

	c = ratelimit.Counters{LastSent: now.Add(-p.Cooldown)}
	assert.Equal(t, ratelimit.Allowed, p.Check(c, now).Verdict)
}

func TestPolicy_CooldownCheckedFirst(t *testing.T) {
	p := newPolicy(t)
	now := time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC)
	c := ratelimit.Counters{
		LastSent:   now.Add(-time.Minute),
		CountToday: 3,
		CountDate:  p.Today(now),
	}
	assert.Equal(t, ratelimit.RejectedCooldown, p.Check(c, now).Verdict)
}

func TestNewPolicy_Invalid(t *testing.T) {
	_, err := ratelimit.NewPolicy(time.Hour, 3, "Not/AZone")
	assert.Error(t, err)
	_, err = ratelimit.NewPolicy(time.Hour, 0, "UTC")
	assert.Error(t, err)
	_, err = ratelimit.NewPolicy(-time.Hour, 3, "UTC")
	assert.Error(t, err)
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "allowed", ratelimit.Allowed.String())
	assert.Equal(t, "cooldown", ratelimit.RejectedCooldown.String())
	assert.Equal(t, "quota", ratelimit.RejectedQuota.String())
}

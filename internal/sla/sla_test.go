package sla

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestComputeDueBy(t *testing.T) {
	due, err := ComputeDueBy(t0, 24)
	require.NoError(t, err)
	require.Equal(t, t0.Add(24*time.Hour), due)

	due, err = ComputeDueBy(t0, 0.5)
	require.NoError(t, err)
	require.Equal(t, t0.Add(30*time.Minute), due)

	for _, bad := range []float64{0, -1} {
		_, err := ComputeDueBy(t0, bad)
		require.True(t, errors.Is(err, ErrInvalidSLAHours))
	}
}

func TestProgressHalfway(t *testing.T) {
	p := CalculateProgress(t0, t0.Add(24*time.Hour), t0.Add(12*time.Hour))
	require.InDelta(t, 50, p.Percentage, 0.0001)
	require.InDelta(t, 12, p.HoursRemaining, 0.0001)
	require.False(t, p.IsBreached)
}

func TestProgressAfterDeadline(t *testing.T) {
	p := CalculateProgress(t0, t0.Add(24*time.Hour), t0.Add(30*time.Hour))
	require.Equal(t, 100.0, p.Percentage)
	require.Equal(t, 0.0, p.HoursRemaining)
	require.True(t, p.IsBreached)
}

func TestProgressWithoutDeadline(t *testing.T) {
	p := CalculateProgress(t0, time.Time{}, t0.Add(100*time.Hour))
	require.Equal(t, Progress{Percentage: 0, HoursRemaining: 0, IsBreached: false}, p)
}

func TestProgressBeforeCreationClampsToZero(t *testing.T) {
	p := CalculateProgress(t0, t0.Add(24*time.Hour), t0.Add(-time.Hour))
	require.Equal(t, 0.0, p.Percentage)
	require.InDelta(t, 25, p.HoursRemaining, 0.0001)
	require.False(t, p.IsBreached)
}

func TestProgressDegenerateWindow(t *testing.T) {
	for _, due := range []time.Time{t0, t0.Add(-time.Hour)} {
		p := CalculateProgress(t0, due, t0.Add(time.Minute))
		require.Equal(t, Progress{Percentage: 100, HoursRemaining: 0, IsBreached: true}, p)
	}
}

func TestProgressAtExactDeadlineIsNotBreached(t *testing.T) {
	p := CalculateProgress(t0, t0.Add(24*time.Hour), t0.Add(24*time.Hour))
	require.Equal(t, 100.0, p.Percentage)
	require.False(t, p.IsBreached)
}

func TestProgressIsIdempotent(t *testing.T) {
	due := t0.Add(24 * time.Hour)
	now := t0.Add(7 * time.Hour)
	require.Equal(t, CalculateProgress(t0, due, now), CalculateProgress(t0, due, now))
}

func TestEndToEndScenario(t *testing.T) {
	due, err := ComputeDueBy(t0, 24)
	require.NoError(t, err)

	at20h := CalculateProgress(t0, due, time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC))
	require.InDelta(t, 83.333, at20h.Percentage, 0.01)
	require.False(t, at20h.IsBreached)
	require.Equal(t, HealthAtRisk, Classify(at20h))
	require.Equal(t, UrgencyHigh, UrgencyOf(at20h))

	next := CalculateProgress(t0, due, time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC))
	require.True(t, next.IsBreached)
	require.Equal(t, 100.0, next.Percentage)
	require.Equal(t, HealthBreached, Classify(next))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "30 minutes", FormatDuration(0.5))
	require.Equal(t, "5 hours", FormatDuration(5))
	require.Equal(t, "2 days", FormatDuration(48))
	require.Equal(t, "0 minutes", FormatDuration(0))
	require.Equal(t, "24 hours", FormatDuration(23.6))
	require.Equal(t, "3 days", FormatDuration(60))
}

func TestClassifyAndUrgency(t *testing.T) {
	require.Equal(t, HealthOnTrack, Classify(Progress{Percentage: 75}))
	require.Equal(t, HealthAtRisk, Classify(Progress{Percentage: 75.1}))
	require.Equal(t, HealthBreached, Classify(Progress{Percentage: 100, IsBreached: true}))

	require.Equal(t, UrgencyLow, UrgencyOf(Progress{Percentage: 50}))
	require.Equal(t, UrgencyMedium, UrgencyOf(Progress{Percentage: 51}))
	require.Equal(t, UrgencyHigh, UrgencyOf(Progress{Percentage: 81}))
	require.Equal(t, UrgencyCritical, UrgencyOf(Progress{IsBreached: true}))

	_, ok := ParseHealth("late")
	require.False(t, ok)
	h, ok := ParseHealth("at_risk")
	require.True(t, ok)
	require.Equal(t, HealthAtRisk, h)
}

// Package sla computes deadline progress and breach state for time-boxed
// requests. Functions never read the clock; callers pass now explicitly.
package sla

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSLAHours is returned for non-positive SLA windows.
var ErrInvalidSLAHours = errors.New("sla: sla hours must be positive")

// Progress summarises elapsed time against a deadline.
type Progress struct {
	Percentage     float64 `json:"percentage"`
	HoursRemaining float64 `json:"hours_remaining"`
	IsBreached     bool    `json:"is_breached"`
}

// Window converts SLA hours into a duration.
func Window(slaHours float64) (time.Duration, error) {
	if slaHours <= 0 || math.IsNaN(slaHours) || math.IsInf(slaHours, 0) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidSLAHours, slaHours)
	}
	return time.Duration(slaHours * float64(time.Hour)), nil
}

// ComputeDueBy returns createdAt + slaHours.
func ComputeDueBy(createdAt time.Time, slaHours float64) (time.Time, error) {
	window, err := Window(slaHours)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.Add(window), nil
}

// CalculateProgress reports progress of now within [createdAt, dueBy].
// A zero dueBy means the request carries no deadline. A non-positive window
// is treated as already breached.
func CalculateProgress(createdAt, dueBy, now time.Time) Progress {
	if dueBy.IsZero() {
		return Progress{}
	}
	total := dueBy.Sub(createdAt)
	if total <= 0 {
		return Progress{Percentage: 100, HoursRemaining: 0, IsBreached: true}
	}
	elapsed := now.Sub(createdAt)
	remaining := dueBy.Sub(now)

	pct := float64(elapsed) / float64(total) * 100
	pct = math.Max(0, math.Min(100, pct))

	hours := 0.0
	if remaining > 0 {
		hours = remaining.Hours()
	}
	return Progress{
		Percentage:     pct,
		HoursRemaining: hours,
		IsBreached:     now.After(dueBy),
	}
}

// FormatDuration renders hours as rounded minutes, hours or days.
func FormatDuration(hours float64) string {
	switch {
	case hours < 1:
		return fmt.Sprintf("%d minutes", int64(math.Round(hours*60)))
	case hours < 24:
		return fmt.Sprintf("%d hours", int64(math.Round(hours)))
	default:
		return fmt.Sprintf("%d days", int64(math.Round(hours/24)))
	}
}

// Health buckets a request for queue filtering.
type Health string

const (
	HealthOnTrack  Health = "on_track"
	HealthAtRisk   Health = "at_risk"
	HealthBreached Health = "breached"
)

// AtRiskThreshold is the percentage above which an open request is at risk.
const AtRiskThreshold = 75.0

// Classify maps progress onto a Health bucket.
func Classify(p Progress) Health {
	switch {
	case p.IsBreached:
		return HealthBreached
	case p.Percentage > AtRiskThreshold:
		return HealthAtRisk
	default:
		return HealthOnTrack
	}
}

// ParseHealth validates a health filter value.
func ParseHealth(raw string) (Health, bool) {
	switch h := Health(raw); h {
	case HealthOnTrack, HealthAtRisk, HealthBreached:
		return h, true
	}
	return "", false
}

// Urgency is the display severity of a request's SLA.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// UrgencyOf grades progress: breached, over 80%, over 50%, otherwise low.
func UrgencyOf(p Progress) Urgency {
	switch {
	case p.IsBreached:
		return UrgencyCritical
	case p.Percentage > 80:
		return UrgencyHigh
	case p.Percentage > 50:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

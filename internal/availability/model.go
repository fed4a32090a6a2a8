// Package availability manages per-doctor working slots: recurring weekly
// windows plus one-off date overrides, and answers whether a doctor is
// available at a given instant.
package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Weekday is the canonical lowercase day-of-week used by recurring slots
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// ParseWeekday validates a day-of-week string
func ParseWeekday(s string) (Weekday, error) {
	switch Weekday(strings.ToLower(s)) {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return Weekday(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("invalid day of week %q", s)
}

// Time maps the canonical weekday to time.Weekday
func (w Weekday) Time() time.Weekday {
	switch w {
	case Monday:
		return time.Monday
	case Tuesday:
		return time.Tuesday
	case Wednesday:
		return time.Wednesday
	case Thursday:
		return time.Thursday
	case Friday:
		return time.Friday
	case Saturday:
		return time.Saturday
	default:
		return time.Sunday
	}
}

// ISODow returns the ISO 8601 day number, monday=1 through sunday=7.
// Matches Postgres EXTRACT(ISODOW ...).
func (w Weekday) ISODow() int {
	return (int(w.Time())+6)%7 + 1
}

// WeekdayOf maps an instant to its canonical weekday
func WeekdayOf(t time.Time) Weekday {
	switch t.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// Slot is a doctor's working window: either recurring (DayOfWeek set) or a
// one-off override (Date set). Invariant: StartTime < EndTime.
type Slot struct {
	ID        types.ID        `json:"id"`
	DoctorID  types.ID        `json:"doctor_id"`
	DayOfWeek *Weekday        `json:"day_of_week,omitempty"`
	Date      *time.Time      `json:"date,omitempty"`
	StartTime types.TimeOfDay `json:"start_time"`
	EndTime   types.TimeOfDay `json:"end_time"`
	IsActive  bool            `json:"is_active"`
	Notes     string          `json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AppliesOn reports whether the slot is in effect on the given calendar day.
// A date override applies only on its date; a recurring slot applies on its
// weekday.
func (s Slot) AppliesOn(day time.Time) bool {
	if s.Date != nil {
		return s.Date.Year() == day.Year() && s.Date.YearDay() == day.YearDay()
	}
	if s.DayOfWeek != nil {
		return *s.DayOfWeek == WeekdayOf(day)
	}
	return false
}

// CoversInclusive reports whether a wall-clock time falls inside the slot
// using the historical inclusive-both-ends comparison: a request landing
// exactly on EndTime still counts as covered. This is the behavior the
// booking path relies on.
func (s Slot) CoversInclusive(t types.TimeOfDay) bool {
	return s.StartTime <= t && t <= s.EndTime
}

// Covers is the end-exclusive variant of CoversInclusive. It is not used by
// the booking path; it exists so the boundary policy can be switched (and
// tested) in one place.
func (s Slot) Covers(t types.TimeOfDay) bool {
	return s.StartTime <= t && t < s.EndTime
}

// CreateSlotRequest is the request to create a slot
type CreateSlotRequest struct {
	DoctorID  types.ID `json:"doctor_id,omitempty"`
	DayOfWeek string   `json:"day_of_week,omitempty"`
	Date      string   `json:"date,omitempty"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Notes     string   `json:"notes,omitempty"`
}

// UpdateSlotRequest is the request to update a slot
type UpdateSlotRequest struct {
	DayOfWeek *string `json:"day_of_week,omitempty"`
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// ListSlotsFilter narrows a slot listing
type ListSlotsFilter struct {
	Date       *time.Time
	DayOfWeek  *Weekday
	ActiveOnly bool
}

// OpenWindow is one bookable window in the slot search response
type OpenWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DoctorWindows groups a doctor's open windows for a day
type DoctorWindows struct {
	DoctorID   types.ID     `json:"doctor_id"`
	DoctorName string       `json:"doctor_name"`
	Windows    []OpenWindow `json:"windows"`
}

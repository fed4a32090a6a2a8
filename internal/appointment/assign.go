package appointment

import (
	"context"
	"sort"
	"time"

	"github.com/meridian-health/platform/internal/availability"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/metrics"
	"github.com/meridian-health/platform/internal/shared/types"
)

// DoctorSource lists assignment candidates
type DoctorSource interface {
	ListDoctors(ctx context.Context, filter directory.ListDoctorsFilter) ([]directory.User, error)
}

// AvailabilityChecker answers slot-coverage questions for the engine and
// the booking validation path. Implemented by availability.Service.
type AvailabilityChecker interface {
	IsDoctorAvailableAt(ctx context.Context, doctorID types.ID, instant time.Time) (bool, error)
	WeeklySlots(ctx context.Context, doctorID types.ID) ([]availability.Slot, error)
}

// ConflictCounter counts a doctor's overlapping pending/confirmed
// appointments. Implemented by Repository.
type ConflictCounter interface {
	CountConflicts(ctx context.Context, doctorID types.ID, start, end time.Time) (int, error)
}

// assignRequest is the engine's view of one booking
type assignRequest struct {
	service   *directory.Service
	start     time.Time
	end       time.Time
	seniority auth.Seniority
	urgent    bool
}

// assignStage narrows the candidate pool. A stage that would empty the
// pool returns its input unchanged when its filter is best-effort, so the
// fallback policy is explicit per stage rather than buried in
// conditionals.
type assignStage func(ctx context.Context, req assignRequest, pool []directory.User) ([]directory.User, error)

// Assigner picks a doctor for bookings that do not name one
type Assigner struct {
	doctors     DoctorSource
	avail       AvailabilityChecker
	conflicts   ConflictCounter
	horizonDays int
}

// NewAssigner creates a new assignment engine. horizonDays bounds the
// nearest-future suggestion search.
func NewAssigner(doctors DoctorSource, avail AvailabilityChecker, conflicts ConflictCounter, horizonDays int) *Assigner {
	return &Assigner{doctors: doctors, avail: avail, conflicts: conflicts, horizonDays: horizonDays}
}

// Assign runs the filter pipeline and returns the chosen doctor, or a
// nearest-future suggestion when no candidate is conflict-free. Both may
// be nil when no doctors exist at all.
func (a *Assigner) Assign(ctx context.Context, req assignRequest) (*directory.User, *Suggestion, error) {
	pool, err := a.doctors.ListDoctors(ctx, directory.ListDoctorsFilter{ActiveOnly: true})
	if err != nil {
		return nil, nil, err
	}
	if len(pool) == 0 {
		metrics.RecordAutoAssignment("no_candidates")
		return nil, nil, nil
	}

	// Candidates before the zero-conflict stage feed the suggestion
	// search if that stage empties the pool.
	stages := []assignStage{a.departmentStage, a.seniorityStage, a.availabilityStage}
	for _, stage := range stages {
		if pool, err = stage(ctx, req, pool); err != nil {
			return nil, nil, err
		}
	}
	viable := pool

	if pool, err = a.zeroConflictStage(ctx, req, pool); err != nil {
		return nil, nil, err
	}

	if len(pool) == 0 {
		suggestion, err := a.suggestNearest(ctx, req, viable)
		if err != nil {
			return nil, nil, err
		}
		metrics.RecordAutoAssignment("suggestion")
		return nil, suggestion, nil
	}

	chosen := pickBySeniority(pool)
	metrics.RecordAutoAssignment("assigned")
	return &chosen, nil, nil
}

// departmentStage narrows to the service's department. A department with
// no doctors configured falls back to the full pool rather than leaving
// the patient with zero candidates.
func (a *Assigner) departmentStage(_ context.Context, req assignRequest, pool []directory.User) ([]directory.User, error) {
	if req.service == nil || req.service.DepartmentID.IsZero() {
		return pool, nil
	}

	var narrowed []directory.User
	for _, doc := range pool {
		if doc.DepartmentID != nil && *doc.DepartmentID == req.service.DepartmentID {
			narrowed = append(narrowed, doc)
		}
	}

	if len(narrowed) == 0 {
		return pool, nil
	}
	return narrowed, nil
}

// seniorityStage applies the explicit seniority preference, or the
// chief/senior bias for urgent bookings with no explicit preference.
// Falls back to the unfiltered pool when the filter would empty it.
func (a *Assigner) seniorityStage(_ context.Context, req assignRequest, pool []directory.User) ([]directory.User, error) {
	keep := func(doc directory.User) bool { return true }

	switch {
	case req.seniority != "" && req.seniority != auth.SeniorityAny:
		keep = func(doc directory.User) bool { return doc.Seniority == req.seniority }
	case req.urgent:
		keep = func(doc directory.User) bool {
			return doc.Seniority == auth.SeniorityChief || doc.Seniority == auth.SenioritySenior
		}
	default:
		return pool, nil
	}

	var narrowed []directory.User
	for _, doc := range pool {
		if keep(doc) {
			narrowed = append(narrowed, doc)
		}
	}

	if len(narrowed) == 0 {
		return pool, nil
	}
	return narrowed, nil
}

// availabilityStage keeps candidates whose slots cover the requested
// instant. Skipped entirely when it would empty the pool, degrading
// gracefully instead of failing the booking.
func (a *Assigner) availabilityStage(ctx context.Context, req assignRequest, pool []directory.User) ([]directory.User, error) {
	var narrowed []directory.User
	for _, doc := range pool {
		available, err := a.avail.IsDoctorAvailableAt(ctx, doc.ID, req.start)
		if err != nil {
			return nil, err
		}
		if available {
			narrowed = append(narrowed, doc)
		}
	}

	if len(narrowed) == 0 {
		return pool, nil
	}
	return narrowed, nil
}

// zeroConflictStage keeps only candidates with no overlapping
// pending/confirmed appointment. No fallback: an empty result routes the
// booking to the suggestion path.
func (a *Assigner) zeroConflictStage(ctx context.Context, req assignRequest, pool []directory.User) ([]directory.User, error) {
	var narrowed []directory.User
	for _, doc := range pool {
		count, err := a.conflicts.CountConflicts(ctx, doc.ID, req.start, req.end)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			narrowed = append(narrowed, doc)
		}
	}
	return narrowed, nil
}

// pickBySeniority ranks candidates chief first and picks the top one.
// Ties break on ID so the choice is stable.
func pickBySeniority(pool []directory.User) directory.User {
	ranked := make([]directory.User, len(pool))
	copy(ranked, pool)
	sort.Slice(ranked, func(i, j int) bool {
		ri, rj := ranked[i].Seniority.Rank(), ranked[j].Seniority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked[0]
}

// suggestNearest projects each candidate's weekly slots forward from the
// requested instant and returns the earliest conflict-free opening within
// the horizon, or nil when none exists.
func (a *Assigner) suggestNearest(ctx context.Context, req assignRequest, pool []directory.User) (*Suggestion, error) {
	duration := req.end.Sub(req.start)
	horizon := req.start.AddDate(0, 0, a.horizonDays)

	var best *Suggestion
	for _, doc := range pool {
		slots, err := a.avail.WeeklySlots(ctx, doc.ID)
		if err != nil {
			return nil, err
		}

		for _, slot := range slots {
			start, ok := nextSlotOccurrence(slot, req.start)
			if !ok {
				continue
			}
			end := start.Add(duration)

			if start.After(horizon) {
				continue
			}
			// The whole visit has to fit inside the slot window.
			// Compared as instants: a visit running past midnight
			// never fits, even though its end time-of-day wraps to
			// a small minute count.
			if end.After(slot.EndTime.On(start)) {
				continue
			}

			count, err := a.conflicts.CountConflicts(ctx, doc.ID, start, end)
			if err != nil {
				return nil, err
			}
			if count > 0 {
				continue
			}

			if best == nil || start.Before(best.StartTime) {
				best = &Suggestion{
					DoctorID:   doc.ID,
					DoctorName: doc.FullName(),
					StartTime:  start,
					EndTime:    end,
				}
			}
		}
	}

	return best, nil
}

// nextSlotOccurrence finds the first instant on or after `from` at which
// the recurring slot opens. A slot whose start time-of-day has already
// passed today wraps to next week.
func nextSlotOccurrence(slot availability.Slot, from time.Time) (time.Time, bool) {
	if slot.DayOfWeek == nil {
		return time.Time{}, false
	}

	target := slot.DayOfWeek.Time()
	daysAhead := (int(target) - int(from.Weekday()) + 7) % 7

	candidate := slot.StartTime.On(from.AddDate(0, 0, daysAhead))
	if candidate.Before(from) {
		candidate = candidate.AddDate(0, 0, 7)
	}

	return candidate, true
}

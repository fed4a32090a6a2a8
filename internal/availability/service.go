package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/auth"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/interval"
	"github.com/meridian-health/platform/internal/shared/types"
)

// SlotStore is the persistence surface the service needs
type SlotStore interface {
	Create(ctx context.Context, slot *Slot) error
	Get(ctx context.Context, id types.ID) (*Slot, error)
	Update(ctx context.Context, slot *Slot) error
	Delete(ctx context.Context, id types.ID) error
	ListForDoctor(ctx context.Context, doctorID types.ID, filter ListSlotsFilter) ([]Slot, error)
}

// BusyInterval is an occupied window on a doctor's calendar
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// BusyLookup answers which windows a doctor already has booked
// (pending/confirmed appointments). Implemented by the appointment
// repository.
type BusyLookup interface {
	ListBusyIntervals(ctx context.Context, doctorID types.ID, from, to time.Time) ([]BusyInterval, error)
}

// DoctorDirectory lists candidate doctors for the open-window search
type DoctorDirectory interface {
	ListDoctors(ctx context.Context, filter directory.ListDoctorsFilter) ([]directory.User, error)
	GetDoctor(ctx context.Context, id types.ID) (*directory.User, error)
}

// Service implements slot management and availability checks
type Service struct {
	store   SlotStore
	doctors DoctorDirectory
	busy    BusyLookup
}

// NewService creates a new availability service
func NewService(store SlotStore, doctors DoctorDirectory, busy BusyLookup) *Service {
	return &Service{store: store, doctors: doctors, busy: busy}
}

// ListSlots lists a doctor's active slots, ordered by start time
func (s *Service) ListSlots(ctx context.Context, doctorID types.ID, filter ListSlotsFilter) ([]Slot, error) {
	filter.ActiveOnly = true
	return s.store.ListForDoctor(ctx, doctorID, filter)
}

// CreateSlot validates and persists a new slot for the owning doctor.
// Only the owning doctor or an admin may create a slot; an overlap with
// another active slot on the same day is a Conflict.
func (s *Service) CreateSlot(ctx context.Context, user *auth.User, req CreateSlotRequest) (*Slot, error) {
	doctorID := req.DoctorID
	if doctorID.IsZero() && user.Role == auth.RoleDoctor {
		doctorID = user.ID
	}
	if doctorID.IsZero() {
		return nil, errors.BadRequest("doctor_id is required")
	}

	if err := authorizeSlotAccess(user, doctorID); err != nil {
		return nil, err
	}

	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	slot := &Slot{
		ID:       types.NewID(),
		DoctorID: doctorID,
		IsActive: true,
		Notes:    req.Notes,
	}

	if err := applySlotFields(slot, req.DayOfWeek, req.Date, req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	if err := s.checkSlotOverlap(ctx, slot, ""); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, slot); err != nil {
		return nil, err
	}

	return slot, nil
}

// UpdateSlot applies partial changes to an existing slot
func (s *Service) UpdateSlot(ctx context.Context, user *auth.User, id types.ID, req UpdateSlotRequest) (*Slot, error) {
	slot, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := authorizeSlotAccess(user, slot.DoctorID); err != nil {
		return nil, err
	}

	day := ""
	if req.DayOfWeek != nil {
		day = *req.DayOfWeek
	}
	date := ""
	if req.Date != nil {
		date = *req.Date
	}
	start := slot.StartTime.String()
	if req.StartTime != nil {
		start = *req.StartTime
	}
	end := slot.EndTime.String()
	if req.EndTime != nil {
		end = *req.EndTime
	}

	if day != "" || date != "" {
		slot.DayOfWeek = nil
		slot.Date = nil
	}
	if err := applySlotFields(slot, day, date, start, end); err != nil {
		return nil, err
	}
	if slot.DayOfWeek == nil && slot.Date == nil {
		return nil, errors.BadRequest("slot needs a day_of_week or a date")
	}

	if req.IsActive != nil {
		slot.IsActive = *req.IsActive
	}
	if req.Notes != nil {
		slot.Notes = *req.Notes
	}

	if slot.IsActive {
		if err := s.checkSlotOverlap(ctx, slot, slot.ID); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, slot); err != nil {
		return nil, err
	}

	return slot, nil
}

// DeleteSlot removes a slot
func (s *Service) DeleteSlot(ctx context.Context, user *auth.User, id types.ID) error {
	slot, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := authorizeSlotAccess(user, slot.DoctorID); err != nil {
		return err
	}

	return s.store.Delete(ctx, id)
}

// IsDoctorAvailableAt reports whether any active slot covers the instant,
// using the inclusive boundary policy of Slot.CoversInclusive.
func (s *Service) IsDoctorAvailableAt(ctx context.Context, doctorID types.ID, instant time.Time) (bool, error) {
	day := instant
	slots, err := s.store.ListForDoctor(ctx, doctorID, ListSlotsFilter{Date: &day, ActiveOnly: true})
	if err != nil {
		return false, err
	}

	tod := types.TimeOfDayFrom(instant)
	for _, slot := range slots {
		if slot.AppliesOn(day) && slot.CoversInclusive(tod) {
			return true, nil
		}
	}
	return false, nil
}

// WeeklySlots returns the doctor's active recurring slots, used by the
// assignment engine to project a nearest-availability suggestion.
func (s *Service) WeeklySlots(ctx context.Context, doctorID types.ID) ([]Slot, error) {
	slots, err := s.store.ListForDoctor(ctx, doctorID, ListSlotsFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	weekly := slots[:0]
	for _, slot := range slots {
		if slot.DayOfWeek != nil {
			weekly = append(weekly, slot)
		}
	}
	return weekly, nil
}

// OpenWindows computes bookable windows of the given granularity for every
// matching doctor on a calendar day, subtracting booked appointments.
func (s *Service) OpenWindows(ctx context.Context, day time.Time, departmentID, doctorID *types.ID, granularity time.Duration) ([]DoctorWindows, error) {
	var candidates []directory.User

	if doctorID != nil {
		doctor, err := s.doctors.GetDoctor(ctx, *doctorID)
		if err != nil {
			return nil, err
		}
		candidates = []directory.User{*doctor}
	} else {
		var err error
		candidates, err = s.doctors.ListDoctors(ctx, directory.ListDoctorsFilter{
			DepartmentID: departmentID,
			ActiveOnly:   true,
		})
		if err != nil {
			return nil, err
		}
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var results []DoctorWindows
	for _, doctor := range candidates {
		slots, err := s.store.ListForDoctor(ctx, doctor.ID, ListSlotsFilter{Date: &day, ActiveOnly: true})
		if err != nil {
			return nil, err
		}

		busy, err := s.busy.ListBusyIntervals(ctx, doctor.ID, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}

		windows := openWindowsForDay(slots, busy, day, granularity)
		if len(windows) > 0 {
			results = append(results, DoctorWindows{
				DoctorID:   doctor.ID,
				DoctorName: doctor.FullName(),
				Windows:    windows,
			})
		}
	}

	return results, nil
}

// openWindowsForDay steps through each applicable slot and keeps the
// granules that do not overlap an existing appointment.
func openWindowsForDay(slots []Slot, busy []BusyInterval, day time.Time, granularity time.Duration) []OpenWindow {
	var windows []OpenWindow

	for _, slot := range slots {
		if !slot.AppliesOn(day) {
			continue
		}

		slotStart := slot.StartTime.On(day)
		slotEnd := slot.EndTime.On(day)

		for cur := slotStart; !cur.Add(granularity).After(slotEnd); cur = cur.Add(granularity) {
			winStart, winEnd := cur, cur.Add(granularity)

			conflict := false
			for _, b := range busy {
				if interval.Overlaps(winStart, winEnd, b.Start, b.End) {
					conflict = true
					break
				}
			}

			if !conflict {
				windows = append(windows, OpenWindow{Start: winStart, End: winEnd})
			}
		}
	}

	return windows
}

// checkSlotOverlap rejects a slot that overlaps another active slot of the
// same doctor in the same day scope. excludeID skips the slot being updated.
func (s *Service) checkSlotOverlap(ctx context.Context, candidate *Slot, excludeID types.ID) error {
	filter := ListSlotsFilter{ActiveOnly: true}
	if candidate.Date != nil {
		filter.Date = candidate.Date
	} else {
		filter.DayOfWeek = candidate.DayOfWeek
	}

	existing, err := s.store.ListForDoctor(ctx, candidate.DoctorID, filter)
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.ID == excludeID {
			continue
		}
		if interval.MinutesOverlap(
			candidate.StartTime.Minutes(), candidate.EndTime.Minutes(),
			other.StartTime.Minutes(), other.EndTime.Minutes(),
		) {
			return errors.Conflict(fmt.Sprintf(
				"slot overlaps existing availability %s-%s", other.StartTime, other.EndTime))
		}
	}

	return nil
}

// applySlotFields parses and validates the day/date/time inputs
func applySlotFields(slot *Slot, day, date, start, end string) error {
	if day != "" && date != "" {
		return errors.BadRequest("specify day_of_week or date, not both")
	}

	if day != "" {
		weekday, err := ParseWeekday(day)
		if err != nil {
			return errors.BadRequest(err.Error())
		}
		slot.DayOfWeek = &weekday
		slot.Date = nil
	}

	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return errors.BadRequest("invalid date, want YYYY-MM-DD")
		}
		slot.Date = &parsed
		slot.DayOfWeek = nil
	}

	if slot.DayOfWeek == nil && slot.Date == nil {
		return errors.BadRequest("slot needs a day_of_week or a date")
	}

	startTime, err := types.ParseTimeOfDay(start)
	if err != nil {
		return errors.BadRequest(err.Error())
	}
	endTime, err := types.ParseTimeOfDay(end)
	if err != nil {
		return errors.BadRequest(err.Error())
	}

	if startTime >= endTime {
		return errors.BadRequest("start_time must be before end_time")
	}

	slot.StartTime = startTime
	slot.EndTime = endTime
	return nil
}

// authorizeSlotAccess allows the owning doctor or an admin
func authorizeSlotAccess(user *auth.User, doctorID types.ID) error {
	if user == nil {
		return errors.Unauthorized("authentication required")
	}
	if user.IsAdmin() {
		return nil
	}
	if user.Role == auth.RoleDoctor && user.ID == doctorID {
		return nil
	}
	return errors.Forbidden("only the owning doctor or an admin may manage this slot")
}

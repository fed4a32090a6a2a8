package appointment

import (
	"context"
	"sort"
	"time"

	"github.com/meridian-health/platform/internal/availability"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/interval"
	"github.com/meridian-health/platform/internal/shared/types"
)

// fakeStore is an in-memory Store and ConflictCounter
type fakeStore struct {
	appts      map[types.ID]*Appointment
	history    []HistoryEntry
	failCreate error
}

func newFakeStore() *fakeStore {
	return &fakeStore{appts: make(map[types.ID]*Appointment)}
}

func (f *fakeStore) Create(_ context.Context, appt *Appointment) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	copied := *appt
	f.appts[appt.ID] = &copied
	return nil
}

func (f *fakeStore) Get(_ context.Context, id types.ID) (*Appointment, error) {
	appt, ok := f.appts[id]
	if !ok {
		return nil, errors.NotFound("appointment", id.String())
	}
	copied := *appt
	return &copied, nil
}

func (f *fakeStore) Update(_ context.Context, appt *Appointment) error {
	if _, ok := f.appts[appt.ID]; !ok {
		return errors.NotFound("appointment", appt.ID.String())
	}
	copied := *appt
	f.appts[appt.ID] = &copied
	return nil
}

func (f *fakeStore) List(_ context.Context, filter ListFilter) ([]Appointment, error) {
	var out []Appointment
	for _, appt := range f.appts {
		if filter.PatientID != nil && appt.PatientID != *filter.PatientID {
			continue
		}
		if filter.DoctorID != nil && (appt.DoctorID == nil || *appt.DoctorID != *filter.DoctorID) {
			continue
		}
		if filter.Status != nil && appt.Status != *filter.Status {
			continue
		}
		out = append(out, *appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeStore) FindConflict(_ context.Context, entity EntityType, entityID types.ID, start, end time.Time, excludeID types.ID) (*Appointment, error) {
	for _, appt := range f.appts {
		if appt.ID == excludeID || !appt.Status.Blocking() {
			continue
		}
		switch entity {
		case EntityDoctor:
			if appt.DoctorID == nil || *appt.DoctorID != entityID {
				continue
			}
		case EntityPatient:
			if appt.PatientID != entityID {
				continue
			}
		}
		if interval.Overlaps(start, end, appt.StartTime, appt.EndTime) {
			copied := *appt
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CountConflicts(ctx context.Context, doctorID types.ID, start, end time.Time) (int, error) {
	count := 0
	for _, appt := range f.appts {
		if !appt.Status.Blocking() || appt.DoctorID == nil || *appt.DoctorID != doctorID {
			continue
		}
		if interval.Overlaps(start, end, appt.StartTime, appt.EndTime) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) AppendHistory(_ context.Context, entry *HistoryEntry) error {
	entry.CreatedAt = time.Now().UTC()
	f.history = append(f.history, *entry)
	return nil
}

// Transact mirrors the rollback semantics of the real store: on error,
// every write made inside fn is discarded.
func (f *fakeStore) Transact(_ context.Context, fn func(Store) error) error {
	snapshot := make(map[types.ID]*Appointment, len(f.appts))
	for id, appt := range f.appts {
		copied := *appt
		snapshot[id] = &copied
	}
	historyLen := len(f.history)

	if err := fn(f); err != nil {
		f.appts = snapshot
		f.history = f.history[:historyLen]
		return err
	}
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, appointmentID types.ID) ([]HistoryEntry, error) {
	var out []HistoryEntry
	for _, entry := range f.history {
		if entry.AppointmentID == appointmentID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// fakeDirectory backs both Directory and DoctorSource
type fakeDirectory struct {
	users    map[types.ID]*directory.User
	services map[types.ID]*directory.Service
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:    make(map[types.ID]*directory.User),
		services: make(map[types.ID]*directory.Service),
	}
}

func (f *fakeDirectory) GetUser(_ context.Context, id types.ID) (*directory.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.NotFound("user", id.String())
	}
	return user, nil
}

func (f *fakeDirectory) GetDoctor(ctx context.Context, id types.ID) (*directory.User, error) {
	user, err := f.GetUser(ctx, id)
	if err != nil || !user.IsDoctor() {
		return nil, errors.NotFound("doctor", id.String())
	}
	return user, nil
}

func (f *fakeDirectory) GetService(_ context.Context, id types.ID) (*directory.Service, error) {
	svc, ok := f.services[id]
	if !ok {
		return nil, errors.NotFound("service", id.String())
	}
	return svc, nil
}

func (f *fakeDirectory) ListDoctors(_ context.Context, filter directory.ListDoctorsFilter) ([]directory.User, error) {
	var out []directory.User
	for _, user := range f.users {
		if !user.IsDoctor() {
			continue
		}
		if filter.ActiveOnly && !user.IsActive {
			continue
		}
		if filter.DepartmentID != nil && (user.DepartmentID == nil || *user.DepartmentID != *filter.DepartmentID) {
			continue
		}
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeAvailability answers coverage from a static slot table
type fakeAvailability struct {
	slots map[types.ID][]availability.Slot
}

func (f *fakeAvailability) IsDoctorAvailableAt(_ context.Context, doctorID types.ID, instant time.Time) (bool, error) {
	tod := types.TimeOfDayFrom(instant)
	for _, slot := range f.slots[doctorID] {
		if slot.IsActive && slot.AppliesOn(instant) && slot.CoversInclusive(tod) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAvailability) WeeklySlots(_ context.Context, doctorID types.ID) ([]availability.Slot, error) {
	var weekly []availability.Slot
	for _, slot := range f.slots[doctorID] {
		if slot.IsActive && slot.DayOfWeek != nil {
			weekly = append(weekly, slot)
		}
	}
	return weekly, nil
}

func weeklySlot(doctorID types.ID, day availability.Weekday, start, end string) availability.Slot {
	s, _ := types.ParseTimeOfDay(start)
	e, _ := types.ParseTimeOfDay(end)
	return availability.Slot{
		ID:        types.NewID(),
		DoctorID:  doctorID,
		DayOfWeek: &day,
		StartTime: s,
		EndTime:   e,
		IsActive:  true,
	}
}

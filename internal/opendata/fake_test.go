package opendata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/store"
)

// fakeReader serves fixed slices and honours the id and foreign-key filters.
type fakeReader struct {
	dorms    []model.Dormitory
	rooms    []model.Room
	apps     []model.Application
	accepted []model.AcceptedApplication
	payments []model.Payment
	err      error
	calls    int
}

func contains(ids []int64, id int64) bool {
	if len(ids) == 0 {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (f *fakeReader) ListDormitories(ctx context.Context, flt store.DormitoryFilter) ([]model.Dormitory, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Dormitory
	for _, d := range f.dorms {
		if contains(flt.IDs, d.ID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeReader) ListRooms(ctx context.Context, flt store.RoomFilter) ([]model.Room, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Room
	for _, r := range f.rooms {
		if contains(flt.IDs, r.ID) && contains(flt.DormitoryIDs, r.DormitoryID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReader) ListApplications(ctx context.Context, flt store.ApplicationFilter) ([]model.Application, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Application
	for _, a := range f.apps {
		if contains(flt.IDs, a.ID) && contains(flt.RoomIDs, a.RoomID) && contains(flt.UserIDs, a.UserID) && (!flt.ActiveOnly || a.IsActive) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) ListAcceptedApplications(ctx context.Context, flt store.AcceptedFilter) ([]model.AcceptedApplication, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.AcceptedApplication
	for _, a := range f.accepted {
		yearOK := len(flt.AcademicYears) == 0
		for _, y := range flt.AcademicYears {
			yearOK = yearOK || y == a.AcademicYear
		}
		if yearOK && contains(flt.IDs, a.ID) && contains(flt.RoomIDs, a.RoomID) && contains(flt.UserIDs, a.UserID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeReader) ListPayments(ctx context.Context, flt store.PaymentFilter) ([]model.Payment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Payment
	for _, p := range f.payments {
		if contains(flt.IDs, p.ID) && contains(flt.UserIDs, p.UserID) && contains(flt.AcceptedApplicationIDs, p.AcceptedApplicationID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReader) OccupancyByRoom(ctx context.Context, roomIDs []int64) (map[int64]int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	occ := make(map[int64]int)
	for _, a := range f.accepted {
		if contains(roomIDs, a.RoomID) {
			occ[a.RoomID]++
		}
	}
	return occ, nil
}

func (f *fakeReader) snapshot() *Snapshot {
	return &Snapshot{Dormitories: f.dorms, Rooms: f.rooms, Applications: f.apps, Accepted: f.accepted, Payments: f.payments}
}

func newTestService(r Reader) *Service {
	s := NewService(r, Options{}, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC) }
	return s
}

func dorm(id int64, name, address string) model.Dormitory {
	return model.Dormitory{ID: id, Name: name, Address: address, Phone: "033/000-00" + name, Email: name + "@dom.ba"}
}

func room(id, dormID int64, capacity int, amenities ...string) model.Room {
	return model.Room{ID: id, DormitoryID: dormID, BedCapacity: capacity, Amenities: amenities}
}

func resident(id, roomID int64, year string, grade int) model.AcceptedApplication {
	return model.AcceptedApplication{ID: id, ApplicationID: 1000 + id, UserID: 1000 + id, RoomID: roomID, AcademicYear: year, Grade: grade}
}

func ptr[T any](v T) *T { return &v }

// campus has two dormitories: Dom A with a full single and a half-empty
// double, Dom B with a free triple.
func campus() *fakeReader {
	return &fakeReader{
		dorms: []model.Dormitory{
			dorm(1, "Dom A", "Zmaja od Bosne 1, Sarajevo"),
			dorm(2, "Dom B", "Titova 5, Mostar"),
		},
		rooms: []model.Room{
			room(10, 1, 1, "klima", "terasa"),
			room(11, 1, 2, "klima"),
			room(20, 2, 3, "ablak", "klima", "terasa"),
		},
		accepted: []model.AcceptedApplication{
			resident(1, 10, "2023/2024", 9),
			resident(2, 11, "2023/2024", 7),
		},
	}
}

package opendata

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorm-open-data-backend/internal/model"
)

// occupancyCampus builds dormitories with the given occupied/capacity pairs,
// each backed by a single room.
func occupancyCampus(pairs ...[2]int) *fakeReader {
	r := &fakeReader{}
	var acceptedID int64
	for i, p := range pairs {
		id := int64(i + 1)
		r.dorms = append(r.dorms, dorm(id, string(rune('A'+i)), "Ulica "+string(rune('A'+i))))
		if p[1] > 0 {
			r.rooms = append(r.rooms, room(id*100, id, p[1]))
		}
		for j := 0; j < p[0]; j++ {
			acceptedID++
			r.accepted = append(r.accepted, resident(acceptedID, id*100, "2023/2024", 8))
		}
	}
	return r
}

func TestComputeStatistics_ZeroCapacity(t *testing.T) {
	r := occupancyCampus([2]int{0, 0})
	st := ComputeStatistics(r.snapshot(), 5)

	require.Len(t, st.Dormitories, 1)
	d := st.Dormitories[0]
	assert.Equal(t, 0, d.TotalCapacity)
	assert.Equal(t, 0.0, d.OccupancyRate)
	assert.False(t, math.IsNaN(d.OccupancyRate) || math.IsInf(d.OccupancyRate, 0))
	assert.Equal(t, 0.0, st.OccupancyRate)
	assert.Equal(t, 0.0, st.Applications.AcceptanceRate)
}

func TestComputeStatistics_TopN(t *testing.T) {
	r := occupancyCampus([2]int{8, 10}, [2]int{1, 10})
	st := ComputeStatistics(r.snapshot(), 5)

	require.Len(t, st.MostFull, 2)
	assert.Equal(t, "A", st.MostFull[0].Name)
	assert.Equal(t, 80.0, st.MostFull[0].OccupancyRate)
	assert.Equal(t, "B", st.MostFull[1].Name)

	require.Len(t, st.MostEmpty, 2)
	assert.Equal(t, "B", st.MostEmpty[0].Name)
	assert.Equal(t, 10.0, st.MostEmpty[0].OccupancyRate)
	assert.Equal(t, "A", st.MostEmpty[1].Name)
}

func TestComputeStatistics_TopNTiesAndTruncation(t *testing.T) {
	r := occupancyCampus([2]int{1, 2}, [2]int{1, 2}, [2]int{2, 2}, [2]int{0, 2})
	st := ComputeStatistics(r.snapshot(), 2)

	require.Len(t, st.MostFull, 2)
	assert.Equal(t, int64(3), st.MostFull[0].DormitoryID)
	assert.Equal(t, int64(1), st.MostFull[1].DormitoryID, "ties are broken by id")

	require.Len(t, st.MostEmpty, 2)
	assert.Equal(t, int64(4), st.MostEmpty[0].DormitoryID)
	assert.Equal(t, int64(1), st.MostEmpty[1].DormitoryID)
}

func TestComputeStatistics_Overbooking(t *testing.T) {
	testCases := []struct {
		name               string
		occupied           int
		expectedRate       float64
		expectedAvailable  int
		expectedOverbooked int
	}{
		{name: "Within capacity", occupied: 2, expectedRate: 66.67, expectedAvailable: 1, expectedOverbooked: 0},
		{name: "At capacity", occupied: 3, expectedRate: 100, expectedAvailable: 0, expectedOverbooked: 0},
		{name: "Over capacity", occupied: 5, expectedRate: 100, expectedAvailable: 0, expectedOverbooked: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := occupancyCampus([2]int{tc.occupied, 3})
			st := ComputeStatistics(r.snapshot(), 5)

			d := st.Dormitories[0]
			assert.Equal(t, tc.occupied, d.OccupiedSpots)
			assert.Equal(t, tc.expectedRate, d.OccupancyRate)
			assert.Equal(t, tc.expectedAvailable, d.AvailableSpots)
			assert.Equal(t, tc.expectedOverbooked, d.OverbookedRooms)
			assert.Equal(t, tc.expectedOverbooked, st.OverbookedRooms)
		})
	}
}

func TestComputeStatistics_Applications(t *testing.T) {
	r := campus()
	r.apps = []model.Application{
		{ID: 1001, UserID: 1001, RoomID: 10, Grade: 9, IsActive: false},
		{ID: 1002, UserID: 1002, RoomID: 11, Grade: 7, IsActive: false},
		{ID: 5, UserID: 5, RoomID: 20, Grade: 6, IsActive: true},
		{ID: 6, UserID: 6, RoomID: 20, Grade: 8, IsActive: true},
	}
	// An accepted row whose application was deleted still counts once.
	r.accepted = append(r.accepted, model.AcceptedApplication{ID: 3, ApplicationID: 77, UserID: 77, RoomID: 20, AcademicYear: "2023/2024", Grade: 10})

	st := ComputeStatistics(r.snapshot(), 5)
	a := st.Applications
	assert.Equal(t, 5, a.TotalApplications)
	assert.Equal(t, 2, a.ActiveApplications)
	assert.Equal(t, 3, a.AcceptedApplications)
	assert.Equal(t, 60.0, a.AcceptanceRate)
	require.NotNil(t, a.AverageGradeOfAccepted)
	assert.Equal(t, 8.67, *a.AverageGradeOfAccepted)
	require.NotNil(t, a.AverageGradeOfApplications)
	assert.Equal(t, 8.0, *a.AverageGradeOfApplications)

	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, st.RoomTypeDistribution)
	assert.Equal(t, map[string]int{"ablak": 1, "klima": 3, "terasa": 2}, st.AmenitiesDistribution)
}

func TestComputeStatistics_EmptyGradesAreNull(t *testing.T) {
	r := campus()
	r.accepted = nil
	st := ComputeStatistics(r.snapshot(), 5)

	assert.Nil(t, st.Applications.AverageGradeOfAccepted)
	assert.Nil(t, st.Applications.AverageGradeOfApplications)
	for _, d := range st.Dormitories {
		assert.Nil(t, d.AverageGradeOfAccepted)
	}
}

func TestComputeStatistics_Payments(t *testing.T) {
	r := campus()
	due := time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC)
	r.payments = []model.Payment{
		{ID: 1, Amount: decimal.RequireFromString("100.50"), Status: model.PaymentPaid, DueDate: due},
		{ID: 2, Amount: decimal.RequireFromString("100.25"), Status: model.PaymentPaid, DueDate: due},
		{ID: 3, Amount: decimal.RequireFromString("99.25"), Status: model.PaymentOverdue, DueDate: due},
	}
	st := ComputeStatistics(r.snapshot(), 5)

	p := st.Payments
	assert.Equal(t, 3, p.TotalPayments)
	assert.Equal(t, map[string]int{"paid": 2, "pending": 0, "overdue": 1}, p.Counts)
	assert.True(t, decimal.RequireFromString("200.75").Equal(p.Amounts["paid"]))
	assert.True(t, decimal.Zero.Equal(p.Amounts["pending"]))
	assert.True(t, decimal.RequireFromString("300").Equal(p.TotalAmount))
	assert.Equal(t, 66.92, p.CollectionRate)
}

func TestService_Statistics(t *testing.T) {
	s := newTestService(campus())

	st, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalDormitories)
	assert.Equal(t, 3, st.TotalRooms)
	assert.Equal(t, 6, st.TotalCapacity)
	assert.Equal(t, 2, st.OccupiedSpots)
	assert.Equal(t, 4, st.AvailableSpots)
	assert.Equal(t, 33.33, st.OccupancyRate)
	assert.Equal(t, time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC), st.GeneratedAt)

	failing := campus()
	failing.err = errors.New("timeout")
	_, err = newTestService(failing).Statistics(context.Background())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestService_DormitoryStatistics(t *testing.T) {
	s := newTestService(campus())

	d, err := s.DormitoryStatistics(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalRooms)
	assert.Equal(t, 3, d.TotalCapacity)
	assert.Equal(t, 2, d.OccupiedSpots)
	assert.Equal(t, 66.67, d.OccupancyRate)
	require.NotNil(t, d.AverageGradeOfAccepted)
	assert.Equal(t, 8.0, *d.AverageGradeOfAccepted)
	assert.Equal(t, map[string]int{"klima": 2, "terasa": 1}, d.Amenities)

	_, err = s.DormitoryStatistics(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestComputeHeatmap(t *testing.T) {
	r := occupancyCampus([2]int{9, 10}, [2]int{5, 10}, [2]int{0, 10}, [2]int{10, 10})
	hm := ComputeHeatmap(ComputeStatistics(r.snapshot(), 5).Dormitories)

	require.Len(t, hm.Points, 4)
	statuses := []string{hm.Points[0].Status, hm.Points[1].Status, hm.Points[2].Status, hm.Points[3].Status}
	assert.Equal(t, []string{HeatHigh, HeatMedium, HeatLow, HeatHigh}, statuses)
	assert.Equal(t, 60.0, hm.Summary.AverageOccupancy)
	assert.Equal(t, 100.0, hm.Summary.HighestOccupancy)
	assert.Equal(t, 0.0, hm.Summary.LowestOccupancy)
	assert.Equal(t, 1, hm.Summary.FullDormitories)
	assert.Equal(t, 1, hm.Summary.EmptyDormitories)

	empty := ComputeHeatmap(nil)
	assert.Empty(t, empty.Points)
	assert.NotNil(t, empty.Points)
}

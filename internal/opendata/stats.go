package opendata

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/store"
)

// DormStats is the occupancy picture of one dormitory.
type DormStats struct {
	DormitoryID            int64          `json:"dormitory_id"`
	Name                   string         `json:"name"`
	Address                string         `json:"address"`
	TotalRooms             int            `json:"total_rooms"`
	TotalCapacity          int            `json:"total_capacity"`
	OccupiedSpots          int            `json:"occupied_spots"`
	AvailableSpots         int            `json:"available_spots"`
	OccupancyRate          float64        `json:"occupancy_rate"`
	OverbookedRooms        int            `json:"overbooked_rooms"`
	AverageGradeOfAccepted *float64       `json:"average_grade_of_accepted"`
	RoomTypes              map[string]int `json:"room_types"`
	Amenities              map[string]int `json:"amenities"`
}

// ApplicationStats summarises applications and their outcomes.
type ApplicationStats struct {
	TotalApplications          int      `json:"total_applications"`
	ActiveApplications         int      `json:"active_applications"`
	AcceptedApplications       int      `json:"accepted_applications"`
	AcceptanceRate             float64  `json:"acceptance_rate"`
	AverageGradeOfAccepted     *float64 `json:"average_grade_of_accepted"`
	AverageGradeOfApplications *float64 `json:"average_grade_of_applications"`
}

// PaymentStats summarises payments per status. Amounts are exact decimals.
type PaymentStats struct {
	TotalPayments  int                        `json:"total_payments"`
	Counts         map[string]int             `json:"counts"`
	Amounts        map[string]decimal.Decimal `json:"amounts"`
	TotalAmount    decimal.Decimal            `json:"total_amount"`
	CollectionRate float64                    `json:"collection_rate"`
}

// DormRank is one entry of a top-N list.
type DormRank struct {
	DormitoryID   int64   `json:"dormitory_id"`
	Name          string  `json:"name"`
	OccupancyRate float64 `json:"occupancy_rate"`
	OccupiedSpots int     `json:"occupied_spots"`
	TotalCapacity int     `json:"total_capacity"`
}

// Statistics is the system-wide overview.
type Statistics struct {
	TotalDormitories      int              `json:"total_dormitories"`
	TotalRooms            int              `json:"total_rooms"`
	TotalCapacity         int              `json:"total_capacity"`
	OccupiedSpots         int              `json:"occupied_spots"`
	AvailableSpots        int              `json:"available_spots"`
	OccupancyRate         float64          `json:"occupancy_rate"`
	OverbookedRooms       int              `json:"overbooked_rooms"`
	Applications          ApplicationStats `json:"application_statistics"`
	Payments              PaymentStats     `json:"payment_statistics"`
	AmenitiesDistribution map[string]int   `json:"amenities_distribution"`
	RoomTypeDistribution  map[string]int   `json:"room_type_distribution"`
	Dormitories           []DormStats      `json:"dorm_statistics"`
	MostFull              []DormRank       `json:"most_full"`
	MostEmpty             []DormRank       `json:"most_empty"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// Statistics computes the system-wide overview.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	snap, err := s.LoadSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	st := ComputeStatistics(snap, s.opts.TopN)
	st.GeneratedAt = s.now()
	return st, nil
}

// DormitoryStatistics computes the statistics of a single dormitory.
func (s *Service) DormitoryStatistics(ctx context.Context, dormID int64) (*DormStats, error) {
	dorms, err := s.reader.ListDormitories(ctx, store.DormitoryFilter{IDs: []int64{dormID}})
	if err != nil {
		return nil, storeError("load dormitories", err)
	}
	if len(dorms) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "dormitory " + strconv.FormatInt(dormID, 10) + " not found"}
	}
	scoped, err := s.loadScoped(ctx, dorms)
	if err != nil {
		return nil, err
	}
	stats := computeDormStats(dorms[0], scoped.Rooms, occupancyOf(scoped.Accepted), gradesByRoom(scoped.Accepted))
	return &stats, nil
}

// loadScoped reads the rooms and applications belonging to dorms.
func (s *Service) loadScoped(ctx context.Context, dorms []model.Dormitory) (*Snapshot, error) {
	snap := &Snapshot{Dormitories: dorms}
	if len(dorms) == 0 {
		return snap, nil
	}
	dormIDs := make([]int64, len(dorms))
	for i, d := range dorms {
		dormIDs[i] = d.ID
	}
	var err error
	if snap.Rooms, err = s.reader.ListRooms(ctx, store.RoomFilter{DormitoryIDs: dormIDs}); err != nil {
		return nil, storeError("load rooms", err)
	}
	if len(snap.Rooms) == 0 {
		return snap, nil
	}
	roomIDs := make([]int64, len(snap.Rooms))
	for i, r := range snap.Rooms {
		roomIDs[i] = r.ID
	}
	if snap.Applications, err = s.reader.ListApplications(ctx, store.ApplicationFilter{RoomIDs: roomIDs}); err != nil {
		return nil, storeError("load applications", err)
	}
	if snap.Accepted, err = s.reader.ListAcceptedApplications(ctx, store.AcceptedFilter{RoomIDs: roomIDs}); err != nil {
		return nil, storeError("load accepted applications", err)
	}
	return snap, nil
}

// ComputeStatistics aggregates a snapshot. It never mutates snap.
func ComputeStatistics(snap *Snapshot, topN int) *Statistics {
	occupancy := occupancyOf(snap.Accepted)
	grades := gradesByRoom(snap.Accepted)
	roomsByDorm := make(map[int64][]model.Room)
	for _, r := range snap.Rooms {
		roomsByDorm[r.DormitoryID] = append(roomsByDorm[r.DormitoryID], r)
	}

	st := &Statistics{
		TotalDormitories:      len(snap.Dormitories),
		Dormitories:           make([]DormStats, 0, len(snap.Dormitories)),
		AmenitiesDistribution: amenityCounts(snap.Rooms),
		RoomTypeDistribution:  roomTypeCounts(snap.Rooms),
	}
	for _, d := range snap.Dormitories {
		ds := computeDormStats(d, roomsByDorm[d.ID], occupancy, grades)
		st.TotalRooms += ds.TotalRooms
		st.TotalCapacity += ds.TotalCapacity
		st.OccupiedSpots += ds.OccupiedSpots
		st.AvailableSpots += ds.AvailableSpots
		st.OverbookedRooms += ds.OverbookedRooms
		st.Dormitories = append(st.Dormitories, ds)
	}
	sort.Slice(st.Dormitories, func(i, j int) bool { return st.Dormitories[i].DormitoryID < st.Dormitories[j].DormitoryID })
	st.OccupancyRate = occupancyRate(st.OccupiedSpots, st.TotalCapacity)
	st.Applications = computeApplicationStats(snap.Applications, snap.Accepted)
	st.Payments = computePaymentStats(snap.Payments)
	st.MostFull, st.MostEmpty = topDormitories(st.Dormitories, topN)
	return st
}

func computeDormStats(d model.Dormitory, rooms []model.Room, occupancy map[int64]int, grades map[int64][]int) DormStats {
	ds := DormStats{
		DormitoryID: d.ID,
		Name:        d.Name,
		Address:     d.Address,
		TotalRooms:  len(rooms),
		RoomTypes:   roomTypeCounts(rooms),
		Amenities:   amenityCounts(rooms),
	}
	var gradeSum float64
	var graded int
	for _, r := range rooms {
		occ := occupancy[r.ID]
		ds.TotalCapacity += r.BedCapacity
		ds.OccupiedSpots += occ
		if occ > r.BedCapacity {
			ds.OverbookedRooms++
		} else {
			ds.AvailableSpots += r.BedCapacity - occ
		}
		for _, g := range grades[r.ID] {
			gradeSum += float64(g)
			graded++
		}
	}
	ds.OccupancyRate = occupancyRate(ds.OccupiedSpots, ds.TotalCapacity)
	ds.AverageGradeOfAccepted = meanPtr(gradeSum, graded)
	return ds
}

// occupancyRate is capped at 100 so over-booked dormitories stay within the
// percentage domain; the excess shows up in overbooked_rooms.
func occupancyRate(occupied, capacity int) float64 {
	rate := percent(float64(occupied), float64(capacity))
	if rate > 100 {
		return 100
	}
	return rate
}

// computeApplicationStats counts outcomes. An accepted row whose application
// no longer exists still counts as one application.
func computeApplicationStats(apps []model.Application, accepted []model.AcceptedApplication) ApplicationStats {
	st := ApplicationStats{AcceptedApplications: len(accepted)}
	appIDs := make(map[int64]struct{}, len(apps))
	var appGradeSum float64
	for _, a := range apps {
		appIDs[a.ID] = struct{}{}
		if a.IsActive {
			st.ActiveApplications++
		}
		appGradeSum += float64(a.Grade)
	}
	st.TotalApplications = len(apps)

	var acceptedGradeSum float64
	for _, a := range accepted {
		acceptedGradeSum += float64(a.Grade)
		if _, ok := appIDs[a.ApplicationID]; !ok {
			st.TotalApplications++
			appGradeSum += float64(a.Grade)
		}
	}
	st.AcceptanceRate = percent(float64(st.AcceptedApplications), float64(st.TotalApplications))
	st.AverageGradeOfAccepted = meanPtr(acceptedGradeSum, len(accepted))
	st.AverageGradeOfApplications = meanPtr(appGradeSum, st.TotalApplications)
	return st
}

func computePaymentStats(payments []model.Payment) PaymentStats {
	st := PaymentStats{
		TotalPayments: len(payments),
		Counts:        make(map[string]int, len(model.PaymentStatuses)),
		Amounts:       make(map[string]decimal.Decimal, len(model.PaymentStatuses)),
		TotalAmount:   decimal.Zero,
	}
	for _, status := range model.PaymentStatuses {
		st.Counts[string(status)] = 0
		st.Amounts[string(status)] = decimal.Zero
	}
	for _, p := range payments {
		key := string(p.Status)
		st.Counts[key]++
		st.Amounts[key] = st.Amounts[key].Add(p.Amount)
		st.TotalAmount = st.TotalAmount.Add(p.Amount)
	}
	if !st.TotalAmount.IsZero() {
		rate, _ := st.Amounts[string(model.PaymentPaid)].Div(st.TotalAmount).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		st.CollectionRate = rate
	}
	return st
}

// topDormitories ranks by occupancy rate, ties broken by dormitory id.
func topDormitories(dorms []DormStats, n int) (mostFull, mostEmpty []DormRank) {
	ranks := make([]DormRank, len(dorms))
	for i, d := range dorms {
		ranks[i] = DormRank{
			DormitoryID:   d.DormitoryID,
			Name:          d.Name,
			OccupancyRate: d.OccupancyRate,
			OccupiedSpots: d.OccupiedSpots,
			TotalCapacity: d.TotalCapacity,
		}
	}
	full := make([]DormRank, len(ranks))
	copy(full, ranks)
	sort.SliceStable(full, func(i, j int) bool {
		if full[i].OccupancyRate != full[j].OccupancyRate {
			return full[i].OccupancyRate > full[j].OccupancyRate
		}
		return full[i].DormitoryID < full[j].DormitoryID
	})
	empty := make([]DormRank, len(ranks))
	copy(empty, ranks)
	sort.SliceStable(empty, func(i, j int) bool {
		if empty[i].OccupancyRate != empty[j].OccupancyRate {
			return empty[i].OccupancyRate < empty[j].OccupancyRate
		}
		return empty[i].DormitoryID < empty[j].DormitoryID
	})
	if n < len(ranks) {
		full, empty = full[:n], empty[:n]
	}
	return full, empty
}

func gradesByRoom(accepted []model.AcceptedApplication) map[int64][]int {
	grades := make(map[int64][]int)
	for _, a := range accepted {
		grades[a.RoomID] = append(grades[a.RoomID], a.Grade)
	}
	return grades
}

// roomTypeCounts maps bed capacity to the number of rooms with it.
func roomTypeCounts(rooms []model.Room) map[string]int {
	counts := make(map[string]int)
	for _, r := range rooms {
		counts[strconv.Itoa(r.BedCapacity)]++
	}
	return counts
}

// amenityCounts maps each tag to the number of rooms offering it.
func amenityCounts(rooms []model.Room) map[string]int {
	counts := make(map[string]int)
	for _, r := range rooms {
		for _, tag := range r.Amenities {
			counts[tag]++
		}
	}
	return counts
}

func meanPtr(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	m := mean(sum, n)
	return &m
}

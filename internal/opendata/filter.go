package opendata

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/parse"
	"dorm-open-data-backend/internal/store"
)

// RoomQuery is a conjunction of optional room constraints. Nil pointers and
// empty values mean "no constraint".
type RoomQuery struct {
	Amenities        []string
	DormitoryID      *int64
	AddressSubstring string
	ExactCapacity    *int
	MinCapacity      *int
	MaxCapacity      *int
	OnlyAvailable    bool
	Limit            int
	Offset           int
}

// Validate checks the query without touching the store.
func (q RoomQuery) Validate() error {
	if q.ExactCapacity != nil && (q.MinCapacity != nil || q.MaxCapacity != nil) {
		return &Error{Kind: KindConflictingFilter, Message: "exact capacity cannot be combined with a capacity range"}
	}
	bounds := []struct {
		name  string
		value *int
	}{
		{"exact capacity", q.ExactCapacity},
		{"min capacity", q.MinCapacity},
		{"max capacity", q.MaxCapacity},
	}
	for _, b := range bounds {
		if b.value != nil && *b.value < 1 {
			return &Error{Kind: KindInvalidValue, Message: b.name + " must be at least 1"}
		}
	}
	if q.MinCapacity != nil && q.MaxCapacity != nil && *q.MinCapacity > *q.MaxCapacity {
		return &Error{Kind: KindInvalidRange, Message: "min capacity is greater than max capacity"}
	}
	if q.Limit < 0 {
		return &Error{Kind: KindInvalidValue, Message: "limit must not be negative"}
	}
	if q.Offset < 0 {
		return &Error{Kind: KindInvalidValue, Message: "offset must not be negative"}
	}
	return nil
}

// DormitoryContact is the public face of a dormitory.
type DormitoryContact struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

func contactOf(d model.Dormitory) DormitoryContact {
	return DormitoryContact{ID: d.ID, Name: d.Name, Address: d.Address, Phone: d.Phone, Email: d.Email}
}

// RoomResult is a room annotated with its dormitory and live occupancy.
type RoomResult struct {
	ID             int64            `json:"id"`
	DormitoryID    int64            `json:"dormitory_id"`
	BedCapacity    int              `json:"bed_capacity"`
	Amenities      []string         `json:"amenities"`
	Occupied       int              `json:"occupied"`
	AvailableSpots int              `json:"available_spots"`
	IsAvailable    bool             `json:"is_available"`
	Dormitory      DormitoryContact `json:"dormitory"`
}

// RoomSearchResult is one page of matching rooms. Total counts every match.
type RoomSearchResult struct {
	Rooms  []RoomResult `json:"rooms"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// SearchRooms returns the rooms satisfying every constraint of q, ordered by id.
func (s *Service) SearchRooms(ctx context.Context, q RoomQuery) (*RoomSearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Amenities = parse.NormalizeAmenities(q.Amenities)
	limit := q.Limit
	if limit == 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	matches, err := s.matchingRooms(ctx, q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("room search", zap.Int("matches", len(matches)), zap.Int("limit", limit), zap.Int("offset", q.Offset))

	res := &RoomSearchResult{Rooms: []RoomResult{}, Total: len(matches), Limit: limit, Offset: q.Offset}
	if q.Offset < len(matches) {
		end := q.Offset + limit
		if end > len(matches) {
			end = len(matches)
		}
		res.Rooms = matches[q.Offset:end]
	}
	return res, nil
}

// matchingRooms returns every match without pagination. The dormitory
// constraints are pushed down to the store.
func (s *Service) matchingRooms(ctx context.Context, q RoomQuery) ([]RoomResult, error) {
	var dormFilter store.DormitoryFilter
	if q.DormitoryID != nil {
		dormFilter.IDs = []int64{*q.DormitoryID}
	}
	dorms, err := s.reader.ListDormitories(ctx, dormFilter)
	if err != nil {
		return nil, storeError("load dormitories", err)
	}

	needle := strings.ToLower(strings.TrimSpace(q.AddressSubstring))
	dormByID := make(map[int64]model.Dormitory, len(dorms))
	dormIDs := make([]int64, 0, len(dorms))
	for _, d := range dorms {
		if needle != "" && !strings.Contains(strings.ToLower(d.Address), needle) {
			continue
		}
		dormByID[d.ID] = d
		dormIDs = append(dormIDs, d.ID)
	}
	if len(dormIDs) == 0 {
		return []RoomResult{}, nil
	}

	var roomFilter store.RoomFilter
	if q.DormitoryID != nil || needle != "" {
		roomFilter.DormitoryIDs = dormIDs
	}
	rooms, err := s.reader.ListRooms(ctx, roomFilter)
	if err != nil {
		return nil, storeError("load rooms", err)
	}

	candidates := make([]model.Room, 0, len(rooms))
	roomIDs := make([]int64, 0, len(rooms))
	for _, r := range rooms {
		if _, ok := dormByID[r.DormitoryID]; !ok {
			continue
		}
		if !capacityMatches(r.BedCapacity, q) || !r.HasAmenities(q.Amenities) {
			continue
		}
		candidates = append(candidates, r)
		roomIDs = append(roomIDs, r.ID)
	}
	if len(candidates) == 0 {
		return []RoomResult{}, nil
	}

	occupancy, err := s.reader.OccupancyByRoom(ctx, roomIDs)
	if err != nil {
		return nil, storeError("load occupancy", err)
	}

	results := make([]RoomResult, 0, len(candidates))
	for _, r := range candidates {
		res := roomResult(r, dormByID[r.DormitoryID], occupancy[r.ID])
		if q.OnlyAvailable && !res.IsAvailable {
			continue
		}
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func capacityMatches(capacity int, q RoomQuery) bool {
	if q.ExactCapacity != nil && capacity != *q.ExactCapacity {
		return false
	}
	if q.MinCapacity != nil && capacity < *q.MinCapacity {
		return false
	}
	if q.MaxCapacity != nil && capacity > *q.MaxCapacity {
		return false
	}
	return true
}

func roomResult(r model.Room, d model.Dormitory, occupied int) RoomResult {
	available := r.BedCapacity - occupied
	if available < 0 {
		available = 0
	}
	amenities := []string(r.Amenities)
	if amenities == nil {
		amenities = []string{}
	}
	return RoomResult{
		ID:             r.ID,
		DormitoryID:    r.DormitoryID,
		BedCapacity:    r.BedCapacity,
		Amenities:      amenities,
		Occupied:       occupied,
		AvailableSpots: available,
		IsAvailable:    available > 0,
		Dormitory:      contactOf(d),
	}
}

package opendata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/store"
)

// EntryError marks a comparison entry that could not be produced.
type EntryError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ComparisonEntry is one column of a side-by-side comparison. Exactly one of
// Error and Statistics is set.
type ComparisonEntry struct {
	RequestedID      string            `json:"requested_id"`
	Error            *EntryError       `json:"error,omitempty"`
	Statistics       *DormStats        `json:"statistics,omitempty"`
	Contact          *DormitoryContact `json:"contact,omitempty"`
	AmenitiesOffered map[string]int    `json:"amenities_offered"`
	RoomDistribution map[string]int    `json:"room_distribution"`
	Applications     *ApplicationStats `json:"application_statistics,omitempty"`
}

// Comparison lists entries in request order.
type Comparison struct {
	Dormitories []ComparisonEntry `json:"dormitories"`
	Found       int               `json:"found"`
	Missing     int               `json:"missing"`
}

// NormalizeIDs trims every id, drops blanks and removes duplicates while
// keeping the first occurrence.
func NormalizeIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id := strings.TrimSpace(r)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// CompareDormitories builds a comparison of up to MaxCompare dormitories.
// Unknown or malformed ids yield a NotFound entry instead of failing the call.
func (s *Service) CompareDormitories(ctx context.Context, rawIDs []string) (*Comparison, error) {
	ids := NormalizeIDs(rawIDs)
	if len(ids) == 0 {
		return nil, &Error{Kind: KindEmptyInput, Message: "at least one dormitory id is required"}
	}
	if len(ids) > s.opts.MaxCompare {
		return nil, &Error{Kind: KindTooManyInputs, Message: fmt.Sprintf("at most %d dormitories can be compared, got %d", s.opts.MaxCompare, len(ids))}
	}

	parsed := make(map[string]int64, len(ids))
	var lookup []int64
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		parsed[id] = n
		lookup = append(lookup, n)
	}

	var dorms []model.Dormitory
	if len(lookup) > 0 {
		var err error
		if dorms, err = s.reader.ListDormitories(ctx, store.DormitoryFilter{IDs: lookup}); err != nil {
			return nil, storeError("load dormitories", err)
		}
	}
	snap, err := s.loadScoped(ctx, dorms)
	if err != nil {
		return nil, err
	}
	return compareSnapshot(ids, parsed, snap), nil
}

func compareSnapshot(ids []string, parsed map[string]int64, snap *Snapshot) *Comparison {
	dormByID := make(map[int64]model.Dormitory, len(snap.Dormitories))
	for _, d := range snap.Dormitories {
		dormByID[d.ID] = d
	}
	roomsByDorm := make(map[int64][]model.Room)
	roomDorm := make(map[int64]int64, len(snap.Rooms))
	for _, r := range snap.Rooms {
		roomsByDorm[r.DormitoryID] = append(roomsByDorm[r.DormitoryID], r)
		roomDorm[r.ID] = r.DormitoryID
	}
	appsByDorm := make(map[int64][]model.Application)
	for _, a := range snap.Applications {
		if dormID, ok := roomDorm[a.RoomID]; ok {
			appsByDorm[dormID] = append(appsByDorm[dormID], a)
		}
	}
	acceptedByDorm := make(map[int64][]model.AcceptedApplication)
	for _, a := range snap.Accepted {
		if dormID, ok := roomDorm[a.RoomID]; ok {
			acceptedByDorm[dormID] = append(acceptedByDorm[dormID], a)
		}
	}
	occupancy := occupancyOf(snap.Accepted)
	grades := gradesByRoom(snap.Accepted)

	cmp := &Comparison{Dormitories: make([]ComparisonEntry, 0, len(ids))}
	for _, id := range ids {
		entry := ComparisonEntry{RequestedID: id}
		n, ok := parsed[id]
		d, found := dormByID[n]
		if !ok || !found {
			entry.Error = &EntryError{Kind: KindNotFound, Message: fmt.Sprintf("dormitory %q not found", id)}
			cmp.Missing++
			cmp.Dormitories = append(cmp.Dormitories, entry)
			continue
		}
		rooms := roomsByDorm[d.ID]
		stats := computeDormStats(d, rooms, occupancy, grades)
		contact := contactOf(d)
		apps := computeApplicationStats(appsByDorm[d.ID], acceptedByDorm[d.ID])
		entry.Statistics = &stats
		entry.Contact = &contact
		entry.AmenitiesOffered = stats.Amenities
		entry.RoomDistribution = stats.RoomTypes
		entry.Applications = &apps
		cmp.Found++
		cmp.Dormitories = append(cmp.Dormitories, entry)
	}
	return cmp
}

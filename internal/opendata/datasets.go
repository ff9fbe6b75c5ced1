package opendata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/store"
)

// AmenityReportRow describes how widely one amenity is offered.
type AmenityReportRow struct {
	Amenity      string  `json:"amenity"`
	Known        bool    `json:"known"`
	Rooms        int     `json:"rooms"`
	Dormitories  int     `json:"dormitories"`
	Beds         int     `json:"beds"`
	ShareOfRooms float64 `json:"share_of_rooms"`
}

// RoomTypeRow aggregates rooms by bed capacity.
type RoomTypeRow struct {
	BedCapacity  int     `json:"bed_capacity"`
	Rooms        int     `json:"rooms"`
	TotalBeds    int     `json:"total_beds"`
	OccupiedBeds int     `json:"occupied_beds"`
	ShareOfRooms float64 `json:"share_of_rooms"`
}

type datasetFunc func(ctx context.Context, s *Service) (any, error)

var datasetOrder = []string{
	"dorms",
	"rooms",
	"statistics",
	"dorm-statistics",
	"applications",
	"accepted-applications",
	"yearly-trends",
	"dorm-trends",
	"amenities-report",
	"occupancy-report",
	"room-types",
	"payments",
}

var datasets = map[string]datasetFunc{
	"dorms": func(ctx context.Context, s *Service) (any, error) {
		dorms, err := s.reader.ListDormitories(ctx, store.DormitoryFilter{})
		if err != nil {
			return nil, storeError("load dormitories", err)
		}
		out := make([]DormitoryContact, len(dorms))
		for i, d := range dorms {
			out[i] = contactOf(d)
		}
		return out, nil
	},
	"rooms": func(ctx context.Context, s *Service) (any, error) {
		return s.matchingRooms(ctx, RoomQuery{})
	},
	"statistics": func(ctx context.Context, s *Service) (any, error) {
		return s.Statistics(ctx)
	},
	"dorm-statistics": func(ctx context.Context, s *Service) (any, error) {
		st, err := s.Statistics(ctx)
		if err != nil {
			return nil, err
		}
		return st.Dormitories, nil
	},
	"applications": func(ctx context.Context, s *Service) (any, error) {
		apps, err := s.reader.ListApplications(ctx, store.ApplicationFilter{})
		if err != nil {
			return nil, storeError("load applications", err)
		}
		return apps, nil
	},
	"accepted-applications": func(ctx context.Context, s *Service) (any, error) {
		accepted, err := s.reader.ListAcceptedApplications(ctx, store.AcceptedFilter{})
		if err != nil {
			return nil, storeError("load accepted applications", err)
		}
		return accepted, nil
	},
	"yearly-trends": func(ctx context.Context, s *Service) (any, error) {
		tr, err := s.ApplicationTrends(ctx, TrendQuery{})
		if err != nil {
			return nil, err
		}
		return tr.Yearly, nil
	},
	"dorm-trends": func(ctx context.Context, s *Service) (any, error) {
		tr, err := s.ApplicationTrends(ctx, TrendQuery{})
		if err != nil {
			return nil, err
		}
		return tr.ByDormitory, nil
	},
	"amenities-report": func(ctx context.Context, s *Service) (any, error) {
		snap, err := s.LoadSnapshot(ctx, false)
		if err != nil {
			return nil, err
		}
		return amenitiesReport(snap.Rooms), nil
	},
	"occupancy-report": func(ctx context.Context, s *Service) (any, error) {
		hm, err := s.OccupancyHeatmap(ctx)
		if err != nil {
			return nil, err
		}
		return hm.Points, nil
	},
	"room-types": func(ctx context.Context, s *Service) (any, error) {
		snap, err := s.LoadSnapshot(ctx, false)
		if err != nil {
			return nil, err
		}
		return roomTypesReport(snap.Rooms, occupancyOf(snap.Accepted)), nil
	},
	"payments": func(ctx context.Context, s *Service) (any, error) {
		payments, err := s.reader.ListPayments(ctx, store.PaymentFilter{})
		if err != nil {
			return nil, storeError("load payments", err)
		}
		return payments, nil
	},
}

// DatasetNames lists the exportable datasets.
func DatasetNames() []string {
	return append([]string(nil), datasetOrder...)
}

// Dataset resolves a dataset by name and computes it.
func (s *Service) Dataset(ctx context.Context, name string) (any, error) {
	fn, ok := datasets[name]
	if !ok {
		return nil, &Error{Kind: KindUnknownDataset, Message: fmt.Sprintf("unknown dataset %q, expected one of %s", name, strings.Join(datasetOrder, ", "))}
	}
	return fn(ctx, s)
}

// ExportResult is an encoded dataset ready to be served as a download.
type ExportResult struct {
	Dataset     string
	Format      Format
	ContentType string
	Filename    string
	Body        []byte
}

// Export computes a dataset and encodes it. Both names are validated before
// the store is read.
func (s *Service) Export(ctx context.Context, dataset, format string) (*ExportResult, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if _, ok := datasets[dataset]; !ok {
		return nil, &Error{Kind: KindUnknownDataset, Message: fmt.Sprintf("unknown dataset %q", dataset)}
	}
	data, err := s.Dataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	body, err := Encode(data, f)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Dataset:     dataset,
		Format:      f,
		ContentType: f.ContentType(),
		Filename:    fmt.Sprintf("%s-%s.%s", dataset, s.now().Format("20060102"), f),
		Body:        body,
	}, nil
}

func amenitiesReport(rooms []model.Room) []AmenityReportRow {
	type acc struct {
		rooms int
		beds  int
		dorms map[int64]struct{}
	}
	byTag := make(map[string]*acc)
	for _, r := range rooms {
		for _, tag := range r.Amenities {
			a, ok := byTag[tag]
			if !ok {
				a = &acc{dorms: make(map[int64]struct{})}
				byTag[tag] = a
			}
			a.rooms++
			a.beds += r.BedCapacity
			a.dorms[r.DormitoryID] = struct{}{}
		}
	}
	out := make([]AmenityReportRow, 0, len(byTag))
	for _, tag := range amenityTags(keysOf(byTag)) {
		a := byTag[tag]
		row := AmenityReportRow{Amenity: tag, Known: isKnownAmenity(tag)}
		if a != nil {
			row.Rooms = a.rooms
			row.Beds = a.beds
			row.Dormitories = len(a.dorms)
			row.ShareOfRooms = percent(float64(a.rooms), float64(len(rooms)))
		}
		out = append(out, row)
	}
	return out
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func roomTypesReport(rooms []model.Room, occupancy map[int64]int) []RoomTypeRow {
	byCap := make(map[int]*RoomTypeRow)
	for _, r := range rooms {
		row, ok := byCap[r.BedCapacity]
		if !ok {
			row = &RoomTypeRow{BedCapacity: r.BedCapacity}
			byCap[r.BedCapacity] = row
		}
		row.Rooms++
		row.TotalBeds += r.BedCapacity
		row.OccupiedBeds += occupancy[r.ID]
	}
	out := make([]RoomTypeRow, 0, len(byCap))
	for _, row := range byCap {
		row.ShareOfRooms = percent(float64(row.Rooms), float64(len(rooms)))
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BedCapacity < out[j].BedCapacity })
	return out
}

// amenityTags returns the known tags in display order followed by every other
// observed tag sorted.
func amenityTags(observed []string) []string {
	tags := append([]string(nil), model.KnownAmenities...)
	var extra []string
	for _, t := range observed {
		if !isKnownAmenity(t) {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(tags, extra...)
}

func isKnownAmenity(tag string) bool {
	for _, k := range model.KnownAmenities {
		if k == tag {
			return true
		}
	}
	return false
}

// DormitorySummary is an entry of the dormitory list.
type DormitorySummary struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Dormitories lists every dormitory ordered by id.
func (s *Service) Dormitories(ctx context.Context) ([]DormitorySummary, error) {
	dorms, err := s.reader.ListDormitories(ctx, store.DormitoryFilter{})
	if err != nil {
		return nil, storeError("load dormitories", err)
	}
	out := make([]DormitorySummary, len(dorms))
	for i, d := range dorms {
		out[i] = DormitorySummary{ID: d.ID, Name: d.Name, Address: d.Address}
	}
	return out, nil
}

// Amenities lists the known tags plus any other tag present in the data,
// with the number of rooms offering each.
func (s *Service) Amenities(ctx context.Context) ([]AmenityReportRow, error) {
	rooms, err := s.reader.ListRooms(ctx, store.RoomFilter{})
	if err != nil {
		return nil, storeError("load rooms", err)
	}
	return amenitiesReport(rooms), nil
}

// AcceptedByYear lists accepted applications of one academic year.
func (s *Service) AcceptedByYear(ctx context.Context, year string) ([]model.AcceptedApplication, error) {
	if _, err := parseYear(year); err != nil {
		return nil, err
	}
	accepted, err := s.reader.ListAcceptedApplications(ctx, store.AcceptedFilter{AcademicYears: []string{year}})
	if err != nil {
		return nil, storeError("load accepted applications", err)
	}
	return accepted, nil
}

// RoomApplications is a room with its residents and pending applications.
type RoomApplications struct {
	Room         RoomResult                  `json:"room"`
	Accepted     []model.AcceptedApplication `json:"accepted_applications"`
	Applications []model.Application         `json:"applications"`
}

// RoomApplications returns the applications targeting one room.
func (s *Service) RoomApplications(ctx context.Context, roomID int64) (*RoomApplications, error) {
	rooms, err := s.reader.ListRooms(ctx, store.RoomFilter{IDs: []int64{roomID}})
	if err != nil {
		return nil, storeError("load rooms", err)
	}
	if len(rooms) == 0 {
		return nil, &Error{Kind: KindNotFound, Message: "room " + strconv.FormatInt(roomID, 10) + " not found"}
	}
	room := rooms[0]
	dorms, err := s.reader.ListDormitories(ctx, store.DormitoryFilter{IDs: []int64{room.DormitoryID}})
	if err != nil {
		return nil, storeError("load dormitories", err)
	}
	var dorm model.Dormitory
	if len(dorms) > 0 {
		dorm = dorms[0]
	}
	accepted, err := s.reader.ListAcceptedApplications(ctx, store.AcceptedFilter{RoomIDs: []int64{roomID}})
	if err != nil {
		return nil, storeError("load accepted applications", err)
	}
	apps, err := s.reader.ListApplications(ctx, store.ApplicationFilter{RoomIDs: []int64{roomID}, ActiveOnly: true})
	if err != nil {
		return nil, storeError("load applications", err)
	}
	return &RoomApplications{
		Room:         roomResult(room, dorm, len(accepted)),
		Accepted:     accepted,
		Applications: apps,
	}, nil
}

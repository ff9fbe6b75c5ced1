package opendata

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/store"
)

// Reader is the read side of the entity store consumed by the engines.
type Reader interface {
	ListDormitories(ctx context.Context, f store.DormitoryFilter) ([]model.Dormitory, error)
	ListRooms(ctx context.Context, f store.RoomFilter) ([]model.Room, error)
	ListApplications(ctx context.Context, f store.ApplicationFilter) ([]model.Application, error)
	ListAcceptedApplications(ctx context.Context, f store.AcceptedFilter) ([]model.AcceptedApplication, error)
	ListPayments(ctx context.Context, f store.PaymentFilter) ([]model.Payment, error)
	OccupancyByRoom(ctx context.Context, roomIDs []int64) (map[int64]int, error)
}

// Options tunes the engines. Zero fields take the defaults.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	TopN         int
	MaxCompare   int
	// TrendTolerance is the relative slope, in percent, inside which a series is stable.
	TrendTolerance  float64
	CycleStartMonth time.Month
}

func (o Options) withDefaults() Options {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 50
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 1000
	}
	if o.TopN <= 0 {
		o.TopN = 5
	}
	if o.MaxCompare <= 0 {
		o.MaxCompare = 10
	}
	if o.TrendTolerance <= 0 {
		o.TrendTolerance = 5
	}
	if o.CycleStartMonth < time.January || o.CycleStartMonth > time.December {
		o.CycleStartMonth = time.October
	}
	return o
}

// Service answers open-data queries. It holds no state between calls: every
// query reads a fresh snapshot through the Reader.
type Service struct {
	reader Reader
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a query service over r.
func NewService(r Reader, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reader: r,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

// Snapshot is a consistent-enough copy of the entity store for one query.
type Snapshot struct {
	Dormitories  []model.Dormitory
	Rooms        []model.Room
	Applications []model.Application
	Accepted     []model.AcceptedApplication
	Payments     []model.Payment
}

// LoadSnapshot reads every table the aggregations need.
func (s *Service) LoadSnapshot(ctx context.Context, withPayments bool) (*Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.Dormitories, err = s.reader.ListDormitories(ctx, store.DormitoryFilter{}); err != nil {
		return nil, storeError("load dormitories", err)
	}
	if snap.Rooms, err = s.reader.ListRooms(ctx, store.RoomFilter{}); err != nil {
		return nil, storeError("load rooms", err)
	}
	if snap.Applications, err = s.reader.ListApplications(ctx, store.ApplicationFilter{}); err != nil {
		return nil, storeError("load applications", err)
	}
	if snap.Accepted, err = s.reader.ListAcceptedApplications(ctx, store.AcceptedFilter{}); err != nil {
		return nil, storeError("load accepted applications", err)
	}
	if withPayments {
		if snap.Payments, err = s.reader.ListPayments(ctx, store.PaymentFilter{}); err != nil {
			return nil, storeError("load payments", err)
		}
	}
	return &snap, nil
}

// occupancyOf counts accepted applications per room.
func occupancyOf(accepted []model.AcceptedApplication) map[int64]int {
	occ := make(map[int64]int)
	for _, a := range accepted {
		occ[a.RoomID]++
	}
	return occ
}

// round2 rounds to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent returns part/whole*100 rounded to two decimals, or 0 when whole is 0.
func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return round2(sum / float64(n))
}

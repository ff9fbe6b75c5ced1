package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dorm-open-data-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	ListDormitories(ctx context.Context, f DormitoryFilter) ([]model.Dormitory, error)
	ListRooms(ctx context.Context, f RoomFilter) ([]model.Room, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]model.Application, error)
	ListAcceptedApplications(ctx context.Context, f AcceptedFilter) ([]model.AcceptedApplication, error)
	ListPayments(ctx context.Context, f PaymentFilter) ([]model.Payment, error)
	OccupancyByRoom(ctx context.Context, roomIDs []int64) (map[int64]int, error)

	ApproveApplication(ctx context.Context, applicationID int64, opts ApproveOptions) (*model.AcceptedApplication, *model.Payment, error)
	RemoveResident(ctx context.Context, userID int64) (*model.AcceptedApplication, error)
	SetPaymentPaid(ctx context.Context, paymentID int64, paid bool, now time.Time) (*model.Payment, error)
	MarkOverduePayments(ctx context.Context, now time.Time) (int64, error)
	UpsertCatalog(ctx context.Context, items []CatalogItem) (int, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) ListDormitories(ctx context.Context, f DormitoryFilter) ([]model.Dormitory, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	var dorms []model.Dormitory
	if err := q.Find(&dorms).Error; err != nil {
		return nil, fmt.Errorf("list dormitories: %w", err)
	}
	return dorms, nil
}

func (s *gormStore) ListRooms(ctx context.Context, f RoomFilter) ([]model.Room, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.DormitoryIDs) > 0 {
		q = q.Where("dormitory_id IN ?", f.DormitoryIDs)
	}
	var rooms []model.Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *gormStore) ListApplications(ctx context.Context, f ApplicationFilter) ([]model.Application, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.RoomIDs) > 0 {
		q = q.Where("room_id IN ?", f.RoomIDs)
	}
	if len(f.UserIDs) > 0 {
		q = q.Where("user_id IN ?", f.UserIDs)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var apps []model.Application
	if err := q.Find(&apps).Error; err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

func (s *gormStore) ListAcceptedApplications(ctx context.Context, f AcceptedFilter) ([]model.AcceptedApplication, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.RoomIDs) > 0 {
		q = q.Where("room_id IN ?", f.RoomIDs)
	}
	if len(f.UserIDs) > 0 {
		q = q.Where("user_id IN ?", f.UserIDs)
	}
	if len(f.AcademicYears) > 0 {
		q = q.Where("academic_year IN ?", f.AcademicYears)
	}
	var accepted []model.AcceptedApplication
	if err := q.Find(&accepted).Error; err != nil {
		return nil, fmt.Errorf("list accepted applications: %w", err)
	}
	return accepted, nil
}

func (s *gormStore) ListPayments(ctx context.Context, f PaymentFilter) ([]model.Payment, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.UserIDs) > 0 {
		q = q.Where("user_id IN ?", f.UserIDs)
	}
	if len(f.AcceptedApplicationIDs) > 0 {
		q = q.Where("accepted_application_id IN ?", f.AcceptedApplicationIDs)
	}
	var payments []model.Payment
	if err := q.Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// OccupancyByRoom counts accepted applications per room. Rooms without residents
// are absent from the map. A nil or empty roomIDs counts every room.
func (s *gormStore) OccupancyByRoom(ctx context.Context, roomIDs []int64) (map[int64]int, error) {
	type aggRow struct {
		RoomID   int64
		Occupied int
	}
	q := s.db.WithContext(ctx).
		Model(&model.AcceptedApplication{}).
		Select("room_id AS room_id, COUNT(*) AS occupied").
		Group("room_id")
	if len(roomIDs) > 0 {
		q = q.Where("room_id IN ?", roomIDs)
	}
	var aggs []aggRow
	if err := q.Scan(&aggs).Error; err != nil {
		return nil, fmt.Errorf("aggregate occupancy: %w", err)
	}

	occupancy := make(map[int64]int, len(aggs))
	for _, a := range aggs {
		occupancy[a.RoomID] = a.Occupied
	}
	return occupancy, nil
}

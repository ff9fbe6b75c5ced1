package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/db"
	"dorm-open-data-backend/internal/model"
)

var fixedNow = time.Date(2024, 10, 20, 12, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) (Store, *gorm.DB) {
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	return NewGormStore(gormDB), gormDB
}

type lifecycleFixture struct {
	room      model.Room
	firstApp  model.Application
	secondApp model.Application
	otherUser model.Application
}

// seedLifecycle creates a single-bed room, two applications of user 1 and one of user 2.
func seedLifecycle(t *testing.T, gormDB *gorm.DB) lifecycleFixture {
	dorm := model.Dormitory{Name: "Dom A", Address: "Zmaja od Bosne 1"}
	require.NoError(t, gormDB.Create(&dorm).Error)
	room := model.Room{ID: 10, DormitoryID: dorm.ID, BedCapacity: 1, Amenities: []string{"klima"}}
	require.NoError(t, gormDB.Create(&room).Error)
	spare := model.Room{ID: 11, DormitoryID: dorm.ID, BedCapacity: 2}
	require.NoError(t, gormDB.Create(&spare).Error)

	f := lifecycleFixture{
		room:      room,
		firstApp:  model.Application{UserID: 1, StudentIndex: "IB-1", Grade: 9, RoomID: room.ID, IsActive: true},
		secondApp: model.Application{UserID: 1, StudentIndex: "IB-1", Grade: 9, RoomID: spare.ID, IsActive: true},
		otherUser: model.Application{UserID: 2, StudentIndex: "IB-2", Grade: 7, RoomID: room.ID, IsActive: true},
	}
	require.NoError(t, gormDB.Create(&f.firstApp).Error)
	require.NoError(t, gormDB.Create(&f.secondApp).Error)
	require.NoError(t, gormDB.Create(&f.otherUser).Error)
	return f
}

func approveOpts() ApproveOptions {
	return ApproveOptions{
		AcademicYear:  "2024/2025",
		Now:           fixedNow,
		CreatePayment: true,
		Amount:        decimal.RequireFromString("100.00"),
		DueDay:        15,
	}
}

func TestGormStore_ApproveApplication(t *testing.T) {
	s, gormDB := newSQLiteStore(t)
	f := seedLifecycle(t, gormDB)
	ctx := context.Background()

	accepted, payment, err := s.ApproveApplication(ctx, f.firstApp.ID, approveOpts())
	require.NoError(t, err)
	assert.Equal(t, f.firstApp.ID, accepted.ApplicationID)
	assert.Equal(t, int64(1), accepted.UserID)
	assert.Equal(t, f.room.ID, accepted.RoomID)
	assert.Equal(t, "2024/2025", accepted.AcademicYear)

	require.NotNil(t, payment)
	assert.Equal(t, model.PaymentPending, payment.Status)
	assert.True(t, decimal.RequireFromString("100").Equal(payment.Amount))
	// Approved on the 20th, so the 15th of the next month is the first due date.
	assert.Equal(t, "2024-11", payment.PaymentPeriod)
	assert.Equal(t, time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC), payment.DueDate)

	apps, err := s.ListApplications(ctx, ApplicationFilter{UserIDs: []int64{1}})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	for _, a := range apps {
		assert.False(t, a.IsActive, "application %d should be closed", a.ID)
	}

	occupancy, err := s.OccupancyByRoom(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{f.room.ID: 1}, occupancy)
}

func TestGormStore_ApproveApplicationRejections(t *testing.T) {
	testCases := []struct {
		name        string
		prepare     func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64
		expectedErr error
	}{
		{
			name: "Unknown application",
			prepare: func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64 {
				return 999
			},
			expectedErr: ErrNotFound,
		},
		{
			name: "Inactive application",
			prepare: func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64 {
				require.NoError(t, gormDB.Model(&model.Application{}).Where("id = ?", f.otherUser.ID).UpdateColumn("is_active", false).Error)
				return f.otherUser.ID
			},
			expectedErr: ErrApplicationInactive,
		},
		{
			name: "Application accepted earlier",
			prepare: func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64 {
				_, _, err := s.ApproveApplication(context.Background(), f.firstApp.ID, approveOpts())
				require.NoError(t, err)
				require.NoError(t, gormDB.Model(&model.Application{}).Where("id = ?", f.firstApp.ID).UpdateColumn("is_active", true).Error)
				return f.firstApp.ID
			},
			expectedErr: ErrAlreadyAccepted,
		},
		{
			name: "User already housed",
			prepare: func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64 {
				_, _, err := s.ApproveApplication(context.Background(), f.firstApp.ID, approveOpts())
				require.NoError(t, err)
				require.NoError(t, gormDB.Model(&model.Application{}).Where("id = ?", f.secondApp.ID).UpdateColumn("is_active", true).Error)
				return f.secondApp.ID
			},
			expectedErr: ErrAlreadyHoused,
		},
		{
			name: "Room at capacity",
			prepare: func(t *testing.T, s Store, gormDB *gorm.DB, f lifecycleFixture) int64 {
				_, _, err := s.ApproveApplication(context.Background(), f.firstApp.ID, approveOpts())
				require.NoError(t, err)
				return f.otherUser.ID
			},
			expectedErr: ErrRoomFull,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, gormDB := newSQLiteStore(t)
			f := seedLifecycle(t, gormDB)

			id := tc.prepare(t, s, gormDB, f)
			_, _, err := s.ApproveApplication(context.Background(), id, approveOpts())
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestGormStore_ApproveApplicationInvalidYear(t *testing.T) {
	s, gormDB := newSQLiteStore(t)
	f := seedLifecycle(t, gormDB)

	opts := approveOpts()
	opts.AcademicYear = "2024-2025"
	_, _, err := s.ApproveApplication(context.Background(), f.firstApp.ID, opts)
	assert.Error(t, err)

	var count int64
	gormDB.Model(&model.AcceptedApplication{}).Count(&count)
	assert.Zero(t, count)
}

func TestGormStore_RemoveResident(t *testing.T) {
	s, gormDB := newSQLiteStore(t)
	f := seedLifecycle(t, gormDB)
	ctx := context.Background()

	_, _, err := s.ApproveApplication(ctx, f.firstApp.ID, approveOpts())
	require.NoError(t, err)

	removed, err := s.RemoveResident(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, f.room.ID, removed.RoomID)

	_, err = s.RemoveResident(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	// The freed bed can be given to the other applicant.
	accepted, _, err := s.ApproveApplication(ctx, f.otherUser.ID, approveOpts())
	require.NoError(t, err)
	assert.Equal(t, int64(2), accepted.UserID)
}

func TestGormStore_Payments(t *testing.T) {
	s, gormDB := newSQLiteStore(t)
	ctx := context.Background()

	pastDue := model.Payment{AcceptedApplicationID: 1, UserID: 1, Amount: decimal.NewFromInt(100), PaymentPeriod: "2024-09",
		Status: model.PaymentPending, DueDate: fixedNow.AddDate(0, -1, 0)}
	future := model.Payment{AcceptedApplicationID: 1, UserID: 1, Amount: decimal.NewFromInt(100), PaymentPeriod: "2024-11",
		Status: model.PaymentPending, DueDate: fixedNow.AddDate(0, 1, 0)}
	require.NoError(t, gormDB.Create(&pastDue).Error)
	require.NoError(t, gormDB.Create(&future).Error)

	n, err := s.MarkOverduePayments(ctx, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	paid, err := s.SetPaymentPaid(ctx, pastDue.ID, true, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	unpaid, err := s.SetPaymentPaid(ctx, pastDue.ID, false, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentOverdue, unpaid.Status)
	assert.Nil(t, unpaid.PaidAt)

	unpaidFuture, err := s.SetPaymentPaid(ctx, future.ID, false, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, unpaidFuture.Status)

	payments, err := s.ListPayments(ctx, PaymentFilter{IDs: []int64{pastDue.ID}})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentOverdue, payments[0].Status)
	assert.Nil(t, payments[0].PaidAt)

	_, err = s.SetPaymentPaid(ctx, 999, true, fixedNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_UpsertCatalog(t *testing.T) {
	s, _ := newSQLiteStore(t)
	ctx := context.Background()

	items := []CatalogItem{
		{ID: 100, BedCapacity: 2, Amenities: []string{"terasa", "klima"}, Dormitory: CatalogDormRef{Name: "Dom A", Address: "Zmaja od Bosne 1"}},
		{ID: 101, BedCapacity: 3, Dormitory: CatalogDormRef{Name: "Dom B", Address: "Titova 5"}},
		{ID: 102, BedCapacity: 0, Dormitory: CatalogDormRef{Name: "Dom B"}},
	}

	written, err := s.UpsertCatalog(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	written, err = s.UpsertCatalog(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 0, written, "unchanged rooms should be skipped")

	items[1].BedCapacity = 4
	items[1].Dormitory.Phone = "+387 33 000 000"
	written, err = s.UpsertCatalog(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	rooms, err := s.ListRooms(ctx, RoomFilter{})
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, []string{"klima", "terasa"}, []string(rooms[0].Amenities))
	assert.Equal(t, 4, rooms[1].BedCapacity)

	dorms, err := s.ListDormitories(ctx, DormitoryFilter{})
	require.NoError(t, err)
	require.Len(t, dorms, 2)
	byName := map[string]model.Dormitory{}
	for _, d := range dorms {
		byName[d.Name] = d
	}
	assert.Equal(t, "+387 33 000 000", byName["Dom B"].Phone)
	assert.Equal(t, byName["Dom B"].ID, rooms[1].DormitoryID)
}

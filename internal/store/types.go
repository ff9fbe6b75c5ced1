package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrApplicationInactive = errors.New("application is not active")
	ErrAlreadyAccepted     = errors.New("application is already accepted")
	ErrAlreadyHoused       = errors.New("user already has an accepted application")
	ErrRoomFull            = errors.New("room has no free beds")
)

// DormitoryFilter narrows ListDormitories. Empty slices mean no constraint.
type DormitoryFilter struct {
	IDs []int64
}

// RoomFilter narrows ListRooms.
type RoomFilter struct {
	IDs          []int64
	DormitoryIDs []int64
}

// ApplicationFilter narrows ListApplications.
type ApplicationFilter struct {
	IDs        []int64
	RoomIDs    []int64
	UserIDs    []int64
	ActiveOnly bool
}

// AcceptedFilter narrows ListAcceptedApplications.
type AcceptedFilter struct {
	IDs           []int64
	RoomIDs       []int64
	UserIDs       []int64
	AcademicYears []string
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	IDs                    []int64
	UserIDs                []int64
	AcceptedApplicationIDs []int64
}

// CatalogItem is one room record from the upstream catalogue, carrying its dormitory.
type CatalogItem struct {
	ID          int64          `json:"id"`
	BedCapacity int            `json:"bed_capacity"`
	Amenities   []string       `json:"amenities"`
	Dormitory   CatalogDormRef `json:"dormitory"`
}

// CatalogDormRef identifies a dormitory by its unique name.
type CatalogDormRef struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
}

// ApproveOptions controls ApproveApplication.
type ApproveOptions struct {
	AcademicYear string
	Now          time.Time
	// When CreatePayment is set a pending payment for the current period is created.
	CreatePayment bool
	Amount        decimal.Decimal
	DueDay        int
}

package model

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dorm-open-data-backend/internal/parse"
)

// Room is a bedable unit within a dormitory.
type Room struct {
	ID          int64                       `gorm:"primaryKey" json:"id"` // Upstream ID when imported
	DormitoryID int64                       `gorm:"index;not null" json:"dormitory_id"`
	BedCapacity int                         `gorm:"not null" json:"bed_capacity"`
	Amenities   datatypes.JSONSlice[string] `json:"amenities"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`

	// Associations
	Dormitory *Dormitory `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave keeps the amenity list a sorted set and rejects empty rooms.
func (r *Room) BeforeSave(tx *gorm.DB) error {
	if r.BedCapacity < 1 {
		return errors.New("room bed capacity must be at least 1")
	}
	r.Amenities = parse.NormalizeAmenities(r.Amenities)
	return nil
}

// HasAmenities reports whether the room offers every tag in required.
func (r *Room) HasAmenities(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range r.Amenities {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package model

import "time"

// Dormitory represents a student dormitory building.
type Dormitory struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Address   string    `gorm:"size:256" json:"address"`
	Phone     string    `gorm:"size:64" json:"phone"`
	Email     string    `gorm:"size:128" json:"email"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Rooms []Room `gorm:"foreignKey:DormitoryID" json:"-"`
}

package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"dorm-open-data-backend/internal/parse"
)

const (
	MinGrade = 6
	MaxGrade = 10
)

// Application is a pending student request for a room.
type Application struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"index;not null" json:"user_id"`
	StudentIndex string    `gorm:"size:32;not null" json:"student_index"`
	Grade        int       `gorm:"not null" json:"grade"`
	RoomID       int64     `gorm:"index;not null" json:"room_id"`
	IsActive     bool      `gorm:"index;not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeSave enforces the grade domain.
func (a *Application) BeforeSave(tx *gorm.DB) error {
	return validateGrade(a.Grade)
}

// AcceptedApplication is an approved application tied to an academic year.
// Each row occupies one bed in its room.
type AcceptedApplication struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ApplicationID int64     `gorm:"uniqueIndex;not null" json:"application_id"`
	UserID        int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	StudentIndex  string    `gorm:"size:32;not null" json:"student_index"`
	Grade         int       `gorm:"not null" json:"grade"`
	RoomID        int64     `gorm:"index;not null" json:"room_id"`
	AcademicYear  string    `gorm:"size:9;index;not null" json:"academic_year"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeSave enforces the grade domain and the academic year format.
func (a *AcceptedApplication) BeforeSave(tx *gorm.DB) error {
	if err := validateGrade(a.Grade); err != nil {
		return err
	}
	_, err := parse.ParseAcademicYear(a.AcademicYear)
	return err
}

func validateGrade(g int) error {
	if g < MinGrade || g > MaxGrade {
		return fmt.Errorf("grade %d outside %d-%d", g, MinGrade, MaxGrade)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/parse"
)

// ApproveApplication converts an active application into an accepted one for
// the given academic year. The room's bed capacity is enforced, the approved
// application is closed and every other active application of the same user
// is voided.
func (s *gormStore) ApproveApplication(ctx context.Context, applicationID int64, opts ApproveOptions) (*model.AcceptedApplication, *model.Payment, error) {
	if _, err := parse.ParseAcademicYear(opts.AcademicYear); err != nil {
		return nil, nil, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	var accepted model.AcceptedApplication
	var payment *model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app model.Application
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&app, applicationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("application %d: %w", applicationID, ErrNotFound)
			}
			return fmt.Errorf("failed to load application %d: %w", applicationID, err)
		}
		if !app.IsActive {
			return fmt.Errorf("application %d: %w", applicationID, ErrApplicationInactive)
		}

		var existing int64
		if err := tx.Model(&model.AcceptedApplication{}).Where("application_id = ?", app.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check accepted rows for application %d: %w", app.ID, err)
		}
		if existing > 0 {
			return fmt.Errorf("application %d: %w", app.ID, ErrAlreadyAccepted)
		}
		if err := tx.Model(&model.AcceptedApplication{}).Where("user_id = ?", app.UserID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check accepted rows for user %d: %w", app.UserID, err)
		}
		if existing > 0 {
			return fmt.Errorf("user %d: %w", app.UserID, ErrAlreadyHoused)
		}

		var room model.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, app.RoomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("room %d: %w", app.RoomID, ErrNotFound)
			}
			return fmt.Errorf("failed to load room %d: %w", app.RoomID, err)
		}
		var occupied int64
		if err := tx.Model(&model.AcceptedApplication{}).Where("room_id = ?", room.ID).Count(&occupied).Error; err != nil {
			return fmt.Errorf("failed to count residents of room %d: %w", room.ID, err)
		}
		if occupied >= int64(room.BedCapacity) {
			return fmt.Errorf("room %d (%d/%d): %w", room.ID, occupied, room.BedCapacity, ErrRoomFull)
		}

		accepted = model.AcceptedApplication{
			ApplicationID: app.ID,
			UserID:        app.UserID,
			StudentIndex:  app.StudentIndex,
			Grade:         app.Grade,
			RoomID:        app.RoomID,
			AcademicYear:  opts.AcademicYear,
		}
		if err := tx.Create(&accepted).Error; err != nil {
			return fmt.Errorf("failed to create accepted application: %w", err)
		}

		if err := tx.Model(&model.Application{}).
			Where("user_id = ? AND is_active = ?", app.UserID, true).
			UpdateColumn("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to close applications of user %d: %w", app.UserID, err)
		}

		if opts.CreatePayment {
			payment = firstPayment(accepted, opts)
			if err := tx.Create(payment).Error; err != nil {
				return fmt.Errorf("failed to create first payment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &accepted, payment, nil
}

// firstPayment bills the month of approval, due on DueDay of that month or of
// the following month when the day has already passed.
func firstPayment(accepted model.AcceptedApplication, opts ApproveOptions) *model.Payment {
	now := opts.Now.UTC()
	due := time.Date(now.Year(), now.Month(), opts.DueDay, 0, 0, 0, 0, time.UTC)
	if due.Before(now) {
		due = due.AddDate(0, 1, 0)
	}
	return &model.Payment{
		AcceptedApplicationID: accepted.ID,
		UserID:                accepted.UserID,
		Amount:                opts.Amount,
		PaymentPeriod:         due.Format("2006-01"),
		Status:                model.PaymentPending,
		DueDate:               due,
	}
}

// RemoveResident deletes the accepted application of a user, freeing one bed.
// It serves both eviction and voluntary checkout and returns the removed row.
func (s *gormStore) RemoveResident(ctx context.Context, userID int64) (*model.AcceptedApplication, error) {
	var accepted model.AcceptedApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&accepted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("resident %d: %w", userID, ErrNotFound)
			}
			return fmt.Errorf("failed to load resident %d: %w", userID, err)
		}
		if err := tx.Delete(&model.AcceptedApplication{}, accepted.ID).Error; err != nil {
			return fmt.Errorf("failed to delete accepted application %d: %w", accepted.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

// SetPaymentPaid toggles a payment between paid and unpaid. An unpaid payment
// whose due date has passed goes straight back to overdue.
func (s *gormStore) SetPaymentPaid(ctx context.Context, paymentID int64, paid bool, now time.Time) (*model.Payment, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("payment %d: %w", paymentID, ErrNotFound)
			}
			return fmt.Errorf("failed to load payment %d: %w", paymentID, err)
		}

		updates := map[string]any{}
		if paid {
			paidAt := now.UTC()
			payment.Status = model.PaymentPaid
			payment.PaidAt = &paidAt
			updates["status"] = model.PaymentPaid
			updates["paid_at"] = paidAt
		} else {
			payment.Status = model.PaymentPending
			if payment.DueDate.Before(now) {
				payment.Status = model.PaymentOverdue
			}
			payment.PaidAt = nil
			updates["status"] = payment.Status
			updates["paid_at"] = nil
		}
		if err := tx.Model(&model.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update payment %d: %w", payment.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkOverduePayments moves every pending payment due before now to overdue.
func (s *gormStore) MarkOverduePayments(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("status = ? AND due_date < ?", model.PaymentPending, now.UTC()).
		Update("status", model.PaymentOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark overdue payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}

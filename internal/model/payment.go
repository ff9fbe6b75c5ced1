package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a monthly payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// PaymentStatuses lists every status in reporting order.
var PaymentStatuses = []PaymentStatus{PaymentPaid, PaymentPending, PaymentOverdue}

// Payment is one period's rent for an accepted application.
type Payment struct {
	ID                    int64           `gorm:"primaryKey" json:"id"`
	AcceptedApplicationID int64           `gorm:"index;not null" json:"accepted_application_id"`
	UserID                int64           `gorm:"index;not null" json:"user_id"`
	Amount                decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaymentPeriod         string          `gorm:"size:7;not null" json:"payment_period"` // YYYY-MM
	Status                PaymentStatus   `gorm:"size:16;index;not null" json:"status"`
	DueDate               time.Time       `gorm:"not null" json:"due_date"`
	PaidAt                *time.Time      `json:"paid_at"`
	Notes                 string          `gorm:"size:512" json:"notes,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

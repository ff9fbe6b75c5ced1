package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dorm-open-data-backend/internal/events"
	"dorm-open-data-backend/internal/model"
	"dorm-open-data-backend/internal/mw"
	"dorm-open-data-backend/internal/parse"
	"dorm-open-data-backend/internal/store"
)

type approveRequest struct {
	AcademicYear  string           `json:"academic_year"`
	CreatePayment *bool            `json:"create_payment"`
	Amount        *decimal.Decimal `json:"amount"`
}

// ApproveApplication handles POST /api/v1/applications/:id/approve.
// Without academic_year the current cycle is used.
func (h *Handler) ApproveApplication(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, invalidValue("invalid request"))
			return
		}
	}

	now := h.now()
	opts := store.ApproveOptions{
		AcademicYear:  req.AcademicYear,
		Now:           now,
		CreatePayment: h.payments.CreateOnApprove,
		Amount:        h.payments.Amount,
		DueDay:        h.payments.DueDay,
	}
	if opts.AcademicYear == "" {
		opts.AcademicYear = parse.AcademicYearOf(now, h.openData.Options().CycleStartMonth).String()
	} else if _, err := parse.ParseAcademicYear(opts.AcademicYear); err != nil {
		h.respondError(c, invalidValue(err.Error()))
		return
	}
	if req.CreatePayment != nil {
		opts.CreatePayment = *req.CreatePayment
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			h.respondError(c, invalidValue("amount must not be negative"))
			return
		}
		opts.Amount = *req.Amount
	}

	ctx := c.Request.Context()
	accepted, payment, err := h.store.ApproveApplication(ctx, id, opts)
	h.metrics.ObserveLifecycle("approve", err)
	if err != nil {
		h.respondError(c, storeFailure("approve application", err))
		return
	}
	h.afterWrite(ctx, c)

	event := events.ApplicationApproved{
		AcceptedApplicationID: accepted.ID,
		ApplicationID:         accepted.ApplicationID,
		UserID:                accepted.UserID,
		RoomID:                accepted.RoomID,
		AcademicYear:          accepted.AcademicYear,
		OccurredAt:            now,
	}
	if payment != nil {
		event.PaymentID = &payment.ID
	}
	if err := h.events.PublishApproved(ctx, event); err != nil {
		mw.LoggerFrom(c, h.logger).Warn("failed to publish approval event", zap.Int64("application_id", id), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{"accepted_application": accepted, "payment": payment})
}

// EvictResident handles POST /api/v1/residents/:user_id/evict.
func (h *Handler) EvictResident(c *gin.Context) {
	h.removeResident(c, events.ReasonEviction)
}

// CheckoutResident handles POST /api/v1/residents/:user_id/checkout.
func (h *Handler) CheckoutResident(c *gin.Context) {
	h.removeResident(c, events.ReasonCheckout)
}

func (h *Handler) removeResident(c *gin.Context, reason string) {
	userID, err := pathID(c, "user_id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	removed, err := h.store.RemoveResident(ctx, userID)
	h.metrics.ObserveLifecycle(reason, err)
	if err != nil {
		h.respondError(c, storeFailure("remove resident", err))
		return
	}
	h.afterWrite(ctx, c)

	log := mw.LoggerFrom(c, h.logger).With(zap.Int64("room_id", removed.RoomID), zap.Int64("user_id", userID))
	log.Info("resident removed", zap.String("reason", reason))
	if err := h.events.PublishVacated(ctx, events.RoomVacated{
		RoomID:     removed.RoomID,
		UserID:     userID,
		Reason:     reason,
		OccurredAt: h.now(),
	}); err != nil {
		log.Warn("failed to publish vacancy event", zap.Error(err))
	}
	if h.dispatcher != nil {
		h.dispatcher.Dispatch(removed.RoomID)
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// MarkPaymentPaid handles POST /api/v1/payments/:id/paid.
func (h *Handler) MarkPaymentPaid(c *gin.Context) {
	h.setPaymentPaid(c, true)
}

// MarkPaymentUnpaid handles POST /api/v1/payments/:id/unpaid.
func (h *Handler) MarkPaymentUnpaid(c *gin.Context) {
	h.setPaymentPaid(c, false)
}

func (h *Handler) setPaymentPaid(c *gin.Context, paid bool) {
	id, err := pathID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	var payment *model.Payment
	payment, err = h.store.SetPaymentPaid(ctx, id, paid, h.now())
	op := "payment_unpaid"
	if paid {
		op = "payment_paid"
	}
	h.metrics.ObserveLifecycle(op, err)
	if err != nil {
		h.respondError(c, storeFailure("update payment", err))
		return
	}
	h.afterWrite(ctx, c)
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// SweepOverduePayments handles POST /api/v1/payments/overdue-sweep.
func (h *Handler) SweepOverduePayments(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()
	n, err := h.store.MarkOverduePayments(ctx, h.now())
	h.metrics.ObserveLifecycle("overdue_sweep", err)
	if err != nil {
		h.respondError(c, storeFailure("mark overdue payments", err))
		return
	}
	if n > 0 {
		h.afterWrite(ctx, c)
	}
	mw.LoggerFrom(c, h.logger).Info("overdue sweep finished", zap.Int64("updated", n), zap.Duration("took", time.Since(start)))
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dorm-open-data-backend/internal/metrics"
	"dorm-open-data-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Dispatcher queues a vacancy notification for a room.
type Dispatcher interface {
	Dispatch(roomID int64)
}

// WorkerPool fans vacancy alerts out to the subscribers of a room.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWorkerPool creates a new worker pool. m may be nil.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *zap.Logger, m *metrics.Metrics) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger.Named("notification"),
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("worker started")
	for {
		select {
		case roomID := <-wp.jobs:
			log.Debug("processing room", zap.Int64("room_id", roomID))
			wp.notifyRoom(ctx, roomID)
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		}
	}
}

// Dispatch queues a room whose bed has just been freed. It blocks while the
// queue is full.
func (wp *WorkerPool) Dispatch(roomID int64) {
	wp.jobs <- roomID
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

func (wp *WorkerPool) notifyRoom(ctx context.Context, roomID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_room_mapping srm ON srm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("srm.room_id = ?", roomID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error("failed to fetch subscriptions", zap.Int64("room_id", roomID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	wp.logger.Info("sending vacancy notifications", zap.Int64("room_id", roomID), zap.Int("subscribers", len(subscriptions)))

	message := []byte(fmt.Sprintf("A bed is free in room %d", roomID))
	var names []string
	if err := wp.db.WithContext(ctx).
		Model(&model.Room{}).
		Joins("JOIN dormitories ON dormitories.id = rooms.dormitory_id").
		Where("rooms.id = ?", roomID).
		Limit(1).
		Pluck("dormitories.name", &names).Error; err != nil {
		wp.logger.Warn("failed to look up dormitory of room", zap.Int64("room_id", roomID), zap.Error(err))
	} else if len(names) > 0 && names[0] != "" {
		message = []byte(fmt.Sprintf("A bed is free in room %d (%s)", roomID, names[0]))
	}

	for _, sub := range subscriptions {
		wp.send(ctx, sub, message)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.metrics.ObserveNotification(metrics.OutcomeFailure)
		wp.logger.Warn("failed to send notification", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGone {
		wp.metrics.ObserveNotification(metrics.OutcomeSuccess)
		return
	}

	wp.metrics.ObserveNotification(metrics.OutcomeGone)
	wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
	err = wp.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_room_mapping WHERE push_subscription_endpoint = ?", sub.Endpoint).Error; err != nil {
			return err
		}
		return tx.Delete(&sub).Error
	})
	if err != nil {
		wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/events"
	"dorm-open-data-backend/internal/metrics"
	"dorm-open-data-backend/internal/mw"
	"dorm-open-data-backend/internal/notification"
	"dorm-open-data-backend/internal/opendata"
	"dorm-open-data-backend/internal/store"
)

// Deps are the collaborators of Handler. Only Store and OpenData are required.
type Deps struct {
	Store      store.Store
	OpenData   *opendata.Service
	WebPush    *webpush.Options
	Dispatcher notification.Dispatcher
	Events     events.Publisher
	Cache      mw.CacheStore
	Payments   config.PaymentsConfig
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	openData   *opendata.Service
	webpush    *webpush.Options
	dispatcher notification.Dispatcher
	events     events.Publisher
	cache      mw.CacheStore
	payments   config.PaymentsConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		store:      d.Store,
		openData:   d.OpenData,
		webpush:    d.WebPush,
		dispatcher: d.Dispatcher,
		events:     d.Events,
		cache:      d.Cache,
		payments:   d.Payments,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if h.events == nil {
		h.events = events.NopPublisher{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

type errorResponse struct {
	Error string        `json:"error"`
	Kind  opendata.Kind `json:"kind,omitempty"`
}

func invalidValue(message string) error {
	return &opendata.Error{Kind: opendata.KindInvalidValue, Message: message}
}

// storeFailure keeps housing rule violations and typed query errors as they
// are and reports anything else from the store as StoreUnavailable.
func storeFailure(op string, err error) error {
	switch {
	case opendata.KindOf(err) != "",
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrApplicationInactive),
		errors.Is(err, store.ErrAlreadyAccepted),
		errors.Is(err, store.ErrAlreadyHoused),
		errors.Is(err, store.ErrRoomFull):
		return err
	}
	return &opendata.Error{Kind: opendata.KindStoreUnavailable, Message: op, Err: err}
}

// respondError maps query and store errors onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := opendata.KindOf(err)
	switch kind {
	case opendata.KindConflictingFilter, opendata.KindInvalidRange, opendata.KindInvalidValue,
		opendata.KindEmptyInput, opendata.KindTooManyInputs, opendata.KindUnknownDataset:
		status = http.StatusBadRequest
	case opendata.KindNotFound:
		status = http.StatusNotFound
	case opendata.KindConflict:
		status = http.StatusConflict
	case opendata.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	default:
		switch {
		case errors.Is(err, store.ErrNotFound):
			status, kind = http.StatusNotFound, opendata.KindNotFound
		case errors.Is(err, store.ErrApplicationInactive), errors.Is(err, store.ErrAlreadyAccepted),
			errors.Is(err, store.ErrAlreadyHoused), errors.Is(err, store.ErrRoomFull):
			status, kind = http.StatusConflict, opendata.KindConflict
		}
	}

	log := mw.LoggerFrom(c, h.logger)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error(), Kind: kind})
}

// afterWrite drops cached open-data responses once a write has succeeded.
func (h *Handler) afterWrite(ctx context.Context, c *gin.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Flush(ctx); err != nil {
		mw.LoggerFrom(c, h.logger).Warn("failed to flush response cache", zap.Error(err))
	}
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		mw.LoggerFrom(c, h.logger).Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

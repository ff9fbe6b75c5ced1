// Package importer keeps the room catalogue in sync with the upstream housing
// registry and sweeps overdue payments on the same schedule.
package importer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/metrics"
	"dorm-open-data-backend/internal/store"
)

// Store is the part of store.Store the importer writes through.
type Store interface {
	UpsertCatalog(ctx context.Context, items []store.CatalogItem) (int, error)
	MarkOverduePayments(ctx context.Context, now time.Time) (int64, error)
}

// Report summarises one sync cycle.
type Report struct {
	Fetched int
	Written int
	Overdue int64
	// Partial is set when a page failed after earlier pages succeeded.
	Partial bool
}

// Service orchestrates the catalogue import.
type Service struct {
	cfg     config.ImporterConfig
	store   Store
	client  *resty.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates the importer. m may be nil.
func NewService(cfg config.ImporterConfig, st Store, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeaders(cfg.Headers)

	return &Service{
		cfg:     cfg,
		store:   st,
		client:  client,
		logger:  logger.Named("importer"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run syncs once and then every configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("importer is disabled, not starting")
		return
	}
	s.logger.Info("starting importer", zap.Duration("interval", s.cfg.Interval))

	s.runCycle(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("importer shutting down")
			return
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	report, err := s.SyncOnce(ctx)
	if err != nil {
		s.logger.Error("sync cycle failed", zap.Error(err))
		return
	}
	s.logger.Info("sync cycle finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("written", report.Written),
		zap.Int64("overdue", report.Overdue),
		zap.Bool("partial", report.Partial),
	)
}

// SyncOnce pages through the upstream catalogue, upserts what it received and
// then marks overdue payments. A fetch failure before any item arrived skips
// the upsert so the local catalogue is left untouched.
func (s *Service) SyncOnce(ctx context.Context) (Report, error) {
	var report Report

	if s.cfg.URL != "" {
		items, fetchErr := s.fetchAll(ctx)
		report.Fetched = len(items)
		switch {
		case fetchErr != nil && len(items) == 0:
			s.metrics.ObserveImport(0, fetchErr)
			s.logger.Warn("catalogue fetch failed with no items, skipping upsert", zap.Error(fetchErr))
		default:
			report.Partial = fetchErr != nil
			if report.Partial {
				s.logger.Warn("catalogue fetch stopped early", zap.Int("items", len(items)), zap.Error(fetchErr))
			}
			written, err := s.store.UpsertCatalog(ctx, items)
			s.metrics.ObserveImport(written, err)
			if err != nil {
				return report, fmt.Errorf("upsert catalogue: %w", err)
			}
			report.Written = written
		}
	}

	overdue, err := s.store.MarkOverduePayments(ctx, s.now())
	if err != nil {
		return report, err
	}
	report.Overdue = overdue
	return report, nil
}

func (s *Service) fetchAll(ctx context.Context) ([]store.CatalogItem, error) {
	var items []store.CatalogItem
	pageSize := s.cfg.PageSize
	total := 1
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		s.logger.Debug("fetched catalogue page", zap.Int("page", page), zap.Int("items", len(items)), zap.Int("total", total))
	}
	return items, nil
}

func (s *Service) fetchPage(ctx context.Context, page int) (*pageResponse, error) {
	var result pageResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":      strconv.Itoa(page),
			"page_size": strconv.Itoa(s.cfg.PageSize),
		}).
		SetResult(&result).
		Get(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode())
	}
	if result.Code != 0 {
		return nil, fmt.Errorf("upstream error %d: %s", result.Code, result.Message)
	}
	return &result, nil
}

package importer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dorm-open-data-backend/config"
	"dorm-open-data-backend/internal/db"
	"dorm-open-data-backend/internal/store"
)

// fakeStore records what the importer wrote.
type fakeStore struct {
	upserted   []store.CatalogItem
	upsertErr  error
	sweeps     int
	overdueErr error
}

func (f *fakeStore) UpsertCatalog(ctx context.Context, items []store.CatalogItem) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, items...)
	return len(items), nil
}

func (f *fakeStore) MarkOverduePayments(ctx context.Context, now time.Time) (int64, error) {
	f.sweeps++
	return 2, f.overdueErr
}

var catalogue = []store.CatalogItem{
	{ID: 100, BedCapacity: 2, Amenities: []string{"klima"}, Dormitory: store.CatalogDormRef{Name: "Dom A", Address: "Zmaja od Bosne 1"}},
	{ID: 101, BedCapacity: 3, Dormitory: store.CatalogDormRef{Name: "Dom A", Address: "Zmaja od Bosne 1"}},
	{ID: 200, BedCapacity: 1, Amenities: []string{"terasa"}, Dormitory: store.CatalogDormRef{Name: "Dom B", Address: "Titova 5"}},
}

// upstream serves catalogue in pages. Pages listed in failPages answer 500.
func upstream(t *testing.T, failPages map[int]bool, requests *int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			atomic.AddInt32(requests, 1)
		}
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if failPages[page] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var resp pageResponse
		resp.Data.Page = page
		resp.Data.PageSize = size
		resp.Data.Total = len(catalogue)
		start := (page - 1) * size
		if start < len(catalogue) {
			end := min(start+size, len(catalogue))
			resp.Data.Items = catalogue[start:end]
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(url string) config.ImporterConfig {
	return config.ImporterConfig{
		Enabled:        true,
		URL:            url,
		PageSize:       2,
		TimeoutSeconds: 5,
		Headers:        map[string]string{"X-Api-Key": "secret"},
		Interval:       time.Hour,
	}
}

func TestSyncOnce(t *testing.T) {
	testCases := []struct {
		name            string
		failPages       map[int]bool
		upsertErr       error
		expectedItems   int
		expectedReport  Report
		expectedErr     bool
		expectedUpserts bool
	}{
		{
			name:            "All pages",
			expectedItems:   3,
			expectedReport:  Report{Fetched: 3, Written: 3, Overdue: 2},
			expectedUpserts: true,
		},
		{
			name:            "Second page fails",
			failPages:       map[int]bool{2: true},
			expectedItems:   2,
			expectedReport:  Report{Fetched: 2, Written: 2, Overdue: 2, Partial: true},
			expectedUpserts: true,
		},
		{
			name:           "First page fails",
			failPages:      map[int]bool{1: true},
			expectedReport: Report{Overdue: 2},
		},
		{
			name:           "Upsert fails",
			upsertErr:      errors.New("disk full"),
			expectedReport: Report{Fetched: 3},
			expectedErr:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := upstream(t, tc.failPages, nil)
			fs := &fakeStore{upsertErr: tc.upsertErr}
			svc := NewService(testConfig(server.URL), fs, nil, nil)

			report, err := svc.SyncOnce(context.Background())
			if tc.expectedErr {
				assert.Error(t, err)
				assert.Zero(t, fs.sweeps)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, fs.sweeps, "overdue sweep runs every cycle")
			}
			assert.Equal(t, tc.expectedReport, report)
			assert.Len(t, fs.upserted, tc.expectedItems)
		})
	}
}

func TestSyncOnce_UpstreamErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code": 401, "message": "bad key"}`))
	}))
	defer server.Close()

	fs := &fakeStore{}
	svc := NewService(testConfig(server.URL), fs, nil, nil)
	report, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Fetched)
	assert.Empty(t, fs.upserted)
}

func TestSyncOnce_NoURLOnlySweeps(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(config.ImporterConfig{PageSize: 10}, fs, nil, nil)

	report, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Overdue: 2}, report)
	assert.Equal(t, 1, fs.sweeps)
}

func TestSyncOnce_SQLite(t *testing.T) {
	gormDB, err := db.Init(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})
	st := store.NewGormStore(gormDB)

	server := upstream(t, nil, nil)
	svc := NewService(testConfig(server.URL), st, nil, nil)

	report, err := svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)

	rooms, err := st.ListRooms(context.Background(), store.RoomFilter{})
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, []string{"klima"}, []string(rooms[0].Amenities))

	report, err = svc.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Written, "second sync writes nothing")
}

func TestRun(t *testing.T) {
	var requests int32
	server := upstream(t, nil, &requests)
	fs := &fakeStore{}
	svc := NewService(testConfig(server.URL), fs, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&requests) >= 2 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("importer did not stop")
	}
}

func TestRun_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	fs := &fakeStore{}
	NewService(cfg, fs, nil, nil).Run(context.Background())
	assert.Zero(t, fs.sweeps)
}

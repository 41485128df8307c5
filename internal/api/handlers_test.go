// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/jdbarnes/lifelogd/internal/config"
	"github.com/jdbarnes/lifelogd/internal/engine"
	"github.com/jdbarnes/lifelogd/internal/ledger"
	"github.com/jdbarnes/lifelogd/internal/limitless"
	"github.com/jdbarnes/lifelogd/internal/models"
	"github.com/jdbarnes/lifelogd/internal/store"
)

const testAdminKey = "test-admin-key"

// stubFetcher serves a fixed record set with date filtering and
// direction ordering. Pages never exceed the requested limit and no
// cursor is ever issued; the record set fits one page in these tests.
type stubFetcher struct {
	records []models.LifelogRecord
}

func (s *stubFetcher) FetchPage(_ context.Context, req limitless.PageRequest) (*limitless.Page, error) {
	var view []models.LifelogRecord
	for _, r := range s.records {
		if req.Date != "" && r.StartDate(time.UTC) != req.Date {
			continue
		}
		view = append(view, r)
	}
	if req.Direction == limitless.DirectionDesc {
		for i, j := 0, len(view)-1; i < j; i, j = i+1, j-1 {
			view[i], view[j] = view[j], view[i]
		}
	}
	if req.Limit > 0 && len(view) > req.Limit {
		view = view[:req.Limit]
	}
	return &limitless.Page{Records: view, Count: len(view)}, nil
}

func apiRecord(id string, start time.Time) models.LifelogRecord {
	md := "# " + id
	return models.LifelogRecord{
		ID:        id,
		Title:     id,
		Markdown:  &md,
		StartTime: start.UnixMilli(),
		EndTime:   start.Add(20 * time.Minute).UnixMilli(),
		UpdatedAt: start.Add(20 * time.Minute).UnixMilli(),
	}
}

func newTestServer(t *testing.T, upstream *stubFetcher) *httptest.Server {
	t.Helper()
	server, _ := newTestServerTZ(t, upstream, "UTC")
	return server
}

func newTestServerTZ(t *testing.T, upstream *stubFetcher, timezone string) (*httptest.Server, *store.Store) {
	t.Helper()

	records, err := store.New(&config.DatabaseConfig{Path: "", MaxMemory: "256MB", Threads: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = records.Close() })

	ledgers, err := ledger.Open(&config.LedgerConfig{Path: ""})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledgers.Close() })

	cfg := &config.Config{
		Limitless: config.LimitlessConfig{Timezone: timezone},
		Sync: config.SyncConfig{
			Interval:               15 * time.Minute,
			Strategy:               config.StrategyAuto,
			BatchSize:              25,
			MaxBatchSize:           100,
			MaxAPICalls:            30,
			MaxNewRecords:          300,
			GapScanCalls:           5,
			DuplicatePageThreshold: 3,
		},
		Server: config.ServerConfig{
			Host:              "127.0.0.1",
			Port:              8080,
			Timeout:           10 * time.Second,
			AdminAPIKey:       testAdminKey,
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
		},
	}

	eng := engine.New(upstream, records, ledgers, &cfg.Sync, cfg.Limitless.Location(), nil, nil)
	manager := engine.NewManager(eng, &cfg.Sync)
	handler := NewHandler(manager, eng, records, ledgers, cfg)

	server := httptest.NewServer(NewRouter(handler, &cfg.Server))
	t.Cleanup(server.Close)
	return server, records
}

func doRequest(t *testing.T, method, url string, admin bool) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if admin {
		req.Header.Set(adminHeader, testAdminKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t, &stubFetcher{})

	resp, _ := doRequest(t, "GET", server.URL+"/api/v1/health/live", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live = %d, want 200", resp.StatusCode)
	}
	resp, _ = doRequest(t, "GET", server.URL+"/api/v1/health/ready", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d, want 200", resp.StatusCode)
	}
}

func TestTriggerSyncRequiresAdminKey(t *testing.T) {
	server := newTestServer(t, &stubFetcher{})

	resp, _ := doRequest(t, "POST", server.URL+"/api/v1/sync", false)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", resp.StatusCode)
	}

	resp, body := doRequest(t, "POST", server.URL+"/api/v1/sync", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with key = %d, want 200 (%s)", resp.StatusCode, body)
	}
}

func TestSyncFlowThroughAPI(t *testing.T) {
	day := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	upstream := &stubFetcher{records: []models.LifelogRecord{
		apiRecord("r1", day),
		apiRecord("r2", day.Add(2*time.Hour)),
	}}
	server := newTestServer(t, upstream)

	// Trigger the first sync.
	resp, body := doRequest(t, "POST", server.URL+"/api/v1/sync", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync = %d (%s)", resp.StatusCode, body)
	}
	var sync syncResponse
	if err := json.Unmarshal(body, &sync); err != nil {
		t.Fatal(err)
	}
	if !sync.Found || sync.NewRecords != 2 {
		t.Errorf("sync response = %+v, want 2 new records", sync)
	}

	// Ledger reflects the merge.
	resp, body = doRequest(t, "GET", server.URL+"/api/v1/ledger", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ledger = %d", resp.StatusCode)
	}
	var ledgerResp struct {
		KnownIDs  int  `json:"known_ids"`
		FirstSync bool `json:"first_sync"`
	}
	if err := json.Unmarshal(body, &ledgerResp); err != nil {
		t.Fatal(err)
	}
	if ledgerResp.KnownIDs != 2 || ledgerResp.FirstSync {
		t.Errorf("ledger = %+v, want 2 known ids past first sync", ledgerResp)
	}

	// Status shows the run.
	resp, body = doRequest(t, "GET", server.URL+"/api/v1/sync/status", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var status struct {
		LastSync *time.Time    `json:"last_sync"`
		Result   *syncResponse `json:"result"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if status.LastSync == nil || status.Result == nil || status.Result.NewRecords != 2 {
		t.Errorf("status = %+v, want recorded run", status)
	}

	// Records are queryable.
	resp, body = doRequest(t, "GET", server.URL+"/api/v1/lifelogs?limit=10", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lifelogs = %d", resp.StatusCode)
	}
	var list struct {
		Count    int                    `json:"count"`
		Lifelogs []models.LifelogRecord `json:"lifelogs"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 {
		t.Errorf("lifelogs count = %d, want 2", list.Count)
	}

	resp, _ = doRequest(t, "GET", server.URL+"/api/v1/lifelogs/r1", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get r1 = %d, want 200", resp.StatusCode)
	}
	resp, _ = doRequest(t, "GET", server.URL+"/api/v1/lifelogs/missing", false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", resp.StatusCode)
	}

	// The run left an audit entry.
	resp, body = doRequest(t, "GET", server.URL+"/api/v1/operations", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("operations = %d", resp.StatusCode)
	}
	var ops struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &ops); err != nil {
		t.Fatal(err)
	}
	if ops.Count == 0 {
		t.Error("operations count = 0, want the sync audit entry")
	}
}

func TestListLifelogsValidation(t *testing.T) {
	server := newTestServer(t, &stubFetcher{})

	tests := []struct {
		query string
		want  int
	}{
		{"?limit=0", http.StatusBadRequest},
		{"?limit=9999", http.StatusBadRequest},
		{"?limit=abc", http.StatusBadRequest},
		{"?from=not-a-date", http.StatusBadRequest},
		{"?limit=5&from=2026-08-01&to=2026-08-20", http.StatusOK},
	}
	for _, tt := range tests {
		resp, body := doRequest(t, "GET", server.URL+"/api/v1/lifelogs"+tt.query, false)
		if resp.StatusCode != tt.want {
			t.Errorf("lifelogs%s = %d (%s), want %d", tt.query, resp.StatusCode, body, tt.want)
		}
	}
}

func TestListLifelogsRangeOnShortDay(t *testing.T) {
	// 2026-03-08 is a 23-hour day in America/New_York (spring forward),
	// so the inclusive `to` bound must end at the next calendar day's
	// midnight, not a fixed 24 hours after the day started.
	server, records := newTestServerTZ(t, &stubFetcher{}, "America/New_York")

	// 23:30 local on Mar 8 and 00:30 local on Mar 9, both EDT (-04:00).
	inDay := apiRecord("r-mar8", time.Date(2026, 3, 9, 3, 30, 0, 0, time.UTC))
	nextDay := apiRecord("r-mar9", time.Date(2026, 3, 9, 4, 30, 0, 0, time.UTC))
	if err := records.InsertLifelogs(context.Background(), []models.LifelogRecord{inDay, nextDay}); err != nil {
		t.Fatal(err)
	}

	resp, body := doRequest(t, "GET", server.URL+"/api/v1/lifelogs?from=2026-03-08&to=2026-03-08", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lifelogs range = %d (%s)", resp.StatusCode, body)
	}

	var out struct {
		Count    int                    `json:"count"`
		Lifelogs []models.LifelogRecord `json:"lifelogs"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || len(out.Lifelogs) != 1 || out.Lifelogs[0].ID != "r-mar8" {
		t.Errorf("range result = %+v, want only r-mar8", out)
	}
}

func TestUndoThroughAPI(t *testing.T) {
	day := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	upstream := &stubFetcher{records: []models.LifelogRecord{apiRecord("r1", day)}}
	server := newTestServer(t, upstream)

	if resp, body := doRequest(t, "POST", server.URL+"/api/v1/sync", true); resp.StatusCode != http.StatusOK {
		t.Fatalf("sync = %d (%s)", resp.StatusCode, body)
	}

	resp, body := doRequest(t, "POST", server.URL+"/api/v1/sync/undo", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("undo = %d (%s)", resp.StatusCode, body)
	}
	var undo struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		t.Fatal(err)
	}
	if undo.Removed != 1 {
		t.Errorf("removed = %d, want 1", undo.Removed)
	}

	resp, _ = doRequest(t, "POST", server.URL+"/api/v1/sync/undo", true)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second undo = %d, want 409", resp.StatusCode)
	}
}

func TestDeleteAllThroughAPI(t *testing.T) {
	day := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	upstream := &stubFetcher{records: []models.LifelogRecord{apiRecord("r1", day)}}
	server := newTestServer(t, upstream)

	if resp, _ := doRequest(t, "POST", server.URL+"/api/v1/sync", true); resp.StatusCode != http.StatusOK {
		t.Fatal("sync failed")
	}

	resp, _ := doRequest(t, "DELETE", server.URL+"/api/v1/lifelogs", true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("delete without confirm = %d, want 400", resp.StatusCode)
	}

	resp, _ = doRequest(t, "DELETE", server.URL+"/api/v1/lifelogs?confirm=true", true)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete with confirm = %d, want 200", resp.StatusCode)
	}

	resp, body := doRequest(t, "GET", server.URL+"/api/v1/lifelogs?limit=10", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lifelogs = %d", resp.StatusCode)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 0 {
		t.Errorf("lifelogs after wipe = %d, want 0", list.Count)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &stubFetcher{})
	resp, body := doRequest(t, "GET", server.URL+"/metrics", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
	if len(body) == 0 {
		t.Error("metrics body empty")
	}
}

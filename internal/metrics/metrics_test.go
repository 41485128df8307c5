// Lifelogd - Incremental Lifelog Replication
// Copyright 2026 J. Barnes (jdbarnes)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jdbarnes/lifelogd

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherMetric(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) (float64, bool) {
	for _, m := range mf.GetMetric() {
		matched := true
		for k, want := range labels {
			found := false
			for _, lp := range m.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == want {
					found = true
					break
				}
			}
			if !found {
				matched = false
				break
			}
		}
		if matched {
			return m.GetCounter().GetValue(), true
		}
	}
	return 0, false
}

func TestRecordSyncRun(t *testing.T) {
	labels := map[string]string{"strategy": "well_behaved", "outcome": "success"}

	var before float64
	if mf := gatherMetric(t, "sync_runs_total"); mf != nil {
		before, _ = counterValue(mf, labels)
	}

	RecordSyncRun("well_behaved", "success", 2*time.Second, 5, 7)

	mf := gatherMetric(t, "sync_runs_total")
	if mf == nil {
		t.Fatal("sync_runs_total not registered")
	}
	after, ok := counterValue(mf, labels)
	if !ok {
		t.Fatal("sync_runs_total{well_behaved,success} not found")
	}
	if after != before+1 {
		t.Errorf("sync_runs_total = %v, want %v", after, before+1)
	}

	if mf := gatherMetric(t, "sync_last_success_timestamp"); mf == nil {
		t.Error("sync_last_success_timestamp not registered")
	} else if v := mf.GetMetric()[0].GetGauge().GetValue(); v == 0 {
		t.Error("sync_last_success_timestamp not updated on success")
	}
}

func TestRecordSyncRunFailureDoesNotTouchLastSuccess(t *testing.T) {
	SyncLastSuccess.Set(0)
	RecordSyncRun("well_behaved", "failure", time.Second, 0, 3)

	mf := gatherMetric(t, "sync_last_success_timestamp")
	if mf == nil {
		t.Fatal("sync_last_success_timestamp not registered")
	}
	if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Errorf("sync_last_success_timestamp = %v after failure, want 0", v)
	}
}

func TestRecordDBQueryErrorCounting(t *testing.T) {
	labels := map[string]string{"operation": "insert", "table": "lifelogs"}

	var before float64
	if mf := gatherMetric(t, "duckdb_query_errors_total"); mf != nil {
		before, _ = counterValue(mf, labels)
	}

	RecordDBQuery("insert", "lifelogs", 10*time.Millisecond, nil)
	RecordDBQuery("insert", "lifelogs", 10*time.Millisecond, errors.New("constraint violation"))

	mf := gatherMetric(t, "duckdb_query_errors_total")
	if mf == nil {
		t.Fatal("duckdb_query_errors_total not registered")
	}
	after, ok := counterValue(mf, labels)
	if !ok {
		t.Fatal("duckdb_query_errors_total{insert,lifelogs} not found")
	}
	// Only the failed query counts.
	if after != before+1 {
		t.Errorf("duckdb_query_errors_total = %v, want %v", after, before+1)
	}
}

func TestRecordHTTPRequestLabels(t *testing.T) {
	RecordHTTPRequest("GET", "/api/v1/lifelogs", 200, 15*time.Millisecond)

	mf := gatherMetric(t, "http_requests_total")
	if mf == nil {
		t.Fatal("http_requests_total not registered")
	}
	if _, ok := counterValue(mf, map[string]string{
		"method":      "GET",
		"endpoint":    "/api/v1/lifelogs",
		"status_code": "200",
	}); !ok {
		t.Error("http_requests_total missing the recorded label set")
	}
}

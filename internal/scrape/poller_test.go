package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func metricsServer(t *testing.T, body string, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(code)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPoller() (*Poller, *store.ReadingLog) {
	readings := store.NewReadingLog()
	p := New(config.ScrapeConfig{Interval: time.Minute}, readings)
	p.now = func() time.Time { return t0 }
	return p, readings
}

func TestScrapeOne_AppendsReading(t *testing.T) {
	srv := metricsServer(t, `
# HELP machine_health_percent Current machine health.
# TYPE machine_health_percent gauge
machine_health_percent 47.5
# TYPE machine_anomaly_score gauge
machine_anomaly_score 0.62
`, http.StatusOK)

	p, readings := newPoller()
	err := p.scrapeOne(context.Background(), config.ScrapeSource{MachineID: "Machine_A", Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	got := readings.LastN("Machine_A", 1)
	if len(got) != 1 {
		t.Fatalf("readings: got %d, want 1", len(got))
	}
	if got[0].Health != 47.5 || got[0].AnomalyScore != 0.62 {
		t.Errorf("reading: got %+v", got[0])
	}
	if got[0].Status != "WARNING" {
		t.Errorf("status: got %s, want WARNING", got[0].Status)
	}
}

func TestScrapeOne_Failures(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
	}{
		{"server error", "", http.StatusInternalServerError},
		{"missing health gauge", "machine_anomaly_score 0.5\n", http.StatusOK},
		{"missing anomaly gauge", "machine_health_percent 80\n", http.StatusOK},
		{"health out of range", "machine_health_percent 150\nmachine_anomaly_score 0.5\n", http.StatusOK},
		{"anomaly out of range", "machine_health_percent 80\nmachine_anomaly_score 3\n", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := metricsServer(t, tc.body, tc.code)
			p, readings := newPoller()
			err := p.scrapeOne(context.Background(), config.ScrapeSource{MachineID: "Machine_A", Endpoint: srv.URL})
			if err == nil {
				t.Error("want an error")
			}
			if n := readings.Count("Machine_A"); n != 0 {
				t.Errorf("readings after failure: got %d, want 0", n)
			}
		})
	}
}

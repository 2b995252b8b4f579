package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/api"
	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/explain"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/report"
	"github.com/fleetsentry/fleetsentry/internal/scheduler"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// --- test helpers -----------------------------------------------------------

// fakeClassifier returns a fixed probability, or ErrUnavailable when down.
type fakeClassifier struct {
	probability float64
	down        bool
}

func (f *fakeClassifier) Predict(ctx context.Context, _ predictor.Features) (float64, error) {
	if f.down {
		return 0, predictor.ErrUnavailable
	}
	return f.probability, nil
}

type fixture struct {
	handler  http.Handler
	readings *store.ReadingLog
	alerts   *store.AlertStore
}

func newFixture(t *testing.T, classifier predictor.Classifier) *fixture {
	t.Helper()
	cfg := config.Default()

	readings := store.NewReadingLog()
	alertStore := store.NewAlertStore()
	predictions := store.NewPredictionStore()

	aggregator := health.NewAggregator(readings, alertStore, predictions, cfg.Scoring)
	engine := alerts.New(alertStore, cfg.Alerting)
	narrator := explain.NewService(explain.NewChain(0), readings, alertStore)
	narrator.SetSource(aggregator)
	aggregator.SetNarrator(narrator)
	sched := scheduler.New(readings, predictions, engine, *cfg)
	reports := report.NewGenerator(aggregator, narrator, readings, alertStore)

	h := api.New(api.Deps{
		Readings:    readings,
		Alerts:      alertStore,
		Predictions: predictions,
		Aggregator:  aggregator,
		Engine:      engine,
		Scheduler:   sched,
		Classifier:  classifier,
		Narrator:    narrator,
		Reports:     reports,
	}, cfg)

	return &fixture{handler: h, readings: readings, alerts: alertStore}
}

func (f *fixture) seed(machineID string, n int, healthVal, anomaly float64) {
	for i := 0; i < n; i++ {
		f.readings.Append(store.Reading{
			MachineID:    machineID,
			Timestamp:    time.Now().UTC().Add(-time.Duration(n-i) * time.Minute),
			Health:       healthVal,
			AnomalyScore: anomaly,
			Status:       "HEALTHY",
		})
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rd := strings.NewReader(body)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, rd))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- ingest and queries -----------------------------------------------------

func TestPostReading_RoundTripsToHistory(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})

	rr := do(t, f.handler, http.MethodPost, "/api/v1/readings",
		`{"machine_id":"Machine_A","health":72.5,"anomaly_score":0.2}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (body: %s)", rr.Code, rr.Body.String())
	}

	var created map[string]interface{}
	decode(t, rr, &created)
	if created["status"] != "HEALTHY" {
		t.Errorf("derived status: got %v, want HEALTHY", created["status"])
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/history", "")
	var hist struct {
		Count    int             `json:"count"`
		Readings []store.Reading `json:"readings"`
	}
	decode(t, rr, &hist)
	if hist.Count != 1 || hist.Readings[0].Health != 72.5 {
		t.Errorf("history: got %+v", hist)
	}
}

func TestPostReading_AssignsRosterMachineWhenOmitted(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	rr := do(t, f.handler, http.MethodPost, "/api/v1/readings", `{"health":50,"anomaly_score":0.1}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rr.Code)
	}
	var created map[string]interface{}
	decode(t, rr, &created)
	id, _ := created["machine_id"].(string)
	if !strings.HasPrefix(id, "Machine_") {
		t.Errorf("machine_id: got %q, want a roster machine", id)
	}
}

// Concurrent omitted-id ingests share the handler's machine picker; run
// with -race to check the generator is properly guarded.
func TestPostReading_ConcurrentOmittedID(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	codes := make(chan int, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				rr := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodPost, "/api/v1/readings",
					strings.NewReader(`{"health":50,"anomaly_score":0.1}`))
				f.handler.ServeHTTP(rr, req)
				codes <- rr.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("status: got %d, want 201", code)
		}
	}
}

func TestPostReading_Validation(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	cases := []string{
		`not json`,
		`{"health":120,"anomaly_score":0.1}`,
		`{"health":50,"anomaly_score":1.5}`,
		`{"health":50,"anomaly_score":0.1,"status":"BROKEN"}`,
	}
	for _, body := range cases {
		if rr := do(t, f.handler, http.MethodPost, "/api/v1/readings", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: got %d, want 400", body, rr.Code)
		}
	}
}

func TestMachineHealth(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 10, 80, 0.1)
	f.seed("Machine_B", 2, 40, 0.5)

	rr := do(t, f.handler, http.MethodGet, "/api/v1/machines/Machine_A/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var snap health.Snapshot
	decode(t, rr, &snap)
	if snap.Status != health.StatusHealthy {
		t.Errorf("Status: got %s, want HEALTHY", snap.Status)
	}
	if snap.Explanation == "" {
		t.Error("Explanation: missing, the narrator should always produce one")
	}

	// Below the minimum readings: reported as not found, not a server error.
	if rr = do(t, f.handler, http.MethodGet, "/api/v1/machines/Machine_B/health", ""); rr.Code != http.StatusNotFound {
		t.Errorf("insufficient data: got %d, want 404", rr.Code)
	}
	if rr = do(t, f.handler, http.MethodGet, "/api/v1/machines/Machine_X/health", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown machine: got %d, want 404", rr.Code)
	}
}

func TestFleetAndMachines(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 10, 80, 0.1)
	f.seed("Machine_B", 10, 20, 0.9)

	rr := do(t, f.handler, http.MethodGet, "/api/v1/fleet", "")
	var fleet health.FleetSummary
	decode(t, rr, &fleet)
	if fleet.TotalMachines != 2 || fleet.CriticalMachines != 1 {
		t.Errorf("fleet: got %+v", fleet)
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/machines", "")
	var machines struct {
		Count    int      `json:"count"`
		Machines []string `json:"machines"`
	}
	decode(t, rr, &machines)
	if machines.Count != 2 {
		t.Errorf("machines: got %+v", machines)
	}
}

func TestTrendsEndpoints(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 10, 60, 0.6)

	rr := do(t, f.handler, http.MethodGet, "/api/v1/trends?machine_id=Machine_A&hours=1", "")
	var trends struct {
		DataPoints int `json:"data_points"`
	}
	decode(t, rr, &trends)
	if trends.DataPoints != 10 {
		t.Errorf("data_points: got %d, want 10", trends.DataPoints)
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/trends/summary?machine_id=Machine_A", "")
	var sum struct {
		Interpretation string `json:"interpretation"`
	}
	decode(t, rr, &sum)
	if !strings.Contains(sum.Interpretation, "Machine_A") {
		t.Errorf("interpretation: %q", sum.Interpretation)
	}

	if rr = do(t, f.handler, http.MethodGet, "/api/v1/trends?hours=zero", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad hours: got %d, want 400", rr.Code)
	}
}

// --- alerts -----------------------------------------------------------------

func TestAlertEndpoints(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.alerts.Insert(&store.Alert{ID: "a1", MachineID: "Machine_A",
		Severity: store.SeverityCritical, CreatedAt: time.Now()})

	rr := do(t, f.handler, http.MethodGet, "/api/v1/alerts", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rr, &list)
	if list.Count != 1 {
		t.Errorf("alerts: got %d, want 1", list.Count)
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/alerts/summary", "")
	var sum store.AlertSummary
	decode(t, rr, &sum)
	if sum.UnacknowledgedCritical != 1 {
		t.Errorf("summary: got %+v", sum)
	}

	if rr = do(t, f.handler, http.MethodPost, "/api/v1/alerts/a1/ack", ""); rr.Code != http.StatusOK {
		t.Errorf("ack: got %d, want 200", rr.Code)
	}
	if rr = do(t, f.handler, http.MethodPost, "/api/v1/alerts/missing/ack", ""); rr.Code != http.StatusNotFound {
		t.Errorf("ack unknown: got %d, want 404", rr.Code)
	}
	if rr = do(t, f.handler, http.MethodGet, "/api/v1/alerts?acknowledged=banana", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad filter: got %d, want 400", rr.Code)
	}
}

func TestAlertsCheck_TriggersCycle(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 20, 25, 0.9)

	rr := do(t, f.handler, http.MethodPost, "/api/v1/alerts/check", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var res struct {
		MachinesChecked int `json:"machines_checked"`
		AlertsGenerated int `json:"alerts_generated"`
	}
	decode(t, rr, &res)
	if res.MachinesChecked != 1 || res.AlertsGenerated != 1 {
		t.Errorf("cycle result: got %+v", res)
	}
}

// --- predict ----------------------------------------------------------------

func TestPredict(t *testing.T) {
	f := newFixture(t, &fakeClassifier{probability: 0.85})

	rr := do(t, f.handler, http.MethodPost, "/api/v1/predict",
		`{"machine_id":"Machine_A","air_temp":305,"process_temp":310,"rpm":1500,"torque":40,"tool_wear":108}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}

	var resp struct {
		MachineID       string           `json:"machine_id"`
		Result          predictor.Result `json:"result"`
		Recommendations []string         `json:"recommendations"`
		Alert           *store.Alert     `json:"alert"`
	}
	decode(t, rr, &resp)

	if resp.Result.Status != predictor.StatusFailureLikely {
		t.Errorf("status: got %s, want FAILURE LIKELY", resp.Result.Status)
	}
	if resp.Result.TimeToFailureHours != 6 {
		t.Errorf("hours: got %d, want 6", resp.Result.TimeToFailureHours)
	}
	if len(resp.Recommendations) != 4 {
		t.Errorf("recommendations: got %d, want 4", len(resp.Recommendations))
	}
	if resp.Alert == nil || resp.Alert.Severity != store.SeverityCritical {
		t.Errorf("alert: got %+v, want a critical alert", resp.Alert)
	}

	// The prediction is on record.
	rr = do(t, f.handler, http.MethodGet, "/api/v1/predictions?machine_id=Machine_A", "")
	var preds struct {
		Count int `json:"count"`
	}
	decode(t, rr, &preds)
	if preds.Count != 1 {
		t.Errorf("predictions: got %d, want 1", preds.Count)
	}
}

func TestPredict_ClassifierDown(t *testing.T) {
	f := newFixture(t, &fakeClassifier{down: true})
	rr := do(t, f.handler, http.MethodPost, "/api/v1/predict", `{"air_temp":300}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

// --- chat and report --------------------------------------------------------

func TestChatEndpoint(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 10, 45, 0.5)

	rr := do(t, f.handler, http.MethodPost, "/api/v1/chat",
		`{"machine_id":"Machine_A","message":"what is the status?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rr.Code, rr.Body.String())
	}
	var res explain.ChatResult
	decode(t, rr, &res)
	if !strings.Contains(res.Answer, "Machine_A") {
		t.Errorf("answer: %q", res.Answer)
	}

	if rr = do(t, f.handler, http.MethodPost, "/api/v1/chat", `{"message":"  "}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty message: got %d, want 422", rr.Code)
	}
	if rr = do(t, f.handler, http.MethodPost, "/api/v1/chat", `{"machine_id":"Machine_Z","message":"status"}`); rr.Code != http.StatusNotFound {
		t.Errorf("unknown machine: got %d, want 404", rr.Code)
	}
}

func TestChatEndpoint_EmptyFleet(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	rr := do(t, f.handler, http.MethodPost, "/api/v1/chat", `{"message":"fleet status"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("empty fleet: got %d, want 404", rr.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	f.seed("Machine_A", 10, 30, 0.8)

	rr := do(t, f.handler, http.MethodGet, "/api/v1/report", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var rep report.Report
	decode(t, rr, &rep)
	if rep.ExecutiveSummary == "" || len(rep.Machines) != 1 {
		t.Errorf("report: summary=%q machines=%d", rep.ExecutiveSummary, len(rep.Machines))
	}

	rr = do(t, f.handler, http.MethodGet, "/api/v1/report?format=text", "")
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type: got %s, want text/plain", ct)
	}
	if !strings.Contains(rr.Body.String(), "FLEET CONDITION REPORT") {
		t.Error("text report missing header line")
	}
}

// --- plumbing ---------------------------------------------------------------

func TestMethodChecks(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	cases := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/readings"},
		{http.MethodPost, "/api/v1/fleet"},
		{http.MethodGet, "/api/v1/alerts/check"},
		{http.MethodDelete, "/api/v1/chat"},
	}
	for _, tc := range cases {
		if rr := do(t, f.handler, tc.method, tc.path, ""); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, &fakeClassifier{})
	rr := do(t, f.handler, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var res map[string]interface{}
	decode(t, rr, &res)
	if res["status"] != "ok" {
		t.Errorf("status field: got %v", res["status"])
	}
}

package api

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetsentry/fleetsentry/internal/alerts"
	"github.com/fleetsentry/fleetsentry/internal/config"
	"github.com/fleetsentry/fleetsentry/internal/explain"
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/report"
	"github.com/fleetsentry/fleetsentry/internal/scheduler"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

const (
	defaultHistoryLimit    = 50
	defaultPredictionLimit = 20
	defaultTrendHours      = 24
)

// Deps bundles everything the handler serves from.
type Deps struct {
	Readings    *store.ReadingLog
	Alerts      *store.AlertStore
	Predictions *store.PredictionStore
	Aggregator  *health.Aggregator
	Engine      *alerts.Engine
	Scheduler   *scheduler.Scheduler
	Classifier  predictor.Classifier
	Narrator    *explain.Service
	Reports     *report.Generator
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux

	mu     sync.RWMutex
	roster []string

	rngMu sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
}

// New creates a Handler and registers all routes. The roster seeds the
// default machine assignment for ingest and predict requests that omit one.
func New(deps Deps, cfg *config.Config) *Handler {
	h := &Handler{
		deps:   deps,
		mux:    http.NewServeMux(),
		roster: append([]string(nil), cfg.Fleet.Machines...),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}

	h.mux.HandleFunc("/api/v1/readings", h.postReading)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/trends", h.trends)
	h.mux.HandleFunc("/api/v1/trends/summary", h.trendSummary)
	h.mux.HandleFunc("/api/v1/machines", h.machines)
	h.mux.HandleFunc("/api/v1/machines/", h.machineHealth) // subtree — extracts {id}
	h.mux.HandleFunc("/api/v1/fleet", h.fleet)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertActions) // subtree — summary, check, {id}/ack
	h.mux.HandleFunc("/api/v1/predict", h.predict)
	h.mux.HandleFunc("/api/v1/predictions", h.predictions)
	h.mux.HandleFunc("/api/v1/chat", h.chat)
	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/healthz", h.healthz)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// SetConfig swaps the roster on config hot-reload.
func (h *Handler) SetConfig(cfg *config.Config) {
	h.mu.Lock()
	h.roster = append([]string(nil), cfg.Fleet.Machines...)
	h.mu.Unlock()
}

// --- route handlers ---------------------------------------------------------

// postReading accepts POST /api/v1/readings — one telemetry reading.
func (h *Handler) postReading(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Health < 0 || req.Health > 100 {
		jsonErr(w, http.StatusBadRequest, "health must be between 0 and 100")
		return
	}
	if req.AnomalyScore < 0 || req.AnomalyScore > 1 {
		jsonErr(w, http.StatusBadRequest, "anomaly_score must be between 0 and 1")
		return
	}
	switch req.Status {
	case "", health.StatusHealthy, health.StatusWarning, health.StatusCritical:
	default:
		jsonErr(w, http.StatusBadRequest, "status must be HEALTHY, WARNING or CRITICAL")
		return
	}

	machineID := req.MachineID
	if machineID == "" {
		machineID = h.randomMachine()
	}
	status := req.Status
	if status == "" {
		status = statusForHealth(req.Health)
	}

	reading := store.Reading{
		MachineID:    machineID,
		Timestamp:    h.now().UTC(),
		Health:       req.Health,
		AnomalyScore: req.AnomalyScore,
		Status:       status,
	}
	h.deps.Readings.Append(reading)

	jsonResp(w, http.StatusCreated, ReadingResponse{
		MachineID:    reading.MachineID,
		Health:       reading.Health,
		AnomalyScore: reading.AnomalyScore,
		Status:       reading.Status,
		Timestamp:    reading.Timestamp.Format(time.RFC3339),
	})
}

// history returns GET /api/v1/history — the most recent readings in
// chronological order.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit, ok := intParam(w, r, "limit", defaultHistoryLimit)
	if !ok {
		return
	}

	readings := h.deps.Readings.History(limit)
	jsonResp(w, http.StatusOK, HistoryResponse{Count: len(readings), Readings: readings})
}

// trends returns GET /api/v1/trends — a time-windowed reading series for one
// machine, or the whole fleet when machine_id is empty.
func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	machineID := r.URL.Query().Get("machine_id")
	hours, ok := intParam(w, r, "hours", defaultTrendHours)
	if !ok {
		return
	}

	series := h.deps.Readings.Series(machineID, h.now().UTC().Add(-time.Duration(hours)*time.Hour))
	jsonResp(w, http.StatusOK, TrendsResponse{
		MachineID:  machineID,
		Hours:      hours,
		DataPoints: len(series),
		Series:     series,
	})
}

// trendSummary returns GET /api/v1/trends/summary — the statistical digest
// of a trend window plus its plain-language interpretation.
func (h *Handler) trendSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	machineID := r.URL.Query().Get("machine_id")
	hours, ok := intParam(w, r, "hours", defaultTrendHours)
	if !ok {
		return
	}

	series := h.deps.Readings.Series(machineID, h.now().UTC().Add(-time.Duration(hours)*time.Hour))
	summary := health.SummarizeTrend(series)

	label := machineID
	if label == "" {
		label = "the fleet"
	}
	jsonResp(w, http.StatusOK, TrendSummaryResponse{
		MachineID:      machineID,
		Hours:          hours,
		Summary:        summary,
		Interpretation: h.deps.Narrator.InterpretTrend(label, summary),
	})
}

// machines returns GET /api/v1/machines — the distinct machines with data.
func (h *Handler) machines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ids := h.deps.Readings.Machines()
	jsonResp(w, http.StatusOK, MachinesResponse{Count: len(ids), Machines: ids})
}

// machineHealth returns GET /api/v1/machines/{id}/health — one machine's
// current snapshot. A machine with too few readings is reported as not
// found, not as an internal error.
func (h *Handler) machineHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/machines/")
	machineID, op, found := strings.Cut(rest, "/")
	if !found || op != "health" || machineID == "" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}

	snap, err := h.deps.Aggregator.Snapshot(r.Context(), machineID)
	if errors.Is(err, health.ErrInsufficientData) {
		jsonErr(w, http.StatusNotFound, "insufficient data for "+machineID)
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

// fleet returns GET /api/v1/fleet — the fleet-wide summary.
func (h *Handler) fleet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.deps.Aggregator.Fleet(r.Context()))
}

// listAlerts returns GET /api/v1/alerts — the alert ledger, optionally
// filtered by acknowledgement state.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var filter *bool
	if raw := r.URL.Query().Get("acknowledged"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "acknowledged must be true or false")
			return
		}
		filter = &v
	}

	list := h.deps.Alerts.List(filter)
	jsonResp(w, http.StatusOK, AlertsResponse{Count: len(list), Alerts: list})
}

// alertActions dispatches the /api/v1/alerts/ subtree: GET summary,
// POST check, POST {id}/ack.
func (h *Handler) alertActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")

	switch {
	case rest == "":
		h.listAlerts(w, r)

	case rest == "summary":
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		jsonResp(w, http.StatusOK, h.deps.Alerts.Summary())

	case rest == "check":
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		jsonResp(w, http.StatusOK, h.deps.Scheduler.RunOnce(r.Context()))

	case strings.HasSuffix(rest, "/ack"):
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id := strings.TrimSuffix(rest, "/ack")
		if err := h.deps.Engine.Acknowledge(id); err != nil {
			jsonErr(w, http.StatusNotFound, "alert not found")
			return
		}
		jsonResp(w, http.StatusOK, AckResponse{ID: id, Acknowledged: true})

	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// predict handles POST /api/v1/predict — one-off inference from a sensor
// feature vector. The prediction is recorded and fed to the alert engine.
func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	features := predictor.Features{
		AirTemp:     req.AirTemp,
		ProcessTemp: req.ProcessTemp,
		RPM:         req.RPM,
		Torque:      req.Torque,
		ToolWear:    req.ToolWear,
	}

	p, err := h.deps.Classifier.Predict(r.Context(), features)
	if errors.Is(err, predictor.ErrUnavailable) {
		jsonErr(w, http.StatusServiceUnavailable, "classifier unavailable")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	result := predictor.FromProbability(p)
	recs := h.deps.Narrator.Recommendations(result, features)

	machineID := req.MachineID
	if machineID == "" {
		machineID = h.randomMachine()
	}

	row := &store.Prediction{
		ID:                 uuid.NewString(),
		MachineID:          machineID,
		FailureProbability: result.FailureProbability,
		Confidence:         result.Confidence,
		TimeToFailureHours: result.TimeToFailureHours,
		Status:             result.Status,
		Source:             "classifier",
		Recommendations:    recs,
		CreatedAt:          h.now().UTC(),
	}
	h.deps.Predictions.Insert(row)

	resp := PredictResponse{
		PredictionID:    row.ID,
		MachineID:       machineID,
		Result:          result,
		Recommendations: recs,
	}

	alert, outcome := h.deps.Engine.Evaluate(predictor.WindowPrediction{
		MachineID:      machineID,
		HoursToFailure: result.TimeToFailureHours,
		Confidence:     float64(result.Confidence) / 100,
		CurrentHealth:  result.HealthScore * 100,
	}, "classifier", row.ID)
	if outcome == alerts.OutcomeCreated {
		h.deps.Predictions.LinkAlert(row.ID, alert.ID) //nolint:errcheck
		resp.Alert = alert
	}

	jsonResp(w, http.StatusOK, resp)
}

// predictions returns GET /api/v1/predictions — prediction history, newest
// first.
func (h *Handler) predictions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	machineID := r.URL.Query().Get("machine_id")
	limit, ok := intParam(w, r, "limit", defaultPredictionLimit)
	if !ok {
		return
	}

	list := h.deps.Predictions.History(machineID, limit)
	jsonResp(w, http.StatusOK, PredictionsResponse{Count: len(list), Predictions: list})
}

// chat handles POST /api/v1/chat — one natural-language question against the
// machine or fleet context.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		jsonErr(w, http.StatusUnprocessableEntity, "message must not be empty")
		return
	}
	if req.MachineID != "" && !h.knownMachine(req.MachineID) {
		jsonErr(w, http.StatusNotFound, "unknown machine "+req.MachineID)
		return
	}
	if req.MachineID == "" && len(h.deps.Readings.Machines()) == 0 {
		jsonErr(w, http.StatusNotFound, "no machines have reported telemetry")
		return
	}

	res, err := h.deps.Narrator.Chat(r.Context(), req.MachineID, req.Message)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "chat failed")
		return
	}
	jsonResp(w, http.StatusOK, res)
}

// report returns GET /api/v1/report — the fleet condition report, as JSON or
// plain text.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep := h.deps.Reports.Build(r.Context())
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(report.RenderText(rep))) //nolint:errcheck
		return
	}
	jsonResp(w, http.StatusOK, rep)
}

// healthz returns GET /healthz — liveness plus the count of machines seen.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthzResponse{
		Status:   "ok",
		Machines: len(h.deps.Readings.Machines()),
	})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// intParam parses a positive integer query parameter, writing a 400 and
// returning ok=false when it is malformed.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		jsonErr(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

// randomMachine picks a roster machine for requests that omit one. The
// generator has its own lock: rng.Intn mutates internal state, and an
// RLock on the roster would let concurrent requests corrupt it.
func (h *Handler) randomMachine() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.roster) == 0 {
		return "Machine_A"
	}
	h.rngMu.Lock()
	i := h.rng.Intn(len(h.roster))
	h.rngMu.Unlock()
	return h.roster[i]
}

// knownMachine reports whether the machine is on the roster or has reported
// telemetry.
func (h *Handler) knownMachine(id string) bool {
	h.mu.RLock()
	for _, m := range h.roster {
		if m == id {
			h.mu.RUnlock()
			return true
		}
	}
	h.mu.RUnlock()

	for _, m := range h.deps.Readings.Machines() {
		if m == id {
			return true
		}
	}
	return false
}

// statusForHealth derives a reading status when the sender omits one,
// using the default scoring thresholds.
func statusForHealth(score float64) string {
	switch {
	case score < config.DefaultHealthCriticalBelow:
		return health.StatusCritical
	case score < config.DefaultHealthWarningBelow:
		return health.StatusWarning
	default:
		return health.StatusHealthy
	}
}

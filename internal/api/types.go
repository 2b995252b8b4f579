package api

import (
	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// ReadingRequest is the POST /readings body. MachineID is optional; an empty
// one is assigned a random machine from the configured roster.
type ReadingRequest struct {
	MachineID    string  `json:"machine_id"`
	Health       float64 `json:"health"`
	AnomalyScore float64 `json:"anomaly_score"`
	Status       string  `json:"status"`
}

// ReadingResponse echoes the stored reading.
type ReadingResponse struct {
	MachineID    string  `json:"machine_id"`
	Health       float64 `json:"health"`
	AnomalyScore float64 `json:"anomaly_score"`
	Status       string  `json:"status"`
	Timestamp    string  `json:"timestamp"`
}

// HistoryResponse is the GET /history body.
type HistoryResponse struct {
	Count    int             `json:"count"`
	Readings []store.Reading `json:"readings"`
}

// MachinesResponse is the GET /machines body.
type MachinesResponse struct {
	Count    int      `json:"count"`
	Machines []string `json:"machines"`
}

// TrendsResponse is the GET /trends body.
type TrendsResponse struct {
	MachineID  string          `json:"machine_id,omitempty"`
	Hours      int             `json:"hours"`
	DataPoints int             `json:"data_points"`
	Series     []store.Reading `json:"series"`
}

// TrendSummaryResponse is the GET /trends/summary body.
type TrendSummaryResponse struct {
	MachineID      string              `json:"machine_id,omitempty"`
	Hours          int                 `json:"hours"`
	Summary        health.TrendSummary `json:"summary"`
	Interpretation string              `json:"interpretation"`
}

// AlertsResponse is the GET /alerts body.
type AlertsResponse struct {
	Count  int           `json:"count"`
	Alerts []store.Alert `json:"alerts"`
}

// AckResponse is the POST /alerts/{id}/ack body.
type AckResponse struct {
	ID           string `json:"id"`
	Acknowledged bool   `json:"acknowledged"`
}

// PredictRequest is the POST /predict body: the sensor feature vector plus
// an optional machine attribution.
type PredictRequest struct {
	MachineID   string  `json:"machine_id"`
	AirTemp     float64 `json:"air_temp"`
	ProcessTemp float64 `json:"process_temp"`
	RPM         float64 `json:"rpm"`
	Torque      float64 `json:"torque"`
	ToolWear    float64 `json:"tool_wear"`
}

// PredictResponse is the POST /predict body: the mapped inference result,
// its maintenance recommendations and the alert it raised, if any.
type PredictResponse struct {
	PredictionID    string           `json:"prediction_id"`
	MachineID       string           `json:"machine_id"`
	Result          predictor.Result `json:"result"`
	Recommendations []string         `json:"recommendations"`
	Alert           *store.Alert     `json:"alert,omitempty"`
}

// PredictionsResponse is the GET /predictions body.
type PredictionsResponse struct {
	Count       int                `json:"count"`
	Predictions []store.Prediction `json:"predictions"`
}

// ChatRequest is the POST /chat body.
type ChatRequest struct {
	MachineID string `json:"machine_id"`
	Message   string `json:"message"`
}

// HealthzResponse is the GET /healthz body.
type HealthzResponse struct {
	Status   string `json:"status"`
	Machines int    `json:"machines"`
}

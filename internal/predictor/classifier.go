package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable reports that the external classifier cannot be reached or is
// not configured. Callers must treat the prediction as absent — never
// fabricate a probability.
var ErrUnavailable = errors.New("classifier unavailable")

// Features is the sensor feature vector submitted for one-off inference.
type Features struct {
	AirTemp     float64 `json:"air_temp"`
	ProcessTemp float64 `json:"process_temp"`
	RPM         float64 `json:"rpm"`
	Torque      float64 `json:"torque"`
	ToolWear    float64 `json:"tool_wear"`
}

// Classifier is the injected capability producing a failure probability in
// [0, 1] from a feature vector. The trained model lives behind it; this
// process never loads model artifacts itself.
type Classifier interface {
	Predict(ctx context.Context, f Features) (float64, error)
}

// HTTPClassifier calls a model server's predict endpoint over HTTP.
type HTTPClassifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClassifier returns a classifier for the given predict URL. An empty
// endpoint yields a classifier that always reports ErrUnavailable.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Predict posts the feature vector and returns the model's failure
// probability. Connectivity failures, non-200 responses and malformed bodies
// all surface as ErrUnavailable.
func (c *HTTPClassifier) Predict(ctx context.Context, f Features) (float64, error) {
	if c.endpoint == "" {
		return 0, ErrUnavailable
	}

	body, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out struct {
		FailureProbability float64 `json:"failure_probability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.FailureProbability < 0 || out.FailureProbability > 1 {
		return 0, fmt.Errorf("%w: probability %.3f out of range", ErrUnavailable, out.FailureProbability)
	}
	return out.FailureProbability, nil
}

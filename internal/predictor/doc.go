// Package predictor wraps the external failure classifier and maps raw
// failure probabilities onto a qualitative status and a lead-time estimate.
// It also carries the reading-window heuristic the automated evaluation
// cycle uses when no feature vector is available.
package predictor

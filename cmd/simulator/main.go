package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// machineState is one simulated machine's random walk. Health drifts down
// slowly and recovers occasionally; the anomaly score rises as health falls.
type machineState struct {
	id     string
	health float64
}

type reading struct {
	MachineID    string  `json:"machine_id"`
	Health       float64 `json:"health"`
	AnomalyScore float64 `json:"anomaly_score"`
}

func main() {
	url := flag.String("url", "http://localhost:8080/api/v1/readings", "ingest endpoint")
	machines := flag.String("machines", "Machine_A,Machine_B,Machine_C,Machine_D,Machine_E", "comma-separated machine ids")
	interval := flag.Duration("interval", 2*time.Second, "delay between batches")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var fleet []*machineState
	for _, id := range strings.Split(*machines, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		fleet = append(fleet, &machineState{id: id, health: 70 + rng.Float64()*25})
	}
	if len(fleet) == 0 {
		slog.Error("no machines configured")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	slog.Info("simulator started", "machines", len(fleet), "interval", *interval, "url", *url)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped")
			return
		case <-ticker.C:
			for _, m := range fleet {
				m.step(rng)
				if err := post(ctx, client, *url, m.reading(rng)); err != nil {
					slog.Warn("post failed", "machine", m.id, "err", err)
				}
			}
		}
	}
}

// step advances the random walk: mostly small drift, a rare sharp drop, and
// a slow pull back toward nominal when health gets low.
func (m *machineState) step(rng *rand.Rand) {
	m.health += (rng.Float64() - 0.55) * 3
	if rng.Float64() < 0.02 {
		m.health -= 10 + rng.Float64()*15
	}
	if m.health < 20 && rng.Float64() < 0.3 {
		m.health += 5 + rng.Float64()*10
	}
	if m.health < 0 {
		m.health = 0
	}
	if m.health > 100 {
		m.health = 100
	}
}

// reading derives the published payload. Anomaly correlates with poor
// health, plus noise.
func (m *machineState) reading(rng *rand.Rand) reading {
	anomaly := (100-m.health)/100*0.8 + rng.Float64()*0.2
	if anomaly > 1 {
		anomaly = 1
	}
	return reading{
		MachineID:    m.id,
		Health:       float64(int(m.health*10)) / 10,
		AnomalyScore: float64(int(anomaly*1000)) / 1000,
	}
}

func post(ctx context.Context, client *http.Client, url string, r reading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

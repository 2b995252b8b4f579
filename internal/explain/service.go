package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fleetsentry/fleetsentry/internal/health"
	"github.com/fleetsentry/fleetsentry/internal/predictor"
	"github.com/fleetsentry/fleetsentry/internal/store"
)

// ruleModel is reported as the model name whenever an answer comes from the
// deterministic rule engine instead of a language model.
const ruleModel = "rule-based"

const chatSystemPrompt = "You are a maintenance assistant for an industrial machine fleet. " +
	"Answer strictly from the telemetry context provided. Be concise and concrete. " +
	"If the context does not contain the answer, say so."

// SnapshotSource supplies live machine and fleet state for chat retrieval.
// The health aggregator satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, machineID string) (health.Snapshot, error)
	Fleet(ctx context.Context) health.FleetSummary
}

// ChatResult is one answered chat turn.
type ChatResult struct {
	Answer      string `json:"response"`
	Category    string `json:"category"`
	ContextUsed string `json:"context_used"`
	Model       string `json:"model_used"`
}

// Service answers natural-language questions about the fleet and narrates
// snapshots, trends and predictions. Model-backed answers go through the
// provider chain; everything degrades to the deterministic rule engine, so
// the service works with no API key configured.
type Service struct {
	chain    *Chain
	source   SnapshotSource
	readings *store.ReadingLog
	alerts   *store.AlertStore
}

// NewService builds a Service. The snapshot source is attached separately
// with SetSource because the aggregator that provides it also consumes this
// service as its narrator.
func NewService(chain *Chain, readings *store.ReadingLog, alerts *store.AlertStore) *Service {
	if chain == nil {
		chain = NewChain(0)
	}
	return &Service{chain: chain, readings: readings, alerts: alerts}
}

// SetSource attaches the snapshot source used for chat retrieval.
func (s *Service) SetSource(src SnapshotSource) { s.source = src }

// ExplainSnapshot narrates a snapshot in one short paragraph. It is called
// on every snapshot build, so it is always rule-based and never blocks on a
// remote model.
func (s *Service) ExplainSnapshot(_ context.Context, snap health.Snapshot) string {
	return snapshotExplanation(snap)
}

// InterpretTrend narrates a trend summary for the trends endpoints.
func (s *Service) InterpretTrend(machineID string, t health.TrendSummary) string {
	return trendInterpretation(machineID, t)
}

// Recommendations derives maintenance actions from an inference result and
// its feature vector. Always exactly four entries.
func (s *Service) Recommendations(res predictor.Result, f predictor.Features) []string {
	return ruleRecommendations(res, f)
}

// Chat answers one question. With a non-empty machineID the answer is scoped
// to that machine; otherwise it covers the whole fleet. A machine with too
// few readings gets an honest placeholder answer rather than an error.
func (s *Service) Chat(ctx context.Context, machineID, message string) (ChatResult, error) {
	cat := Classify(message)

	if machineID != "" {
		return s.chatMachine(ctx, machineID, message, cat)
	}
	return s.chatFleet(ctx, message, cat)
}

func (s *Service) chatMachine(ctx context.Context, machineID, message string, cat Category) (ChatResult, error) {
	snap, err := s.source.Snapshot(ctx, machineID)
	if errors.Is(err, health.ErrInsufficientData) {
		return ChatResult{
			Answer: fmt.Sprintf("Not enough readings have been recorded for %s yet. "+
				"Ask again once telemetry has accumulated.", machineID),
			Category: cat.String(),
			Model:    ruleModel,
		}, nil
	}
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat: snapshot %s: %w", machineID, err)
	}

	mc := &MachineContext{Snapshot: snap, Alerts: s.alerts.ListForMachine(machineID)}
	if last := s.readings.LastN(machineID, 1); len(last) > 0 {
		mc.Latest = &last[0]
	}

	contextText := mc.Format()
	if answer, model, ok := s.generate(ctx, contextText, message); ok {
		return ChatResult{Answer: answer, Category: cat.String(), ContextUsed: contextText, Model: model}, nil
	}
	return ChatResult{
		Answer:      answerMachine(cat, mc),
		Category:    cat.String(),
		ContextUsed: contextText,
		Model:       ruleModel,
	}, nil
}

func (s *Service) chatFleet(ctx context.Context, message string, cat Category) (ChatResult, error) {
	fc := &FleetContext{Summary: s.source.Fleet(ctx)}

	contextText := fc.Format()
	if answer, model, ok := s.generate(ctx, contextText, message); ok {
		return ChatResult{Answer: answer, Category: cat.String(), ContextUsed: contextText, Model: model}, nil
	}
	return ChatResult{
		Answer:      answerFleet(cat, fc),
		Category:    cat.String(),
		ContextUsed: contextText,
		Model:       ruleModel,
	}, nil
}

// Narrate runs the provider chain over an arbitrary system and user prompt,
// for callers that render their own context (the report generator). The ok
// result is false when no model produced an acceptable response.
func (s *Service) Narrate(ctx context.Context, system, user string) (answer, model string, ok bool) {
	if len(s.chain.providers) == 0 {
		return "", "", false
	}
	answer, model, err := s.chain.Generate(ctx, Request{System: system, User: user, MaxTokens: 600})
	if err != nil {
		return "", "", false
	}
	return answer, model, true
}

// generate runs the provider chain over a context block and question. The
// ok result is false when the chain is empty or every provider failed.
func (s *Service) generate(ctx context.Context, contextText, question string) (answer, model string, ok bool) {
	if len(s.chain.providers) == 0 {
		return "", "", false
	}
	req := Request{
		System: chatSystemPrompt,
		User:   fmt.Sprintf("Telemetry context:\n%s\nQuestion: %s", contextText, question),
	}
	answer, model, err := s.chain.Generate(ctx, req)
	if err != nil {
		slog.Info("explain: falling back to rule-based answer", "err", err)
		return "", "", false
	}
	return answer, model, true
}

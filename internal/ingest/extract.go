package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yourorg/healthassistant/internal/llm"
)

// extractedLab is one record the extraction prompt asks the model to
// produce.
type extractedLab struct {
	TestName     string   `json:"test_name"`
	TestCode     *string  `json:"test_code,omitempty"`
	Value        *float64 `json:"value"`
	Unit         string   `json:"unit"`
	ReferenceMin *float64 `json:"reference_min,omitempty"`
	ReferenceMax *float64 `json:"reference_max,omitempty"`
	Status       *string  `json:"status,omitempty"`
	RecordedAt   string   `json:"recorded_at"`
}

const extractionSystemPrompt = `You extract structured lab values from raw medical document text.
Respond with a JSON array only, no prose, no markdown fences. Each element has:
test_name (string, required), test_code (string, optional, LOINC-like),
value (number, required), unit (string, required), reference_min (number, optional),
reference_max (number, optional), status (string, optional), recorded_at (ISO date, required).
If no lab values are present, respond with [].`

const strictJSONReinforcement = "Your previous reply was not valid JSON. Respond again with a JSON array only: no prose, no markdown fences, no trailing commentary."

// Extractor calls the gateway's non-streaming chat with the configured
// extraction model and parses the reply: one retry with a strict-JSON
// reinforcement message on parse failure.
type Extractor struct {
	gateway *llm.Gateway
	model   string
}

func NewExtractor(gateway *llm.Gateway, model string) *Extractor {
	return &Extractor{gateway: gateway, model: model}
}

func (e *Extractor) Extract(ctx context.Context, rawText string) ([]extractedLab, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: extractionSystemPrompt},
		{Role: llm.RoleUser, Content: rawText},
	}

	reply, err := e.gateway.Chat(ctx, messages, e.model, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("ingest: extraction chat: %w", err)
	}

	records, parseErr := parseExtractedLabs(reply)
	if parseErr == nil {
		return records, nil
	}

	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: reply},
		llm.Message{Role: llm.RoleUser, Content: strictJSONReinforcement},
	)
	reply, err = e.gateway.Chat(ctx, messages, e.model, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("ingest: extraction retry chat: %w", err)
	}
	records, parseErr = parseExtractedLabs(reply)
	if parseErr != nil {
		return nil, fmt.Errorf("ingest: extraction reply was not valid JSON after retry: %w", parseErr)
	}
	return records, nil
}

func parseExtractedLabs(reply string) ([]extractedLab, error) {
	var records []extractedLab
	if err := json.Unmarshal([]byte(reply), &records); err != nil {
		return nil, err
	}
	return records, nil
}

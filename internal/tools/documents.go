package tools

import (
	"context"
	"encoding/json"

	"github.com/yourorg/healthassistant/internal/store"
)

// listDocumentsTool lets the assistant answer "what documents do I have
// on file" without guessing.
type listDocumentsTool struct{}

func (listDocumentsTool) Name() string { return "list_documents" }

func (listDocumentsTool) Description() string {
	return "List recently ingested medical documents with their type, status, and document date."
}

func (listDocumentsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"additionalProperties": false
	}`)
}

type documentSummary struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	DocumentType string  `json:"document_type"`
	Status       string  `json:"status"`
	DocumentDate *string `json:"document_date,omitempty"`
}

func (listDocumentsTool) Execute(ctx context.Context, ownerID string, reader store.Reader, arguments json.RawMessage) (json.RawMessage, error) {
	docs, err := reader.ListDocuments(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		summary := documentSummary{
			ID:           d.ID,
			Title:        d.Title,
			DocumentType: string(d.DocumentType),
			Status:       string(d.Status),
		}
		if d.DocumentDate != nil {
			formatted := d.DocumentDate.Format("2006-01-02")
			summary.DocumentDate = &formatted
		}
		out = append(out, summary)
	}
	return json.Marshal(out)
}

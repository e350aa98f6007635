// Package models defines the core data types shared across the health
// assistant: the logical entities from the data store, and the wire
// types used by the LLM gateway and tool catalog.
package models

import (
	"encoding/json"
	"time"
)

// DocumentType enumerates the kinds of medical document the pipeline accepts.
type DocumentType string

const (
	DocumentLabReport    DocumentType = "lab_report"
	DocumentPrescription DocumentType = "prescription"
	DocumentImaging      DocumentType = "imaging"
	DocumentOther        DocumentType = "other"
)

// DocumentStatus is the ingestion pipeline's state machine, see internal/ingest.
type DocumentStatus string

const (
	DocumentUploading  DocumentStatus = "uploading"
	DocumentParsing    DocumentStatus = "parsing"
	DocumentParsed     DocumentStatus = "parsed"
	DocumentExtracting DocumentStatus = "extracting"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Role identifies who produced a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// LabStatus is the normalized clinical flag for a lab result.
type LabStatus string

const (
	LabNormal   LabStatus = "normal"
	LabHigh     LabStatus = "high"
	LabLow      LabStatus = "low"
	LabCritical LabStatus = "critical"
)

// User is the account owning all other per-user rows. Lifecycle (creation,
// auth) is managed externally; the core only ever references User.ID.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is a conversation container owning an ordered message log.
type ChatSession struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          *string   `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ToolCallRecord captures one tool invocation made during an assistant turn,
// persisted on ChatMessage.Metadata so a later replay can reconstruct the
// assistant-with-tool-calls / tool-result turns without storing them
// separately.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
}

// MessageMetadata is the structured blob stored alongside an assistant turn.
type MessageMetadata struct {
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// ChatMessage is one turn in a session.
type ChatMessage struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MedicalDocument is one uploaded file moving through the ingestion pipeline.
type MedicalDocument struct {
	ID               string          `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Title            string          `json:"title"`
	OriginalFilename string          `json:"original_filename,omitempty"`
	DocumentType     DocumentType    `json:"document_type"`
	FilePath         string          `json:"file_path"`
	FileType         string          `json:"file_type"`
	RawText          *string         `json:"raw_text,omitempty"`
	ParsedData       json.RawMessage `json:"parsed_data,omitempty"`
	DocumentDate     *time.Time      `json:"document_date,omitempty"`
	Status           DocumentStatus  `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// LabResult is one measurement, extracted from a document or seeded directly.
type LabResult struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	DocumentID    *string    `json:"document_id,omitempty"`
	TestName      string     `json:"test_name"`
	TestCode      *string    `json:"test_code,omitempty"`
	Value         float64    `json:"value"`
	Unit          string     `json:"unit"`
	ReferenceMin  *float64   `json:"reference_min,omitempty"`
	ReferenceMax  *float64   `json:"reference_max,omitempty"`
	Status        *LabStatus `json:"status,omitempty"`
	RecordedAt    time.Time  `json:"recorded_at"`
}

// SymptomEntry is one user-logged symptom event.
type SymptomEntry struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	SymptomType     string    `json:"symptom_type"`
	Severity        int       `json:"severity"`
	Notes           *string   `json:"notes,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Triggers        []string  `json:"triggers,omitempty"`
}

// WearableSample is one normalized reading from a wearable time series. The
// core only ever reads these; ingestion happens entirely outside this module.
type WearableSample struct {
	SeriesType string    `json:"series_type"`
	RecordedAt time.Time `json:"recorded_at"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Source     string    `json:"source,omitempty"`
}

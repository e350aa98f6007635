package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yourorg/healthassistant/internal/artifacts"
	"github.com/yourorg/healthassistant/internal/chat"
	"github.com/yourorg/healthassistant/internal/ingest"
	"github.com/yourorg/healthassistant/internal/llm"
	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
	"github.com/yourorg/healthassistant/internal/tools"
)

// newFakeChatServer emulates the inference server's SSE wire format for a
// single-turn, no-tool-calls reply.
func newFakeChatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunk, _ := json.Marshal(map[string]any{
			"id": "c1", "object": "chat.completion.chunk", "created": 1, "model": "m",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": reply}, "finish_reason": nil}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, chatReply, extractionReply string) (*httptest.Server, store.Set, string) {
	t.Helper()
	s := store.NewMemoryStores()

	chatSrv := newFakeChatServer(t, chatReply)
	gateway := llm.New(llm.Config{BaseURL: chatSrv.URL + "/v1", ChatModel: "m", ExtractionModel: "extract-model"})

	catalog, err := tools.New(store.NewReader(s), chat.OwnerResolver)
	if err != nil {
		t.Fatalf("tools.New: %v", err)
	}
	orchestrator := chat.New(s.Sessions, s.Messages, gateway, catalog, "m")

	extractSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]any{
			"id": "x", "object": "chat.completion", "created": 1, "model": "extract-model",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": extractionReply}, "finish_reason": "stop"}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}))
	t.Cleanup(extractSrv.Close)
	extractGateway := llm.New(llm.Config{BaseURL: extractSrv.URL + "/v1", ExtractionModel: "extract-model"})
	extractor := ingest.NewExtractor(extractGateway, "extract-model")

	ocr := &testOCR{text: "Hemoglobin 13.5 g/dL on 2025-01-01"}
	pipeline := ingest.New(ingest.Config{Workers: 1}, s.Documents, s.Labs, ocr, extractor, nil)
	t.Cleanup(pipeline.Stop)

	uploadDir := t.TempDir()
	uploads, err := artifacts.NewLocalStore(uploadDir)
	if err != nil {
		t.Fatalf("artifacts.NewLocalStore: %v", err)
	}
	server := New(Config{
		Documents:    s.Documents,
		Labs:         s.Labs,
		Symptoms:     s.Symptoms,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Gateway:      gateway,
		Uploads:      uploads,
	})

	httpSrv := httptest.NewServer(server.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv, s, uploadDir
}

type testOCR struct{ text string }

func (o *testOCR) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	return o.text, nil
}

func TestChatSessionLifecycleOverHTTP(t *testing.T) {
	httpSrv, _, _ := newTestServer(t, "hello from the assistant", "[]")

	body, _ := json.Marshal(map[string]string{"user_id": "u1"})
	resp, err := http.Post(httpSrv.URL+"/chat/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var session models.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	msgBody, _ := json.Marshal(map[string]string{"content": "hi"})
	sendResp, err := http.Post(httpSrv.URL+"/chat/sessions/"+session.ID+"/messages", "application/json", bytes.NewReader(msgBody))
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	defer sendResp.Body.Close()
	if sendResp.StatusCode != http.StatusOK {
		t.Fatalf("send message status = %d", sendResp.StatusCode)
	}
	if ct := sendResp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	sseBody := new(bytes.Buffer)
	sseBody.ReadFrom(sendResp.Body)
	if !strings.Contains(sseBody.String(), "hello from the assistant") {
		t.Errorf("sse body = %q, want assistant content", sseBody.String())
	}

	getResp, err := http.Get(httpSrv.URL + "/chat/sessions/" + session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer getResp.Body.Close()
	var detail struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode session detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(detail.Messages))
	}
}

func TestSessionCascadeDeleteOverHTTP(t *testing.T) {
	httpSrv, s, _ := newTestServer(t, "hi", "[]")

	body, _ := json.Marshal(map[string]string{"user_id": "u1"})
	resp, err := http.Post(httpSrv.URL+"/chat/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	var session models.ChatSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	resp.Body.Close()

	msgBody, _ := json.Marshal(map[string]string{"content": "hi"})
	sendResp, err := http.Post(httpSrv.URL+"/chat/sessions/"+session.ID+"/messages", "application/json", bytes.NewReader(msgBody))
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	new(bytes.Buffer).ReadFrom(sendResp.Body)
	sendResp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, httpSrv.URL+"/chat/sessions/"+session.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete session: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delResp.StatusCode)
	}

	if msgs, err := s.Messages.ListForSession(context.Background(), session.ID); err != nil || len(msgs) != 0 {
		t.Errorf("messages after cascade delete = %v (err=%v), want empty", msgs, err)
	}

	getResp, err := http.Get(httpSrv.URL + "/chat/sessions/" + session.ID)
	if err != nil {
		t.Fatalf("get deleted session: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted session status = %d, want 404", getResp.StatusCode)
	}
}

func TestDocumentUploadEnqueuesIngestion(t *testing.T) {
	httpSrv, s, _ := newTestServer(t, "ok", `[{"test_name":"Hemoglobin","value":13.5,"unit":"g/dL","recorded_at":"2025-01-01"}]`)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("user_id", "u1")
	_ = w.WriteField("title", "CBC Panel")
	_ = w.WriteField("document_type", "lab_report")
	part, err := w.CreateFormFile("file", "cbc.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("raw document bytes"))
	w.Close()

	req, err := http.NewRequest(http.MethodPost, httpSrv.URL+"/documents/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var doc models.MedicalDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Status != models.DocumentUploading {
		t.Fatalf("status = %v, want uploading", doc.Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.Documents.Get(context.Background(), doc.ID)
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		if got.Status == models.DocumentCompleted {
			labs, err := s.Labs.ListForUser(context.Background(), "u1", store.ListFilter{})
			if err != nil {
				t.Fatalf("list labs: %v", err)
			}
			if len(labs) != 1 {
				t.Fatalf("labs = %+v, want 1", labs)
			}
			return
		}
		if got.Status == models.DocumentFailed {
			t.Fatalf("document failed: %s", got.ParsedData)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("document never completed")
}

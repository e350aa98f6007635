package api

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/healthassistant/internal/models"
	"github.com/yourorg/healthassistant/internal/store"
)

const maxUploadSize = 32 << 20 // 32MiB, generous for scanned lab reports

var validDocumentTypes = map[models.DocumentType]bool{
	models.DocumentLabReport:    true,
	models.DocumentPrescription: true,
	models.DocumentImaging:      true,
	models.DocumentOther:        true,
}

// handleUploadDocument stores the uploaded file through the artifacts
// store, inserts a MedicalDocument row with status=uploading, and
// enqueues the ingestion job.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart", err.Error())
		return
	}

	userID := r.FormValue("user_id")
	title := r.FormValue("title")
	docTypeRaw := r.FormValue("document_type")
	if userID == "" || title == "" || docTypeRaw == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "user_id, title, and document_type are required")
		return
	}
	docType := models.DocumentType(docTypeRaw)
	if !validDocumentTypes[docType] {
		writeError(w, http.StatusBadRequest, "invalid_document_type", fmt.Sprintf("unknown document_type %q", docTypeRaw))
		return
	}

	var documentDate *time.Time
	if raw := r.FormValue("document_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_document_date", err.Error())
			return
		}
		documentDate = &t
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "file is required")
		return
	}
	defer file.Close()

	docID := uuid.NewString()
	storedPath, err := s.uploads.Put(r.Context(), docID, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_write_failed", err.Error())
		return
	}

	doc := &models.MedicalDocument{
		ID:               docID,
		OwnerID:          userID,
		Title:            title,
		OriginalFilename: header.Filename,
		DocumentType:     docType,
		FilePath:         storedPath,
		FileType:         fileContentType(header),
		DocumentDate:     documentDate,
		Status:           models.DocumentUploading,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.documents.Create(r.Context(), doc); err != nil {
		_ = s.uploads.Remove(r.Context(), storedPath)
		writeError(w, http.StatusInternalServerError, "create_document_failed", err.Error())
		return
	}

	s.pipeline.Enqueue(r.Context(), doc.ID)

	writeJSON(w, http.StatusCreated, doc)
}

// fileContentType prefers the MIME type the client declared for the part,
// falling back to a guess from the filename extension.
func fileContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(header.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	docs, err := s.documents.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_documents_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get_document_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument removes the document row and its stored file;
// derived lab rows are kept with their document_id nulled out by the store.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete_document_failed", err.Error())
		return
	}
	if err := s.documents.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete_document_failed", err.Error())
		return
	}
	if err := s.uploads.Remove(r.Context(), doc.FilePath); err != nil && s.logger != nil {
		s.logger.Warn(r.Context(), "stored file removal failed", "document_id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package api provides HTTP handlers for LoanFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nimblefin/loanflow/internal/models"
)

// sessionIDFromContext reads the session ID stored by withSessionID.
func sessionIDFromContext(r *http.Request) string {
	id, _ := r.Context().Value(ContextKeySessionID).(string)
	return id
}

// createSessionHandler handles POST /sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSessionHandler: processing request", "method", r.Method, "path", r.URL.Path)

	result, err := s.engine.StartSession(r.Context())
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to start session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start session"))
		return
	}

	slog.Info("Server.createSessionHandler: session started", "sessionID", result.SessionID)
	writeJSONResponse(w, http.StatusCreated, models.Success(result))
}

// submitMessageHandler handles POST /sessions/{id}/messages.
func (s *Server) submitMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.submitMessageHandler: processing request", "sessionID", sessionID)

	var req models.SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitMessageHandler: failed to decode JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.submitMessageHandler: validation failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.engine.Submit(r.Context(), sessionID, models.TextInput(req.Content))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			slog.Debug("Server.submitMessageHandler: session not found", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrEmptySubmission):
			slog.Warn("Server.submitMessageHandler: empty submission", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Submission must not be empty"))
		default:
			slog.Error("Server.submitMessageHandler: submit failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process submission"))
		}
		return
	}

	slog.Debug("Server.submitMessageHandler: submission processed", "sessionID", sessionID, "rejected", result.Rejected, "completed", result.Completed)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// listMessagesHandler handles GET /sessions/{id}/messages.
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.listMessagesHandler: processing request", "sessionID", sessionID)

	entries, err := s.engine.Transcript(sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.listMessagesHandler: failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}

	slog.Debug("Server.listMessagesHandler: succeeded", "sessionID", sessionID, "count", len(entries))
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}

// getStateHandler handles GET /sessions/{id}/state.
func (s *Server) getStateHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.getStateHandler: processing request", "sessionID", sessionID)

	state, err := s.engine.State(sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getStateHandler: failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get session state"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

// getQuestionHandler handles GET /sessions/{id}/question.
func (s *Server) getQuestionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.getQuestionHandler: processing request", "sessionID", sessionID)

	question, err := s.engine.CurrentQuestion(sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getQuestionHandler: failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get current question"))
		return
	}
	if question == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Application completed", nil))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(question))
}

// uploadDocumentHandler handles POST /sessions/{id}/documents. It accepts a
// multipart form with a "file" part, stores the document via the uploader,
// and submits the resulting file reference as the answer to the current
// question.
func (s *Server) uploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.uploadDocumentHandler: processing request", "sessionID", sessionID)

	if s.uploader == nil {
		slog.Warn("Server.uploadDocumentHandler: uploader not configured", "sessionID", sessionID)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Document upload is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		slog.Warn("Server.uploadDocumentHandler: failed to parse multipart form", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid multipart form or file too large"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Warn("Server.uploadDocumentHandler: missing file part", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: file"))
		return
	}
	defer file.Close()

	fileName := strings.TrimSpace(header.Filename)
	if fileName == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Uploaded file must have a name"))
		return
	}
	mediaType := header.Header.Get("Content-Type")

	url, err := s.uploader.Upload(r.Context(), sessionID, fileName, mediaType, file, header.Size)
	if err != nil {
		slog.Error("Server.uploadDocumentHandler: upload failed", "error", err, "sessionID", sessionID, "fileName", fileName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store document"))
		return
	}

	result, err := s.engine.Submit(r.Context(), sessionID, models.FileInput(models.FileRef{
		Name:      fileName,
		MediaType: mediaType,
		URL:       url,
	}))
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.uploadDocumentHandler: submit failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process document"))
		return
	}

	slog.Info("Server.uploadDocumentHandler: document processed", "sessionID", sessionID, "fileName", fileName, "rejected", result.Rejected)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

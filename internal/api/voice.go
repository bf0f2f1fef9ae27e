// Package api provides the voice channel for LoanFlow sessions.
//
// Voice clients hold a websocket open for the life of a session and send
// transcribed utterances as JSON frames. Each utterance runs through the same
// flow engine as typed messages; replies, rejections, and celebration events
// stream back on the same connection.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nimblefin/loanflow/internal/models"
	"github.com/nimblefin/loanflow/internal/util"
)

var voiceUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// voiceHandler handles GET /sessions/{id}/voice websocket upgrades.
func (s *Server) voiceHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDFromContext(r)
	slog.Debug("Server.voiceHandler: processing upgrade request", "sessionID", sessionID)

	if _, err := s.engine.State(sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.voiceHandler: failed to load session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}

	conn, err := voiceUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Server.voiceHandler: websocket upgrade failed", "error", err, "sessionID", sessionID)
		return
	}
	connID := util.GenerateConnectionID()
	slog.Info("Server.voiceHandler: voice connection opened", "sessionID", sessionID, "connID", connID)

	defer func() {
		conn.Close()
		slog.Info("Server.voiceHandler: voice connection closed", "sessionID", sessionID, "connID", connID)
	}()

	for {
		var frame models.VoiceFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Server.voiceHandler: unexpected close", "error", err, "sessionID", sessionID, "connID", connID)
			}
			return
		}

		reply := s.handleVoiceFrame(r, sessionID, frame)
		if err := conn.WriteJSON(reply); err != nil {
			slog.Warn("Server.voiceHandler: write failed", "error", err, "sessionID", sessionID, "connID", connID)
			return
		}
	}
}

// handleVoiceFrame routes one inbound frame through the flow engine.
func (s *Server) handleVoiceFrame(r *http.Request, sessionID string, frame models.VoiceFrame) models.VoiceFrame {
	if frame.Type != models.VoiceFrameUtterance {
		return models.VoiceFrame{
			Type:  models.VoiceFrameError,
			Error: "Unsupported frame type: " + frame.Type,
		}
	}

	result, err := s.engine.Submit(r.Context(), sessionID, models.TextInput(frame.Content))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmptySubmission):
			return models.VoiceFrame{
				Type:  models.VoiceFrameError,
				Error: "Utterance must not be empty",
			}
		case errors.Is(err, models.ErrSessionNotFound):
			return models.VoiceFrame{
				Type:  models.VoiceFrameError,
				Error: "Session no longer exists",
			}
		default:
			slog.Error("Server.handleVoiceFrame: submit failed", "error", err, "sessionID", sessionID)
			return models.VoiceFrame{
				Type:  models.VoiceFrameError,
				Error: "Failed to process utterance",
			}
		}
	}

	return models.VoiceFrame{
		Type:        models.VoiceFrameReply,
		Entries:     result.Entries,
		Celebration: result.Celebration,
		Completed:   result.Completed,
		Rejected:    result.Rejected,
	}
}

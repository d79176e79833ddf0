// Package api provides HTTP handlers for Apollobot endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/aera-procure/apollobot/internal/bot"
	"github.com/aera-procure/apollobot/internal/models"
)

// messagesHandler receives Bot Framework activities (POST /api/messages).
// The Authorization header is treated as opaque: it is handed to the
// configured validator untouched, and outbound authentication happens
// separately via the connector.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messagesHandler: processing activity", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.messagesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.authValidate != nil {
		if err := s.authValidate(r.Header.Get("Authorization")); err != nil {
			slog.Warn("Server.messagesHandler: authorization rejected", "error", err)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
			return
		}
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		slog.Warn("Server.messagesHandler: unsupported content type", "content_type", r.Header.Get("Content-Type"))
		writeJSONResponse(w, http.StatusUnsupportedMediaType, models.Error("Content-Type must be application/json"))
		return
	}

	var activity models.Activity
	if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := activity.Validate(); err != nil {
		slog.Warn("Server.messagesHandler: validation failed", "error", err, "type", activity.Type)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Debug("Server.messagesHandler: parsed activity", "type", activity.Type, "conversation_id", activity.ConversationID())

	ctx, cancel := context.WithTimeout(r.Context(), DefaultHandlerTimeout)
	defer cancel()
	if err := s.router.HandleActivity(ctx, &activity); err != nil {
		if errors.Is(err, models.ErrInvalidActivity) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.messagesHandler: activity handling failed", "error", err, "conversation_id", activity.ConversationID())
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process activity"))
		return
	}

	slog.Info("Server.messagesHandler: activity processed", "type", activity.Type, "conversation_id", activity.ConversationID())
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Activity processed", nil))
}

// healthHandler answers liveness probes (GET /).
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(bot.Greeting(), nil))
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmvargas/charla/internal/identity"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type addContactRequest struct {
	Self  string `json:"self"`
	Other string `json:"other"`
}

type addContactResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := &models.User{Email: req.Email, DisplayName: req.Name}
	if err := s.store.PutProfile(r.Context(), user); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info().Str("email", user.Email).Msg("profile registered")
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	conv, created, err := s.resolver.CreateIfAbsent(r.Context(), req.Self, req.Other)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addContactResponse{Conversation: conv, Created: created})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg := &models.Message{
		ConversationID: req.ConversationID,
		Sender:         req.Sender,
		Text:           req.Text,
	}
	stored, err := s.store.AppendMessage(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation")
	if conversationID == "" {
		http.Error(w, "missing conversation parameter", http.StatusBadRequest)
		return
	}
	messages, err := s.store.ListMessages(r.Context(), conversationID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var valErr *models.ValidationError
	switch {
	case errors.As(err, &valErr), errors.Is(err, models.ErrSelfPair):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, identity.ErrUnknownUser):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// Applications are scoped to their owner; another user's application reads as
// not found.

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	page, err := s.app.OAuthService.ListApplications(r.Context(), common.ResolveUserID(r.Context()), listOptions(r))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var in models.ApplicationInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	app, err := s.app.OAuthService.CreateApplication(r.Context(), common.ResolveUserID(r.Context()), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.app.OAuthService.GetApplication(r.Context(), common.ResolveUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	var in models.ApplicationUpdate
	if !DecodeJSON(w, r, &in) {
		return
	}
	app, err := s.app.OAuthService.UpdateApplication(r.Context(), common.ResolveUserID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := s.app.OAuthService.DeleteApplication(r.Context(), common.ResolveUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Application deleted")
}

func (s *Server) handleRegenerateSecret(w http.ResponseWriter, r *http.Request) {
	app, err := s.app.OAuthService.RegenerateSecret(r.Context(), common.ResolveUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, app)
}

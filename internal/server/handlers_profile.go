package server

import (
	"net/http"

	"github.com/bobmcallan/gatekeep/internal/common"
)

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	userID := common.ResolveUserID(r.Context())
	if err := s.app.SessionService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Password changed")
}

func (s *Server) handleLinkProvider(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	var req federatedLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	account, err := s.app.SessionService.LinkFederated(r.Context(), common.ResolveUserID(r.Context()), p, req.Code, req.State)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, account)
}

func (s *Server) handleUnlinkProvider(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	if err := s.app.SessionService.UnlinkFederated(r.Context(), common.ResolveUserID(r.Context()), p); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Account unlinked")
}

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type federatedLoginRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Generic replies for endpoints that must not reveal whether an account exists.
const (
	msgVerificationSent = "If the email is registered and unverified, a verification link has been sent"
	msgResetSent        = "If the email is registered, a password reset link has been sent"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.SessionService.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Registration successful, please check your email to verify your account",
		"user":    user,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	result, err := s.app.SessionService.Login(r.Context(), req.Email, req.Password, r.UserAgent(), clientIP(r))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		WriteError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}
	pair, err := s.app.SessionService.RefreshTokens(r.Context(), req.RefreshToken, r.UserAgent(), clientIP(r))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, pair)
}

// handleLogout accepts an optional {refreshToken}; without one every session
// of the user is ended.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	p := common.PrincipalFromContext(r.Context())
	if err := s.app.SessionService.Logout(r.Context(), p.UserID, p.AccessToken, req.RefreshToken); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Logged out")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.app.SessionService.GetProfile(r.Context(), common.ResolveUserID(r.Context()))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.app.SessionService.VerifyEmail(r.Context(), req.Token); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Email verified")
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.app.SessionService.ResendVerification(r.Context(), common.ResolveUserID(r.Context())); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Verification email sent")
}

func (s *Server) handleResendVerificationByEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.app.SessionService.ResendVerificationByEmail(r.Context(), req.Email); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, msgVerificationSent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.app.SessionService.ForgotPassword(r.Context(), req.Email); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, msgResetSent)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := s.app.SessionService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Password has been reset")
}

// providerParam resolves the {provider} URL segment, writing a 404 when the
// provider is unknown.
func providerParam(w http.ResponseWriter, r *http.Request) (models.Provider, bool) {
	p, ok := models.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		WriteError(w, http.StatusNotFound, "Unknown provider")
	}
	return p, ok
}

func (s *Server) handleFederatedConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	cfg, err := s.app.SessionService.FederatedConfig(p)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := providerParam(w, r)
	if !ok {
		return
	}
	var req federatedLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	result, err := s.app.SessionService.FederatedLogin(r.Context(), p, req.Code, req.State, r.UserAgent(), clientIP(r))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

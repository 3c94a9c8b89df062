package server

import (
	"mime"
	"net/http"
	"net/url"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

type consentRequest struct {
	ClientID    string `json:"clientId"`
	RedirectURI string `json:"redirectUri"`
	State       string `json:"state"`
}

type consentResponse struct {
	RedirectURL string                    `json:"redirectUrl"`
	Application models.ApplicationSummary `json:"application"`
}

type revokeGrantRequest struct {
	ApplicationID string `json:"applicationId"`
}

// queryParam returns the first non-empty value among the given query keys.
// Standard OAuth clients send snake_case names.
func queryParam(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func isFormRequest(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/x-www-form-urlencoded"
}

func (s *Server) handleAuthorizeInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	info, err := s.app.OAuthService.Authorize(r.Context(),
		queryParam(q, "clientId", "client_id"),
		queryParam(q, "redirectUri", "redirect_uri"))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	info.State = q.Get("state")
	WriteJSON(w, http.StatusOK, info)
}

// handleAuthorizeConsent records the signed-in user's consent and returns the
// client redirect carrying the new code.
func (s *Server) handleAuthorizeConsent(w http.ResponseWriter, r *http.Request) {
	var req consentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	issued, err := s.app.OAuthService.CreateAuthorizationCode(r.Context(),
		common.ResolveUserID(r.Context()), req.ClientID, req.RedirectURI)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	target, err := url.Parse(req.RedirectURI)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	q := target.Query()
	q.Set("code", issued.Code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	target.RawQuery = q.Encode()

	WriteJSON(w, http.StatusOK, consentResponse{
		RedirectURL: target.String(),
		Application: issued.Application.Summary(),
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if isFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid form body")
			return
		}
		f := r.PostForm
		req = models.TokenRequest{
			Code:         f.Get("code"),
			ClientID:     queryParam(f, "clientId", "client_id"),
			ClientSecret: queryParam(f, "clientSecret", "client_secret"),
			RedirectURI:  queryParam(f, "redirectUri", "redirect_uri"),
			GrantType:    queryParam(f, "grantType", "grant_type"),
		}
	} else if !DecodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.OAuthService.ExchangeToken(r.Context(), req)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if isFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid form body")
			return
		}
		f := r.PostForm
		req = models.RefreshRequest{
			RefreshToken: queryParam(f, "refreshToken", "refresh_token"),
			ClientID:     queryParam(f, "clientId", "client_id"),
			ClientSecret: queryParam(f, "clientSecret", "client_secret"),
			GrantType:    queryParam(f, "grantType", "grant_type"),
		}
	} else if !DecodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.OAuthService.RefreshToken(r.Context(), req)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOAuthMe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeBearerChallenge(w, "invalid_request", "missing bearer token")
		return
	}
	info, err := s.app.OAuthService.GetUserByAccessToken(r.Context(), token)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := s.app.OAuthService.ListGrants(r.Context(), common.ResolveUserID(r.Context()))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, grants)
}

// handleRevokeGrant takes applicationId from the query string or a JSON body.
func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("applicationId")
	if appID == "" && r.ContentLength > 0 {
		var req revokeGrantRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		appID = req.ApplicationID
	}
	if appID == "" {
		WriteError(w, http.StatusBadRequest, "applicationId is required")
		return
	}
	if err := s.app.OAuthService.RevokeGrant(r.Context(), common.ResolveUserID(r.Context()), appID); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Authorization revoked")
}

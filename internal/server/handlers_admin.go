package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

type roleIDsRequest struct {
	RoleIDs []string `json:"roleIds"`
}

type permissionIDsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

// --- users ---

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := s.app.AdminService.ListUsers(r.Context(), listOptions(r))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var in models.AdminUserInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	user, err := s.app.AdminService.CreateUser(r.Context(), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

func (s *Server) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.AdminService.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in models.AdminUserUpdate
	if !DecodeJSON(w, r, &in) {
		return
	}
	user, err := s.app.AdminService.UpdateUser(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminSetUserRoles(w http.ResponseWriter, r *http.Request) {
	var req roleIDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.AdminService.SetUserRoles(r.Context(), chi.URLParam(r, "id"), req.RoleIDs)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.app.AdminService.DeleteUser(r.Context(), common.ResolveUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "User deleted")
}

// --- roles ---

func (s *Server) handleAdminListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.app.AdminService.ListRoles(r.Context())
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, roles)
}

func (s *Server) handleAdminCreateRole(w http.ResponseWriter, r *http.Request) {
	var in models.RoleInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	role, err := s.app.AdminService.CreateRole(r.Context(), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, role)
}

func (s *Server) handleAdminGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.app.AdminService.GetRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, role)
}

func (s *Server) handleAdminUpdateRole(w http.ResponseWriter, r *http.Request) {
	var in models.RoleUpdate
	if !DecodeJSON(w, r, &in) {
		return
	}
	role, err := s.app.AdminService.UpdateRole(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, role)
}

func (s *Server) handleAdminSetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req permissionIDsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	role, err := s.app.AdminService.SetRolePermissions(r.Context(), chi.URLParam(r, "id"), req.PermissionIDs)
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, role)
}

func (s *Server) handleAdminDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.app.AdminService.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteMessage(w, "Role deleted")
}

// --- permissions ---

func (s *Server) handleAdminListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := s.app.AdminService.ListPermissions(r.Context())
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, perms)
}

func (s *Server) handleAdminListPermissionModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.app.AdminService.ListPermissionModules(r.Context())
	if err != nil {
		s.WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, modules)
}

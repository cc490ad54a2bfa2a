package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/tenantgate/internal/api"
	"github.com/wolfeidau/tenantgate/internal/apperr"
	httpx "github.com/wolfeidau/tenantgate/internal/http"
	"github.com/wolfeidau/tenantgate/internal/identity"
)

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req api.ResolveRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	id, err := s.resolver.Resolve(r.Context(), identity.ResolveCommand{
		ExternalUserID: req.ClerkUserID,
		ExternalOrgID:  req.ClerkOrgID,
		Email:          req.Email,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, api.ResolveResponse{
		UserID:   id.UserID.String(),
		TenantID: id.TenantID.String(),
	})
}

func (s *Server) renameTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenantId")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var req api.RenameTenantRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		httpx.WriteError(w, r, fmt.Errorf("%w: invalid userId", apperr.ErrValidation))
		return
	}

	err = s.authorizer.RenameTenant(r.Context(), identity.RenameCommand{
		UserID:   userID,
		TenantID: tenantID,
		Name:     req.Name,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) userEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userId")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	email, found, err := s.directory.UserEmail(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	resp := api.UserEmailResponse{}
	if found {
		resp.Email = &email
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenantId")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	tenant, err := s.directory.Tenant(r.Context(), tenantID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, api.TenantResponse{
		ID:        tenant.TenantID.String(),
		Name:      tenant.Name,
		CreatedAt: tenant.CreatedAt,
		UpdatedAt: tenant.UpdatedAt,
	})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name)
	}
	return id, nil
}

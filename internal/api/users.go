package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"sampleflow/internal/api/middleware"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, credentialsMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, credentialsMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	message, err := h.svc.Activate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req, missingMessages{"Email": "Email address missing"}); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req, resetPasswordMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.ResetPassword(r.Context(), req.ResetToken, req.Email, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req, changePasswordMissing); err != nil {
		h.writeError(w, r, err)
		return
	}
	message, err := h.svc.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) adminToken(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	token, err := h.svc.IssueToken(r.Context(), user.Email, h.adminTokenTTL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

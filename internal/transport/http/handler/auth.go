package handler

import (
	"encoding/json"
	"net/http"

	"github.com/firetrack360/identity/internal/application/auth"
	"github.com/firetrack360/identity/internal/domain"
	"github.com/firetrack360/identity/internal/pkg/validate"
)

// AuthHandler exposes the auth state machine over HTTP.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

func (h *AuthHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.VerifyAccount(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.Login(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyLogin(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, res.Status, res)
}

func (h *AuthHandler) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.ForgetPassword(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

func (h *AuthHandler) VerifyPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyPasswordReset(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, res.Status, res)
}

func (h *AuthHandler) ReplaceForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.NewPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Field presence is checked by the service so the error taxonomy
	// stays in one place.
	resp, err := h.svc.ReplaceForgotPassword(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

func (h *AuthHandler) ResendVerificationOtp(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.svc.ResendVerificationOtp(r.Context(), req.Email)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, resp.Status, resp)
}

// decode unmarshals and validates the request body, writing the error
// response itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

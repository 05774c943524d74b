package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type Handler struct {
	service *Service
	// devExposeCode returns the sign-in code in the response instead of
	// delivering it out of band. Local development only.
	devExposeCode bool
}

func NewHandler(service *Service, devExposeCode bool) *Handler {
	return &Handler{service: service, devExposeCode: devExposeCode}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// POST /api/auth/request-code
func (h *Handler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	exp, code, err := h.service.RequestCode(in.Email, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail):
			writeErr(w, http.StatusBadRequest, err.Error())
		default:
			writeErr(w, http.StatusInternalServerError, "could not request sign-in code")
		}
		return
	}

	h.service.logger.Printf("[auth] sign-in code for %s is %s (expires %s)", in.Email, code, exp.Format(time.RFC3339))

	resp := map[string]any{
		"ok":        true,
		"expiresAt": exp.Format(time.RFC3339),
	}
	if h.devExposeCode {
		resp["code"] = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/auth/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, token, exp, err := h.service.VerifyCode(in.Email, in.Code, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrBadCodeFormat):
			writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrCodeExpired):
			writeErr(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrTooManyAttempts):
			writeErr(w, http.StatusTooManyRequests, err.Error())
		default:
			writeErr(w, http.StatusInternalServerError, "could not verify sign-in code")
		}
		return
	}

	h.service.SetSessionCookie(w, r, token, exp)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"user":      map[string]any{"id": u.ID, "email": u.Email},
		"expiresAt": exp.Format(time.RFC3339),
	})
}

// GET /api/auth/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	u, sess, ok := h.service.AuthenticateRequest(r, time.Now())
	if !ok {
		writeErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"user":      map[string]any{"id": u.ID, "email": u.Email},
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339),
	})
}

// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.RevokeSessionForRequest(r)
	h.service.ClearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

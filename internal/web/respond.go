package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/service"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(msg)})
}

// fail maps err onto a JSON error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, telegram.ErrPasswordNeeded):
		writeError(w, http.StatusForbidden, "two_factor_needed")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNoAccount):
		writeError(w, http.StatusBadRequest, "link a Telegram account first")
	case errors.Is(err, telegram.ErrInvalidPhone),
		errors.Is(err, telegram.ErrInvalidCode),
		errors.Is(err, telegram.ErrInvalidPassword),
		errors.Is(err, telegram.ErrSignUpRequired),
		errors.Is(err, telegram.ErrNoPendingLogin):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// failTelegram is fail for handlers that talked to Telegram: unclassified
// errors become 502 instead of 500.
func (s *Server) failTelegram(w http.ResponseWriter, r *http.Request, err error) {
	if isClientError(err) {
		s.fail(w, r, err)
		return
	}
	s.log.Warn("Telegram request failed", zap.String("path", r.URL.Path), zap.Error(err))
	msg := "telegram request failed"
	if errors.Is(err, telegram.ErrNotAuthorized) {
		msg = "telegram session expired, link the account again"
	}
	writeError(w, http.StatusBadGateway, msg)
}

func isClientError(err error) bool {
	for _, target := range []error{
		repository.ErrNotFound,
		service.ErrNoAccount,
		telegram.ErrPasswordNeeded,
		telegram.ErrInvalidPhone,
		telegram.ErrInvalidCode,
		telegram.ErrInvalidPassword,
		telegram.ErrSignUpRequired,
		telegram.ErrNoPendingLogin,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return service.IsValidation(err)
}

// wantsJSON reports whether the client expects a JSON answer rather than a
// page.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return isJSONBody(r)
}

func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// input reads the named fields from a JSON object body or from form values.
func input(r *http.Request, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if !isJSONBody(r) {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for _, k := range keys {
			out[k] = r.FormValue(k)
		}
		return out, nil
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return nil, err
	}
	for _, k := range keys {
		switch v := body[k].(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = v
		case bool:
			if v {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		default:
			raw, _ := json.Marshal(v)
			out[k] = string(raw)
		}
	}
	return out, nil
}

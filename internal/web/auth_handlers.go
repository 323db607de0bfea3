package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/service"
)

type formPage struct {
	Error string
	Field string
	Email string
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "register.html", formPage{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "register.html", formPage{Error: "Invalid form"})
		return
	}
	email := r.PostFormValue("email")

	user, err := s.auth.Register(r.Context(), email, r.PostFormValue("password"), r.PostFormValue("confirm_password"))
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		s.render(w, http.StatusBadRequest, "register.html", formPage{Error: verr.Message, Field: verr.Field, Email: email})
		return
	case err != nil:
		s.log.Error("Registration failed", zap.Error(err))
		s.render(w, http.StatusInternalServerError, "register.html", formPage{Error: "Registration failed, try again", Email: email})
		return
	}

	s.log.Info("User registered", zap.Uint("user_id", user.ID))
	s.startSession(w, r, user.ID)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, "login.html", formPage{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, http.StatusBadRequest, "login.html", formPage{Error: "Invalid form"})
		return
	}
	email := r.PostFormValue("email")

	user, err := s.auth.Login(r.Context(), email, r.PostFormValue("password"))
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		s.render(w, http.StatusUnauthorized, "login.html", formPage{Error: "Invalid email or password", Email: email})
		return
	case err != nil:
		s.log.Error("Login failed", zap.Error(err))
		s.render(w, http.StatusInternalServerError, "login.html", formPage{Error: "Login failed, try again", Email: email})
		return
	}

	s.startSession(w, r, user.ID)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, userID uint) {
	sess, err := s.sessions.Create(userID)
	if err != nil {
		s.log.Error("Failed to create session", zap.Error(err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := sessionFrom(r.Context()); ok {
		s.sessions.Delete(sess.token)
		s.logins.Cancel(sess.token)
	}
	s.clearSessionCookie(w)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

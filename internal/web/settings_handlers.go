package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/service"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

type dashboardPage struct {
	User          *model.User
	Data          *service.Dashboard
	Channels      []telegram.Channel
	ChannelsError string
	PhonePrefix   string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	user, err := s.auth.User(ctx, userID)
	if err != nil {
		// The account behind a live session is gone.
		s.clearSessionCookie(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	data, err := s.settings.Dashboard(ctx, userID)
	if err != nil {
		s.log.Error("Failed to load dashboard", zap.Uint("user_id", userID), zap.Error(err))
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	page := dashboardPage{User: user, Data: data, PhonePrefix: s.opts.PhonePrefix}
	if data.Primary != nil {
		channels, err := s.channels.Channels(ctx, data.Primary.ID)
		if err != nil {
			s.log.Warn("Failed to list channels", zap.Uint("account_id", data.Primary.ID), zap.Error(err))
			page.ChannelsError = "Could not load channels from Telegram"
		}
		page.Channels = channels
	}

	s.render(w, http.StatusOK, "dashboard.html", page)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	in, err := input(r, "source", "destination")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.settings.SaveConfig(r.Context(), userIDFrom(r.Context()), in["source"], in["destination"])
	if err != nil {
		s.failTelegram(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": cfg})
}

func (s *Server) handleBotToggle(w http.ResponseWriter, r *http.Request) {
	active, ok := s.status(w, r)
	if !ok {
		return
	}
	if err := s.settings.SetActive(r.Context(), userIDFrom(r.Context()), active); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "is_active": active})
}

func (s *Server) handleReplaceToggle(w http.ResponseWriter, r *http.Request) {
	enabled, ok := s.status(w, r)
	if !ok {
		return
	}
	if err := s.settings.SetReplacementsEnabled(r.Context(), userIDFrom(r.Context()), enabled); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "replacements_enabled": enabled})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) (bool, bool) {
	in, err := input(r, "status")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false, false
	}
	v, err := strconv.ParseBool(in["status"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "status must be true or false")
		return false, false
	}
	return v, true
}

func (s *Server) handleListReplacements(w http.ResponseWriter, r *http.Request) {
	rules, err := s.settings.Replacements(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rules == nil {
		rules = []model.TextReplacement{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateReplacement(w http.ResponseWriter, r *http.Request) {
	in, err := input(r, "original", "replacement")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule, err := s.settings.AddReplacement(r.Context(), userIDFrom(r.Context()), in["original"], in["replacement"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleToggleReplacement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rule, err := s.settings.ToggleReplacement(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteReplacement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.settings.DeleteReplacement(r.Context(), userIDFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.settings.Accounts(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []model.TelegramAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleSwitchPrimary(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.settings.SwitchPrimary(r.Context(), userIDFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.settings.Unlink(r.Context(), userIDFrom(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}
	logs, err := s.settings.RecentLogs(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if logs == nil {
		logs = []model.ForwardingLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func idParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

package web

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	in, err := input(r, "phone")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	phone, err := telegram.NormalizePhone(in["phone"], s.opts.PhonePrefix)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sent, err := s.logins.SendCode(r.Context(), sess.token, phone)
	if err != nil {
		s.failTelegram(w, r, err)
		return
	}

	if sent.Authorized != nil {
		account, err := s.settings.LinkAccount(r.Context(), sess.userID, sent.Authorized)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "linked": true, "account": account})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "OTP sent",
		"via":     sent.Via,
	})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	in, err := input(r, "otp", "password")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in["otp"] == "" && in["password"] == "" {
		writeError(w, http.StatusBadRequest, "otp is required")
		return
	}

	authz, err := s.logins.Verify(r.Context(), sess.token, in["otp"], in["password"])
	if err != nil {
		s.failTelegram(w, r, err)
		return
	}

	account, err := s.settings.LinkAccount(r.Context(), sess.userID, authz)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("Telegram login completed", zap.Uint("user_id", sess.userID), zap.Uint("account_id", account.ID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "account": account})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	account, err := s.settings.PrimaryAccount(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	channels, err := s.channels.Channels(r.Context(), account.ID)
	if err != nil {
		s.failTelegram(w, r, err)
		return
	}
	if channels == nil {
		channels = []telegram.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

package forwarder

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/replace"
)

// ReplacementStore lets the owner manage rules from Saved Messages.
type ReplacementStore interface {
	ListActiveByUser(ctx context.Context, userID uint) ([]model.TextReplacement, error)
	Upsert(ctx context.Context, userID uint, original, replacement string) (*model.TextReplacement, error)
	DeleteAll(ctx context.Context, userID uint) (int64, error)
}

const helpText = `Commands:
/status - show the forwarding route
/replace original|replacement - add or update a replacement
/replacements - list active replacements
/clearreplacements - remove all replacements
/help - show this message`

// OnSelfMessage answers control commands the account owner sends to Saved
// Messages. Anything else is ignored.
func (h *Handler) OnSelfMessage(ctx context.Context, msg *tg.Message) error {
	s := h.snapshot()
	if s.transport == nil || !msg.Out || !isSelfChat(msg, s.selfID) {
		return nil
	}

	text := strings.TrimSpace(msg.Message)
	if !strings.HasPrefix(text, "/") {
		return nil
	}

	cmd, args, _ := strings.Cut(text, " ")
	reply, err := h.command(ctx, s, strings.ToLower(cmd), strings.TrimSpace(args))
	if err != nil {
		h.log.Warn("Command failed", zap.String("command", cmd), zap.Error(err))
		reply = "Error: " + err.Error()
	}
	if reply == "" {
		return nil
	}

	if _, err := s.transport.SendText(ctx, &tg.InputPeerSelf{}, reply, nil); err != nil {
		return errors.Wrap(err, "reply to command")
	}
	return nil
}

func (h *Handler) command(ctx context.Context, s snapshot, cmd, args string) (string, error) {
	userID := s.route.UserID

	switch cmd {
	case "/start", "/help":
		return helpText, nil

	case "/status":
		state := "disabled"
		if s.route.ReplacementsEnabled {
			state = "enabled"
		}
		return fmt.Sprintf("Forwarding is running\nSource: %s\nDestination: %s\nReplacements: %d active (%s)",
			describeChannel(s.route.SourceID, s.route.SourceTitle),
			describeChannel(s.route.DestinationID, s.route.DestinationTitle),
			s.replacer.Len(), state,
		), nil

	case "/replace":
		original, replacement, ok := strings.Cut(args, "|")
		original = strings.TrimSpace(original)
		if !ok || original == "" {
			return "Usage: /replace original|replacement", nil
		}
		replacement = strings.TrimSpace(replacement)
		if _, err := h.rules.Upsert(ctx, userID, original, replacement); err != nil {
			return "", err
		}
		if err := h.reloadRules(ctx, userID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Replacement added: %q -> %q", original, replacement), nil

	case "/replacements":
		rules := s.replacer.Rules()
		if len(rules) == 0 {
			return "No active replacements", nil
		}
		var b strings.Builder
		b.WriteString("Active replacements:")
		for _, r := range rules {
			fmt.Fprintf(&b, "\n%q -> %q", r.Original, r.Replacement)
		}
		return b.String(), nil

	case "/clearreplacements":
		n, err := h.rules.DeleteAll(ctx, userID)
		if err != nil {
			return "", err
		}
		if err := h.reloadRules(ctx, userID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed %d replacements", n), nil

	default:
		return "Unknown command. Send /help for the list of commands", nil
	}
}

func (h *Handler) reloadRules(ctx context.Context, userID uint) error {
	rules, err := h.rules.ListActiveByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "reload replacements")
	}
	h.SetReplacer(replace.New(rules))
	return nil
}

func isSelfChat(msg *tg.Message, selfID int64) bool {
	peer, ok := msg.PeerID.(*tg.PeerUser)
	return ok && selfID != 0 && peer.UserID == selfID
}

func describeChannel(id int64, title string) string {
	if title == "" {
		return channelid.Format(id)
	}
	return fmt.Sprintf("%s (%s)", title, channelid.Format(id))
}

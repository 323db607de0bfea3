package forwarder

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/replace"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

// LogStore records relayed messages and answers source to destination
// lookups for edits.
type LogStore interface {
	Create(ctx context.Context, entry *model.ForwardingLog) error
	FindMapping(ctx context.Context, key repository.MappingKey) (*model.ForwardingLog, error)
}

var errNothingToCopy = errors.New("message has no text or copyable media")

// Handler relays messages of one route. It is safe for concurrent use; the
// route and replacer can be swapped while updates are flowing.
type Handler struct {
	logs  LogStore
	rules ReplacementStore
	log   *zap.Logger

	mu        sync.RWMutex
	transport Transport
	media     MediaCopier
	route     Route
	replacer  *replace.Replacer
	selfID    int64
}

func NewHandler(logs LogStore, rules ReplacementStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{logs: logs, rules: rules, log: log}
}

// Bind attaches the handler to a live connection.
func (h *Handler) Bind(transport Transport, media MediaCopier, route Route, selfID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transport = transport
	h.media = media
	h.route = route
	h.selfID = selfID
}

func (h *Handler) SetReplacer(r *replace.Replacer) {
	h.mu.Lock()
	h.replacer = r
	h.mu.Unlock()
}

func (h *Handler) SetReplacementsEnabled(enabled bool) {
	h.mu.Lock()
	h.route.ReplacementsEnabled = enabled
	h.mu.Unlock()
}

func (h *Handler) Route() Route {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.route
}

type snapshot struct {
	transport Transport
	media     MediaCopier
	route     Route
	replacer  *replace.Replacer
	selfID    int64
}

func (h *Handler) snapshot() snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot{
		transport: h.transport,
		media:     h.media,
		route:     h.route,
		replacer:  h.replacer,
		selfID:    h.selfID,
	}
}

func (s snapshot) apply(text string) (string, bool) {
	if !s.route.ReplacementsEnabled {
		return text, false
	}
	return s.replacer.Apply(text)
}

// OnNewMessage relays a new source message. Messages whose text changed under
// the replacement rules, and messages of channels that forbid forwarding,
// are copied; everything else is forwarded.
func (h *Handler) OnNewMessage(ctx context.Context, msg *tg.Message) error {
	s := h.snapshot()
	if s.transport == nil || !s.route.Matches(msg) {
		return nil
	}

	text, changed := s.apply(msg.Message)
	log := h.log.With(zap.Int("msg_id", msg.ID), zap.Int64("source", s.route.SourceID))

	var (
		destID int
		action string
		err    error
	)
	if changed || s.route.SourceProtected {
		action = model.ActionCopy
		destID, err = h.copyMessage(ctx, s, msg, text, changed)
	} else {
		action = model.ActionForward
		destID, err = s.transport.Forward(ctx, s.route.Source, s.route.Destination, msg.ID)
		if tgerr.Is(err, "CHAT_FORWARDS_RESTRICTED") {
			log.Info("Forwarding restricted, copying instead")
			action = model.ActionCopy
			destID, err = h.copyMessage(ctx, s, msg, text, false)
		}
	}
	if errors.Is(err, errNothingToCopy) {
		log.Debug("Skipping message without copyable content")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "relay message %d", msg.ID)
	}

	log.Info("Message relayed", zap.String("action", action), zap.Int("dest_msg_id", destID))
	return h.record(ctx, s.route, msg.ID, destID, action)
}

// OnEditMessage propagates an edit to the copy made of the source message.
// Forwarded messages cannot be edited and are left alone.
func (h *Handler) OnEditMessage(ctx context.Context, msg *tg.Message) error {
	s := h.snapshot()
	if s.transport == nil || !s.route.Matches(msg) {
		return nil
	}
	log := h.log.With(zap.Int("msg_id", msg.ID), zap.Int64("source", s.route.SourceID))

	mapping, err := h.logs.FindMapping(ctx, s.route.mappingKey(msg.ID))
	if errors.Is(err, repository.ErrNotFound) {
		log.Debug("Edited message was never relayed")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find mapping")
	}
	if mapping.Action != model.ActionCopy {
		log.Debug("Edited message was forwarded, skipping", zap.String("action", mapping.Action))
		return nil
	}

	text, changed := s.apply(msg.Message)
	if text == "" {
		log.Debug("Edited message has no text")
		return nil
	}
	var entities []tg.MessageEntityClass
	if !changed {
		entities = msg.Entities
	}

	err = s.transport.EditText(ctx, s.route.Destination, mapping.DestinationMessageID, text, entities)
	if tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "edit message %d", mapping.DestinationMessageID)
	}

	log.Info("Edit propagated", zap.Int("dest_msg_id", mapping.DestinationMessageID))
	return h.record(ctx, s.route, msg.ID, mapping.DestinationMessageID, model.ActionEdit)
}

// copyMessage re-sends msg to the destination with text as its body or
// caption. Entities survive only when the text is unchanged.
func (h *Handler) copyMessage(ctx context.Context, s snapshot, msg *tg.Message, text string, changed bool) (int, error) {
	var entities []tg.MessageEntityClass
	if !changed {
		entities = msg.Entities
	}

	if msg.Media != nil && s.media != nil {
		input, cleanup, err := s.media.Prepare(ctx, msg.Media)
		if cleanup != nil {
			defer cleanup()
		}
		switch {
		case err == nil:
			return s.transport.SendMedia(ctx, s.route.Destination, input, text, entities)
		case errors.Is(err, ErrUnsupportedMedia):
			h.log.Debug("Media not copyable, sending text only", zap.Int("msg_id", msg.ID), zap.Error(err))
		default:
			return 0, err
		}
	}

	if text == "" {
		return 0, errNothingToCopy
	}
	return s.transport.SendText(ctx, s.route.Destination, text, entities)
}

func (h *Handler) record(ctx context.Context, route Route, sourceMsgID, destMsgID int, action string) error {
	entry := &model.ForwardingLog{
		UserID:               route.UserID,
		ConfigID:             route.ConfigID,
		SourceChannelID:      route.SourceID,
		SourceMessageID:      sourceMsgID,
		DestinationChannelID: route.DestinationID,
		DestinationMessageID: destMsgID,
		Action:               action,
	}
	if err := h.logs.Create(ctx, entry); err != nil {
		return errors.Wrap(err, "record relay")
	}
	return nil
}

// Relayed reports whether the source message already has a destination copy.
func (h *Handler) Relayed(ctx context.Context, sourceMsgID int) (bool, error) {
	route := h.Route()
	_, err := h.logs.FindMapping(ctx, route.mappingKey(sourceMsgID))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

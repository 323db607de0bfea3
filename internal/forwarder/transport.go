package forwarder

import (
	"context"
	"math/rand"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
)

var errNoMessageID = errors.New("sent message id not found in updates")

// Transport is the subset of Telegram calls the handler needs. Methods that
// create a message return its id in the destination chat.
type Transport interface {
	Forward(ctx context.Context, from, to tg.InputPeerClass, msgID int) (int, error)
	SendText(ctx context.Context, to tg.InputPeerClass, text string, entities []tg.MessageEntityClass) (int, error)
	SendMedia(ctx context.Context, to tg.InputPeerClass, media tg.InputMediaClass, caption string, entities []tg.MessageEntityClass) (int, error)
	EditText(ctx context.Context, peer tg.InputPeerClass, msgID int, text string, entities []tg.MessageEntityClass) error
}

type apiTransport struct {
	api *tg.Client
}

func newAPITransport(api *tg.Client) *apiTransport {
	return &apiTransport{api: api}
}

func (t *apiTransport) Forward(ctx context.Context, from, to tg.InputPeerClass, msgID int) (int, error) {
	rid := rand.Int63()
	upd, err := t.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ID:       []int{msgID},
		RandomID: []int64{rid},
		ToPeer:   to,
	})
	if err != nil {
		return 0, errors.Wrap(err, "forward message")
	}
	return sentMessageID(upd, rid)
}

func (t *apiTransport) SendText(ctx context.Context, to tg.InputPeerClass, text string, entities []tg.MessageEntityClass) (int, error) {
	rid := rand.Int63()
	upd, err := t.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     to,
		Message:  text,
		RandomID: rid,
		Entities: entities,
	})
	if err != nil {
		return 0, errors.Wrap(err, "send message")
	}
	return sentMessageID(upd, rid)
}

func (t *apiTransport) SendMedia(ctx context.Context, to tg.InputPeerClass, media tg.InputMediaClass, caption string, entities []tg.MessageEntityClass) (int, error) {
	rid := rand.Int63()
	upd, err := t.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     to,
		Media:    media,
		Message:  caption,
		RandomID: rid,
		Entities: entities,
	})
	if err != nil {
		return 0, errors.Wrap(err, "send media")
	}
	return sentMessageID(upd, rid)
}

func (t *apiTransport) EditText(ctx context.Context, peer tg.InputPeerClass, msgID int, text string, entities []tg.MessageEntityClass) error {
	_, err := t.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:     peer,
		ID:       msgID,
		Message:  text,
		Entities: entities,
	})
	if err != nil {
		return errors.Wrap(err, "edit message")
	}
	return nil
}

// sentMessageID finds the id Telegram assigned to the message sent with
// randomID.
func sentMessageID(upd tg.UpdatesClass, randomID int64) (int, error) {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID, nil
	case *tg.Updates:
		return idFromUpdates(u.Updates, randomID)
	case *tg.UpdatesCombined:
		return idFromUpdates(u.Updates, randomID)
	default:
		return 0, errors.Errorf("unexpected updates %T", upd)
	}
}

func idFromUpdates(list []tg.UpdateClass, randomID int64) (int, error) {
	fallback := 0
	for _, u := range list {
		switch v := u.(type) {
		case *tg.UpdateMessageID:
			if v.RandomID == randomID {
				return v.ID, nil
			}
		case *tg.UpdateNewChannelMessage:
			if fallback == 0 {
				fallback = v.Message.GetID()
			}
		case *tg.UpdateNewMessage:
			if fallback == 0 {
				fallback = v.Message.GetID()
			}
		}
	}
	if fallback != 0 {
		return fallback, nil
	}
	return 0, errNoMessageID
}

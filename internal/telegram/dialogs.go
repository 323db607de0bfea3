package telegram

import (
	"context"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
)

var ErrChannelNotFound = errors.New("channel not found in dialogs")

// Channel is a broadcast channel or supergroup visible to an account.
type Channel struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Username  string `json:"username,omitempty"`
	Broadcast bool   `json:"broadcast"`
	Protected bool   `json:"protected"`
	Creator   bool   `json:"creator"`

	Peer *tg.InputPeerChannel `json:"-"`
}

func channelFrom(ch *tg.Channel) Channel {
	return Channel{
		ID:        channelid.External(ch.ID),
		Title:     ch.Title,
		Username:  ch.Username,
		Broadcast: ch.Broadcast,
		Protected: ch.Noforwards,
		Creator:   ch.Creator,
		Peer:      &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
	}
}

// ListChannels walks the account's dialogs and returns every channel and
// supergroup, sorted by title.
func ListChannels(ctx context.Context, api *tg.Client) ([]Channel, error) {
	var out []Channel
	iter := query.GetDialogs(api).BatchSize(100).Iter()
	for iter.Next(ctx) {
		elem := iter.Value()
		p, ok := elem.Peer.(*tg.InputPeerChannel)
		if !ok {
			continue
		}
		ch, ok := elem.Entities.Channel(p.ChannelID)
		if !ok {
			continue
		}
		out = append(out, channelFrom(ch))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate dialogs")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out, nil
}

// FindChannels returns the dialogs matching the given external ids. Missing
// ids are reported with ErrChannelNotFound.
func FindChannels(ctx context.Context, api *tg.Client, ids ...int64) (map[int64]Channel, error) {
	channels, err := ListChannels(ctx, api)
	if err != nil {
		return nil, err
	}
	return pickChannels(channels, ids)
}

func pickChannels(channels []Channel, ids []int64) (map[int64]Channel, error) {
	byID := make(map[int64]Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ID] = ch
	}

	out := make(map[int64]Channel, len(ids))
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			return nil, errors.Wrapf(ErrChannelNotFound, "channel %d", id)
		}
		out[id] = ch
	}
	return out, nil
}

// ResolveUsername looks up a public channel by username.
func ResolveUsername(ctx context.Context, api *tg.Client, username string) (Channel, error) {
	resolved, err := api.ContactsResolveUsername(ctx, strings.TrimPrefix(username, "@"))
	if err != nil {
		return Channel{}, errors.Wrapf(err, "resolve @%s", username)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return channelFrom(ch), nil
		}
	}
	return Channel{}, errors.Wrapf(ErrChannelNotFound, "@%s is not a channel", username)
}

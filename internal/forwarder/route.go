package forwarder

import (
	"github.com/gotd/td/tg"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

// Route is one resolved source to destination pairing.
type Route struct {
	ConfigID            uint
	UserID              uint
	SourceID            int64
	SourceTitle         string
	DestinationID       int64
	DestinationTitle    string
	Source              tg.InputPeerClass
	Destination         tg.InputPeerClass
	SourceProtected     bool
	ReplacementsEnabled bool
}

// Matches reports whether msg was posted in the route's source channel.
func (r Route) Matches(msg *tg.Message) bool {
	if r.Source == nil {
		return false
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return false
	}
	return peer.ChannelID == channelid.Bare(r.SourceID)
}

func (r Route) mappingKey(sourceMsgID int) repository.MappingKey {
	return repository.MappingKey{
		ConfigID:             r.ConfigID,
		SourceChannelID:      r.SourceID,
		DestinationChannelID: r.DestinationID,
		SourceMessageID:      sourceMsgID,
	}
}

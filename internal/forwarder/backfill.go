package forwarder

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

const historyPage = 100

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Fetched int
	Relayed int
	Skipped int
	Failed  int
}

// Backfill relays up to limit of the latest source messages, oldest first,
// skipping those already relayed. progress, when set, is called after each
// message with the number processed so far and the total.
func (w *Worker) Backfill(ctx context.Context, limit int, progress func(done, total int)) (BackfillResult, error) {
	var res BackfillResult
	err := w.connect(ctx, nil, func(ctx context.Context, c *telegram.Conn) error {
		route := w.handler.Route()
		msgs, err := fetchHistory(ctx, c.API, route.Source, limit)
		if err != nil {
			return err
		}
		res.Fetched = len(msgs)

		for i, msg := range msgs {
			done, err := w.handler.Relayed(ctx, msg.ID)
			switch {
			case err != nil:
				return err
			case done:
				res.Skipped++
			default:
				if err := w.handler.OnNewMessage(ctx, msg); err != nil {
					w.log.Warn("Backfill relay failed", zap.Int("msg_id", msg.ID), zap.Error(err))
					res.Failed++
				} else {
					res.Relayed++
				}
			}
			if progress != nil {
				progress(i+1, len(msgs))
			}
		}
		return nil
	})
	return res, err
}

type historyClient interface {
	MessagesGetHistory(ctx context.Context, request *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// fetchHistory pages backwards through peer and returns up to limit
// messages sorted by id ascending. Service messages are dropped.
func fetchHistory(ctx context.Context, api historyClient, peer tg.InputPeerClass, limit int) ([]*tg.Message, error) {
	var (
		out      []*tg.Message
		offsetID int
	)
	for len(out) < limit {
		page := min(historyPage, limit-len(out))
		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    page,
		})
		if err != nil {
			return nil, errors.Wrap(err, "get history")
		}

		modified, ok := res.AsModified()
		if !ok {
			break
		}
		batch := modified.GetMessages()
		if len(batch) == 0 {
			break
		}
		for _, m := range batch {
			if offsetID == 0 || m.GetID() < offsetID {
				offsetID = m.GetID()
			}
			if msg, ok := m.(*tg.Message); ok && len(out) < limit {
				out = append(out, msg)
			}
		}
		if len(batch) < page {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

package forwarder

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/replace"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

type sent struct {
	kind     string
	peer     tg.InputPeerClass
	msgID    int
	text     string
	entities []tg.MessageEntityClass
	media    tg.InputMediaClass
}

type fakeTransport struct {
	calls      []sent
	nextID     int
	forwardErr error
	editErr    error
}

func (f *fakeTransport) id() int {
	f.nextID++
	return 1000 + f.nextID
}

func (f *fakeTransport) Forward(_ context.Context, _, to tg.InputPeerClass, msgID int) (int, error) {
	if f.forwardErr != nil {
		return 0, f.forwardErr
	}
	f.calls = append(f.calls, sent{kind: "forward", peer: to, msgID: msgID})
	return f.id(), nil
}

func (f *fakeTransport) SendText(_ context.Context, to tg.InputPeerClass, text string, entities []tg.MessageEntityClass) (int, error) {
	f.calls = append(f.calls, sent{kind: "text", peer: to, text: text, entities: entities})
	return f.id(), nil
}

func (f *fakeTransport) SendMedia(_ context.Context, to tg.InputPeerClass, media tg.InputMediaClass, caption string, entities []tg.MessageEntityClass) (int, error) {
	f.calls = append(f.calls, sent{kind: "media", peer: to, media: media, text: caption, entities: entities})
	return f.id(), nil
}

func (f *fakeTransport) EditText(_ context.Context, peer tg.InputPeerClass, msgID int, text string, entities []tg.MessageEntityClass) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.calls = append(f.calls, sent{kind: "edit", peer: peer, msgID: msgID, text: text, entities: entities})
	return nil
}

type fakeMedia struct {
	err      error
	prepared int
	cleaned  int
}

func (f *fakeMedia) Prepare(context.Context, tg.MessageMediaClass) (tg.InputMediaClass, func(), error) {
	cleanup := func() { f.cleaned++ }
	if f.err != nil {
		return nil, cleanup, f.err
	}
	f.prepared++
	return &tg.InputMediaUploadedPhoto{File: &tg.InputFile{Name: "x.jpg"}}, cleanup, nil
}

type fakeLogs struct {
	entries []model.ForwardingLog
}

func (f *fakeLogs) Create(_ context.Context, e *model.ForwardingLog) error {
	e.ID = uint(len(f.entries) + 1)
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLogs) FindMapping(_ context.Context, key repository.MappingKey) (*model.ForwardingLog, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.ConfigID == key.ConfigID &&
			e.SourceChannelID == key.SourceChannelID &&
			e.DestinationChannelID == key.DestinationChannelID &&
			e.SourceMessageID == key.SourceMessageID &&
			e.Action != model.ActionEdit {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeRules struct {
	rules []model.TextReplacement
}

func (f *fakeRules) ListActiveByUser(context.Context, uint) ([]model.TextReplacement, error) {
	out := append([]model.TextReplacement(nil), f.rules...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRules) Upsert(_ context.Context, userID uint, original, replacement string) (*model.TextReplacement, error) {
	for i := range f.rules {
		if f.rules[i].Original == original {
			f.rules[i].Replacement = replacement
			return &f.rules[i], nil
		}
	}
	r := model.TextReplacement{ID: uint(len(f.rules) + 1), UserID: userID, Original: original, Replacement: replacement, IsActive: true}
	f.rules = append(f.rules, r)
	return &r, nil
}

func (f *fakeRules) DeleteAll(context.Context, uint) (int64, error) {
	n := int64(len(f.rules))
	f.rules = nil
	return n, nil
}

const (
	srcBare = 1111111111
	dstBare = 2222222222
	selfID  = 77
)

var (
	srcPeer = &tg.InputPeerChannel{ChannelID: srcBare, AccessHash: 1}
	dstPeer = &tg.InputPeerChannel{ChannelID: dstBare, AccessHash: 2}
)

type harness struct {
	h         *Handler
	transport *fakeTransport
	media     *fakeMedia
	logs      *fakeLogs
	rules     *fakeRules
}

func newHarness(t *testing.T, protected bool, rules ...model.TextReplacement) *harness {
	t.Helper()
	hs := &harness{
		transport: &fakeTransport{},
		media:     &fakeMedia{},
		logs:      &fakeLogs{},
		rules:     &fakeRules{rules: rules},
	}
	hs.h = NewHandler(hs.logs, hs.rules, nil)
	hs.h.SetReplacer(replace.New(rules))
	hs.h.Bind(hs.transport, hs.media, Route{
		ConfigID:            3,
		UserID:              9,
		SourceID:            -1001111111111,
		DestinationID:       -1002222222222,
		Source:              srcPeer,
		Destination:         dstPeer,
		SourceProtected:     protected,
		ReplacementsEnabled: true,
	}, selfID)
	return hs
}

func channelMsg(id int, text string) *tg.Message {
	return &tg.Message{ID: id, PeerID: &tg.PeerChannel{ChannelID: srcBare}, Message: text}
}

func rule(id uint, original, replacement string) model.TextReplacement {
	return model.TextReplacement{ID: id, Original: original, Replacement: replacement, IsActive: true}
}

func TestOnNewMessageForwardsUnchanged(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"))

	if err := hs.h.OnNewMessage(ctx, channelMsg(5, "nothing to replace")); err != nil {
		t.Fatalf("OnNewMessage: %v", err)
	}

	if len(hs.transport.calls) != 1 || hs.transport.calls[0].kind != "forward" {
		t.Fatalf("calls = %+v", hs.transport.calls)
	}
	if len(hs.logs.entries) != 1 {
		t.Fatalf("logs = %+v", hs.logs.entries)
	}
	e := hs.logs.entries[0]
	if e.Action != model.ActionForward || e.SourceMessageID != 5 || e.DestinationMessageID != 1001 || e.ConfigID != 3 || e.UserID != 9 {
		t.Errorf("log entry = %+v", e)
	}
}

func TestOnNewMessageCopiesReplacedText(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"), rule(2, "foo bar", "baz"))

	msg := channelMsg(6, "foo bar and foo")
	msg.Entities = []tg.MessageEntityClass{&tg.MessageEntityBold{Offset: 0, Length: 3}}
	if err := hs.h.OnNewMessage(ctx, msg); err != nil {
		t.Fatalf("OnNewMessage: %v", err)
	}

	if len(hs.transport.calls) != 1 {
		t.Fatalf("calls = %+v", hs.transport.calls)
	}
	c := hs.transport.calls[0]
	if c.kind != "text" || c.text != "baz and bar" {
		t.Errorf("call = %+v", c)
	}
	if c.entities != nil {
		t.Error("entities should be dropped when text changes")
	}
	if c.peer != dstPeer {
		t.Error("sent to wrong peer")
	}
	if hs.logs.entries[0].Action != model.ActionCopy {
		t.Errorf("action = %q", hs.logs.entries[0].Action)
	}
}

func TestOnNewMessageReplacementsDisabled(t *testing.T) {
	hs := newHarness(t, false, rule(1, "foo", "bar"))
	hs.h.SetReplacementsEnabled(false)

	if err := hs.h.OnNewMessage(context.Background(), channelMsg(6, "foo")); err != nil {
		t.Fatal(err)
	}
	if hs.transport.calls[0].kind != "forward" {
		t.Errorf("expected forward, got %+v", hs.transport.calls[0])
	}
}

func TestOnNewMessageIgnoresOtherChats(t *testing.T) {
	hs := newHarness(t, false)
	msg := &tg.Message{ID: 1, PeerID: &tg.PeerChannel{ChannelID: 999}, Message: "x"}
	if err := hs.h.OnNewMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(hs.transport.calls) != 0 || len(hs.logs.entries) != 0 {
		t.Error("message from another channel was relayed")
	}
}

func TestOnNewMessageCopiesMedia(t *testing.T) {
	hs := newHarness(t, false, rule(1, "old", "new"))
	msg := channelMsg(7, "old caption")
	msg.Media = &tg.MessageMediaPhoto{}

	if err := hs.h.OnNewMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	c := hs.transport.calls[0]
	if c.kind != "media" || c.text != "new caption" {
		t.Errorf("call = %+v", c)
	}
	if hs.media.prepared != 1 || hs.media.cleaned != 1 {
		t.Errorf("prepared %d, cleaned %d", hs.media.prepared, hs.media.cleaned)
	}
}

func TestOnNewMessageUnsupportedMediaFallsBackToText(t *testing.T) {
	hs := newHarness(t, true)
	hs.media.err = ErrUnsupportedMedia

	msg := channelMsg(8, "poll results")
	msg.Media = &tg.MessageMediaPoll{}
	if err := hs.h.OnNewMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if c := hs.transport.calls[0]; c.kind != "text" || c.text != "poll results" {
		t.Errorf("call = %+v", c)
	}

	empty := channelMsg(9, "")
	empty.Media = &tg.MessageMediaGeo{}
	if err := hs.h.OnNewMessage(context.Background(), empty); err != nil {
		t.Fatalf("empty unsupported message: %v", err)
	}
	if len(hs.transport.calls) != 1 {
		t.Errorf("empty message should be skipped, calls = %+v", hs.transport.calls)
	}
}

func TestOnNewMessageProtectedSourceCopiesWithEntities(t *testing.T) {
	hs := newHarness(t, true)
	msg := channelMsg(10, "hello")
	msg.Entities = []tg.MessageEntityClass{&tg.MessageEntityItalic{Offset: 0, Length: 5}}

	if err := hs.h.OnNewMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	c := hs.transport.calls[0]
	if c.kind != "text" || len(c.entities) != 1 {
		t.Errorf("call = %+v", c)
	}
}

func TestOnNewMessageForwardRestrictedFallsBack(t *testing.T) {
	hs := newHarness(t, false)
	hs.transport.forwardErr = tgerr.New(400, "CHAT_FORWARDS_RESTRICTED")

	if err := hs.h.OnNewMessage(context.Background(), channelMsg(11, "text")); err != nil {
		t.Fatal(err)
	}
	if c := hs.transport.calls[0]; c.kind != "text" {
		t.Errorf("call = %+v", c)
	}
	if hs.logs.entries[0].Action != model.ActionCopy {
		t.Errorf("action = %q", hs.logs.entries[0].Action)
	}
}

func TestOnNewMessageForwardError(t *testing.T) {
	hs := newHarness(t, false)
	hs.transport.forwardErr = errors.New("boom")

	if err := hs.h.OnNewMessage(context.Background(), channelMsg(12, "text")); err == nil {
		t.Fatal("expected error")
	}
	if len(hs.logs.entries) != 0 {
		t.Error("failed relay was logged")
	}
}

func TestOnEditMessage(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"))

	if err := hs.h.OnNewMessage(ctx, channelMsg(20, "foo one")); err != nil {
		t.Fatal(err)
	}
	if err := hs.h.OnNewMessage(ctx, channelMsg(21, "plain")); err != nil {
		t.Fatal(err)
	}

	if err := hs.h.OnEditMessage(ctx, channelMsg(20, "foo two")); err != nil {
		t.Fatalf("OnEditMessage copied: %v", err)
	}
	last := hs.transport.calls[len(hs.transport.calls)-1]
	if last.kind != "edit" || last.msgID != 1001 || last.text != "bar two" {
		t.Errorf("edit call = %+v", last)
	}
	if got := hs.logs.entries[len(hs.logs.entries)-1]; got.Action != model.ActionEdit || got.DestinationMessageID != 1001 {
		t.Errorf("edit log = %+v", got)
	}

	calls := len(hs.transport.calls)
	if err := hs.h.OnEditMessage(ctx, channelMsg(21, "plain edited")); err != nil {
		t.Fatalf("OnEditMessage forwarded: %v", err)
	}
	if err := hs.h.OnEditMessage(ctx, channelMsg(99, "never seen")); err != nil {
		t.Fatalf("OnEditMessage unknown: %v", err)
	}
	if len(hs.transport.calls) != calls {
		t.Errorf("unexpected calls after skipped edits: %+v", hs.transport.calls[calls:])
	}
}

func TestOnEditMessageNotModified(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"))
	if err := hs.h.OnNewMessage(ctx, channelMsg(30, "foo")); err != nil {
		t.Fatal(err)
	}
	hs.transport.editErr = tgerr.New(400, "MESSAGE_NOT_MODIFIED")
	if err := hs.h.OnEditMessage(ctx, channelMsg(30, "foo")); err != nil {
		t.Fatalf("MESSAGE_NOT_MODIFIED should be ignored: %v", err)
	}
}

func TestOnEditMessageTwice(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"))

	if err := hs.h.OnNewMessage(ctx, channelMsg(50, "foo")); err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"foo once", "foo twice"} {
		if err := hs.h.OnEditMessage(ctx, channelMsg(50, text)); err != nil {
			t.Fatalf("OnEditMessage(%q): %v", text, err)
		}
	}

	edits := hs.transport.calls[1:]
	if len(edits) != 2 {
		t.Fatalf("calls = %+v", hs.transport.calls)
	}
	for i, want := range []string{"bar once", "bar twice"} {
		if edits[i].kind != "edit" || edits[i].msgID != 1001 || edits[i].text != want {
			t.Errorf("edit %d = %+v", i, edits[i])
		}
	}
}

func TestOnEditMessageAfterRouteChange(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false, rule(1, "foo", "bar"))

	if err := hs.h.OnNewMessage(ctx, channelMsg(60, "foo")); err != nil {
		t.Fatal(err)
	}

	// Same config and source, new destination.
	newDst := &tg.InputPeerChannel{ChannelID: 3333333333, AccessHash: 3}
	route := hs.h.Route()
	route.DestinationID = -1003333333333
	route.Destination = newDst
	hs.h.Bind(hs.transport, hs.media, route, selfID)

	calls := len(hs.transport.calls)
	if err := hs.h.OnEditMessage(ctx, channelMsg(60, "foo edited")); err != nil {
		t.Fatalf("OnEditMessage: %v", err)
	}
	if len(hs.transport.calls) != calls {
		t.Fatalf("edit reached the new destination: %+v", hs.transport.calls[calls:])
	}

	relayed, err := hs.h.Relayed(ctx, 60)
	if err != nil {
		t.Fatal(err)
	}
	if relayed {
		t.Error("message relayed under the old destination counted as relayed")
	}

	if err := hs.h.OnNewMessage(ctx, channelMsg(60, "foo again")); err != nil {
		t.Fatal(err)
	}
	if err := hs.h.OnEditMessage(ctx, channelMsg(60, "foo final")); err != nil {
		t.Fatal(err)
	}
	last := hs.transport.calls[len(hs.transport.calls)-1]
	if last.kind != "edit" || last.peer != newDst || last.msgID != 1002 || last.text != "bar final" {
		t.Errorf("edit call = %+v", last)
	}
}

func selfMsg(text string) *tg.Message {
	return &tg.Message{ID: 1, Out: true, PeerID: &tg.PeerUser{UserID: selfID}, Message: text}
}

func TestSelfCommands(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false)

	reply := func(text string) string {
		t.Helper()
		before := len(hs.transport.calls)
		if err := hs.h.OnSelfMessage(ctx, selfMsg(text)); err != nil {
			t.Fatalf("OnSelfMessage(%q): %v", text, err)
		}
		if len(hs.transport.calls) != before+1 {
			t.Fatalf("no reply to %q", text)
		}
		c := hs.transport.calls[before]
		if _, ok := c.peer.(*tg.InputPeerSelf); !ok {
			t.Fatalf("reply sent to %T", c.peer)
		}
		return c.text
	}

	if got := reply("/help"); !strings.Contains(got, "/replace original|replacement") {
		t.Errorf("/help = %q", got)
	}
	if got := reply("/replace"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("/replace without args = %q", got)
	}
	if got := reply("/replace hello | hi"); !strings.Contains(got, `"hello" -> "hi"`) {
		t.Errorf("/replace = %q", got)
	}

	if err := hs.h.OnNewMessage(ctx, channelMsg(40, "hello world")); err != nil {
		t.Fatal(err)
	}
	if c := hs.transport.calls[len(hs.transport.calls)-1]; c.kind != "text" || c.text != "hi world" {
		t.Errorf("rule from command not applied: %+v", c)
	}

	if got := reply("/replacements"); !strings.Contains(got, `"hello" -> "hi"`) {
		t.Errorf("/replacements = %q", got)
	}
	if got := reply("/status"); !strings.Contains(got, "-1001111111111") || !strings.Contains(got, "1 active") {
		t.Errorf("/status = %q", got)
	}
	if got := reply("/clearreplacements"); got != "Removed 1 replacements" {
		t.Errorf("/clearreplacements = %q", got)
	}
	if got := reply("/replacements"); got != "No active replacements" {
		t.Errorf("/replacements after clear = %q", got)
	}
	if got := reply("/bogus"); !strings.HasPrefix(got, "Unknown command") {
		t.Errorf("/bogus = %q", got)
	}
}

func TestSelfCommandsIgnored(t *testing.T) {
	ctx := context.Background()
	hs := newHarness(t, false)

	incoming := selfMsg("/help")
	incoming.Out = false
	other := selfMsg("/help")
	other.PeerID = &tg.PeerUser{UserID: 5}

	for _, msg := range []*tg.Message{selfMsg("just a note"), incoming, other} {
		if err := hs.h.OnSelfMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}
	if len(hs.transport.calls) != 0 {
		t.Errorf("unexpected replies: %+v", hs.transport.calls)
	}
}

func TestUnboundHandlerIgnoresMessages(t *testing.T) {
	h := NewHandler(&fakeLogs{}, &fakeRules{}, nil)
	if err := h.OnNewMessage(context.Background(), channelMsg(1, "x")); err != nil {
		t.Fatal(err)
	}
}

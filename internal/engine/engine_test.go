package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/auth"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/cache"
	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/ratelimit"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/snapshot"
)

type sent struct {
	Event   string
	Payload any
	To      Target
}

// fakeBus records every event and subscription.
type fakeBus struct {
	mu     sync.Mutex
	events []sent
	rooms  map[string]map[roomkey.Key]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{rooms: make(map[string]map[roomkey.Key]bool)}
}

func (b *fakeBus) Emit(event string, payload any, to Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sent{Event: event, Payload: payload, To: to})
}

func (b *fakeBus) Join(conn string, room roomkey.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[conn] == nil {
		b.rooms[conn] = make(map[roomkey.Key]bool)
	}
	b.rooms[conn][room] = true
}

func (b *fakeBus) Leave(conn string, room roomkey.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rooms[conn], room)
}

func (b *fakeBus) Rooms(conn string) []roomkey.Key {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []roomkey.Key
	for k := range b.rooms[conn] {
		out = append(out, k)
	}
	return out
}

func (b *fakeBus) named(event string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.events {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

func newTestEngine(t *testing.T, mutate ...func(*Options)) (*Engine, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	opts := Options{
		Broadcaster: bus,
		Auth:        auth.New(cache.Local(cache.NewMemory[string]()), 0),
		Logger:      zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return New(opts), bus
}

func register(t *testing.T, e *Engine, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := e.Register(context.Background(), n, "secret-"+n)
		require.NoError(t, err)
	}
}

// defaultChannel returns the owner's provisioned guild and its general channel.
func defaultChannel(t *testing.T, e *Engine, owner string) (string, string) {
	t.Helper()
	gs := e.ListGuilds(owner)
	require.Len(t, gs, 1)
	for id, ch := range gs[0].Channels {
		if ch.Name == models.DefaultChannelName {
			return gs[0].ID, id
		}
	}
	t.Fatalf("guild %s has no %s channel", gs[0].ID, models.DefaultChannelName)
	return "", ""
}

func joinGuild(t *testing.T, e *Engine, owner, guildID, user string) {
	t.Helper()
	ctx := context.Background()
	code, err := e.CreateInvite(ctx, owner, guildID)
	require.NoError(t, err)
	_, err = e.JoinInvite(ctx, user, code)
	require.NoError(t, err)
}

func command(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestRegisterProvisionsGuildAndFriendship(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice", "bob")

	assert.Len(t, e.ListGuilds("alice"), 1)
	assert.Len(t, e.ListGuilds("bob"), 1)
	assert.Len(t, bus.named(EventGuildsUpdated), 2)

	_, err := e.Register(ctx, "alice", "another")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, e.RequestFriend(ctx, "alice", "bob"))
	require.NoError(t, e.AcceptFriend(ctx, "bob", "alice"))

	st, err := e.FriendStatus("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, st.Friends)
	updates := bus.named(EventFriendsUpdate)
	require.Len(t, updates, 2)
	assert.ElementsMatch(t, []string{"bob", "alice"}, updates[1].To.Users)

	token, err := e.Login(ctx, "alice", "secret-alice")
	require.NoError(t, err)
	user, err := e.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = e.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperr.ErrBadCredentials)
	_, err = e.Login(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, apperr.ErrBadCredentials)
}

func TestReadOnlyChannelRejectsMember(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice", "bob")
	gid, _ := defaultChannel(t, e, "alice")
	joinGuild(t, e, "alice", gid, "bob")

	ch, err := e.CreateChannel(ctx, "alice", gid, "announcements")
	require.NoError(t, err)
	_, err = e.SetChannelReadOnly(ctx, "alice", gid, ch.ID, true)
	require.NoError(t, err)
	room := roomkey.Channel(gid, ch.ID).String()

	err = e.HandleCommand(ctx, "bob", "conn-bob", CmdSendMessage, command(t, sendRequest{Room: room, Message: "hi"}))
	assert.ErrorIs(t, err, apperr.ErrChannelReadOnly)

	perr := bus.named(EventPermissionError)
	require.Len(t, perr, 1)
	assert.Equal(t, "conn-bob", perr[0].To.Conn)
	assert.Equal(t, PermissionError{Reason: "read_only", Event: CmdSendMessage}, perr[0].Payload)

	page, err := e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = e.SendMessage(ctx, "alice", room, "owner may post", nil)
	require.NoError(t, err)

	_, err = e.SetChannelReadOnly(ctx, "bob", gid, ch.ID, false)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = e.HandleCommand(ctx, "bob", "conn-bob", CmdJoinRoom, command(t, roomRequest{Room: roomkey.Channel(gid, "missing").String()}))
	require.Error(t, err)
	perr = bus.named(EventPermissionError)
	assert.Equal(t, "channel_not_found", perr[len(perr)-1].Payload.(PermissionError).Reason)
}

func TestThreadFromParentMessage(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice")
	gid, cid := defaultChannel(t, e, "alice")
	room := roomkey.Channel(gid, cid).String()

	parent, err := e.SendMessage(ctx, "alice", room, "let's discuss", nil)
	require.NoError(t, err)

	th, err := e.CreateThread(ctx, "alice", gid, cid, "discussion", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, th.ParentMessageID)

	threadRoom := roomkey.ThreadOf(gid, cid, th.ID).String()
	page, err := e.Messages(ctx, "alice", threadRoom, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, th.ID, page.Messages[0].ThreadID)

	created := bus.named(EventThreadCreated)
	require.Len(t, created, 1)
	assert.Equal(t, roomkey.Channel(gid, cid), created[0].To.Room)

	_, err = e.CreateThread(ctx, "alice", gid, cid, "orphan", "no-such-message")
	assert.ErrorIs(t, err, apperr.ErrMessageNotFound)

	threads, err := e.ListThreads("alice", gid, cid)
	require.NoError(t, err)
	assert.Len(t, threads, 1)
}

func TestPagesTrackMutations(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	register(t, e, "alice", "bob")
	room := roomkey.DM("alice", "bob").String()

	first, err := e.SendMessage(ctx, "alice", room, "one", nil)
	require.NoError(t, err)
	page, err := e.Messages(ctx, "bob", room, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)

	_, err = e.SendMessage(ctx, "bob", room, "two", nil)
	require.NoError(t, err)
	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)

	_, err = e.EditMessage(ctx, "alice", room, first.ID, "one, edited")
	require.NoError(t, err)
	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "one, edited", page.Messages[0].Body)
	assert.True(t, page.Messages[0].Edited)

	_, err = e.PinMessage(ctx, "bob", room, first.ID, true)
	require.NoError(t, err)
	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	assert.True(t, page.Messages[0].Pinned)

	_, err = e.React(ctx, "bob", room, first.ID, "👍", true)
	require.NoError(t, err)
	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, page.Messages[0].Reactions["👍"])

	require.NoError(t, e.DeleteMessage(ctx, "alice", room, first.ID))
	page, err = e.Messages(ctx, "alice", room, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "two", page.Messages[0].Body)

	err = e.DeleteMessage(ctx, "alice", room, page.Messages[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotAuthor)

	_, err = e.Messages(ctx, "carol", room, 1, 0)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestDirectMessageNeedsBothParticipants(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	register(t, e, "alice")

	_, err := e.SendMessage(ctx, "alice", roomkey.DM("alice", "ghost").String(), "hello?", nil)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)

	_, err = e.SendMessage(ctx, "alice", roomkey.DM("alice", "alice").String(), "note", &models.Attachment{Name: "x", URL: "http://evil/x"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestPinRequiresGuildOwner(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice", "bob")
	gid, cid := defaultChannel(t, e, "alice")
	joinGuild(t, e, "alice", gid, "bob")
	room := roomkey.Channel(gid, cid).String()

	msg, err := e.SendMessage(ctx, "bob", room, "pin me", nil)
	require.NoError(t, err)

	err = e.HandleCommand(ctx, "bob", "c1", CmdPinMessage, command(t, messageRequest{Room: room, MessageID: msg.ID}))
	assert.ErrorIs(t, err, apperr.ErrPinForbidden)
	assert.Equal(t, "pin_forbidden", bus.named(EventPermissionError)[0].Payload.(PermissionError).Reason)

	require.NoError(t, e.HandleCommand(ctx, "alice", "c2", CmdPinMessage, command(t, messageRequest{Room: room, MessageID: msg.ID})))
	pinned := bus.named(EventMessagePinned)
	require.Len(t, pinned, 1)
	assert.Equal(t, MessagePinned{Room: room, MessageID: msg.ID, Pinned: true}, pinned[0].Payload)
}

func TestPollVoting(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice", "bob")
	room := roomkey.DM("alice", "bob").String()

	err := e.HandleCommand(ctx, "alice", "c1", CmdCreatePoll, command(t, pollRequest{
		Room:     room,
		Question: "lunch?",
		Options:  []string{"pizza", "sushi"},
	}))
	require.NoError(t, err)
	posted := bus.named(EventNewMessage)
	require.Len(t, posted, 1)
	msg := posted[0].Payload.(*models.Message)
	require.NotNil(t, msg.Poll)

	opt := msg.Poll.Options[1].ID
	_, err = e.VotePoll(ctx, "bob", room, msg.ID, opt)
	require.NoError(t, err)
	_, err = e.VotePoll(ctx, "bob", room, msg.ID, opt)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	updated := bus.named(EventPollUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, []string{opt}, updated[0].Payload.(PollUpdated).Poll.Voters["bob"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink := snapshot.NewFileSink(filepath.Join(t.TempDir(), "state.json"))
	withSink := func(o *Options) { o.Sink = sink }

	e, _ := newTestEngine(t, withSink)
	register(t, e, "alice", "bob")
	room := roomkey.DM("alice", "bob").String()
	_, err := e.SendMessage(ctx, "alice", room, "persist me", nil)
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))

	restored, _ := newTestEngine(t, withSink)
	restored.Load(ctx)

	_, err = restored.Profile("alice")
	require.NoError(t, err)
	assert.Len(t, restored.ListGuilds("bob"), 1)
	page, err := restored.Messages(ctx, "bob", room, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "persist me", page.Messages[0].Body)

	_, err = restored.Login(ctx, "alice", "secret-alice")
	assert.NoError(t, err)
}

func TestImportReplacesState(t *testing.T) {
	ctx := context.Background()
	withAdmin := func(o *Options) { o.Admins = []string{"root"} }

	src, _ := newTestEngine(t, withAdmin)
	register(t, src, "root", "alice")
	doc, err := src.Export(ctx, "root")
	require.NoError(t, err)
	_, err = src.Export(ctx, "alice")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	data, err := snapshot.Encode(doc)
	require.NoError(t, err)

	dst, bus := newTestEngine(t, withAdmin)
	register(t, dst, "root", "zed")
	room := roomkey.DM("root", "zed").String()
	_, err = dst.SendMessage(ctx, "zed", room, "old world", nil)
	require.NoError(t, err)
	_, err = dst.Messages(ctx, "root", room, 1, 0) // warm the page cache
	require.NoError(t, err)

	assert.ErrorIs(t, dst.Import(ctx, "zed", data), apperr.ErrForbidden)
	err = dst.Import(ctx, "root", []byte("[]"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = dst.Profile("zed")
	require.NoError(t, err, "a rejected import leaves state untouched")

	bus.reset()
	require.NoError(t, dst.Import(ctx, "root", data))

	_, err = dst.Profile("zed")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
	_, err = dst.Profile("alice")
	assert.NoError(t, err)
	assert.Zero(t, dst.Stats().Messages)
	assert.NotEmpty(t, bus.named(EventGuildsUpdated))
}

func TestPresenceTransitionsOnce(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice", "bob")
	gid, cid := defaultChannel(t, e, "alice")
	room := roomkey.Channel(gid, cid)

	e.Connect(ctx, "alice", "tab-1")
	e.Connect(ctx, "alice", "tab-2")
	require.NoError(t, e.JoinRoom(ctx, "alice", "tab-2", room.String()))
	require.NoError(t, e.Typing(ctx, "alice", room.String(), true))

	status := bus.named(EventUserStatus)
	require.Len(t, status, 1)
	assert.Equal(t, UserStatus{Username: "alice", Online: true}, status[0].Payload)
	assert.True(t, status[0].To.All)

	e.Disconnect(ctx, "alice", "tab-1")
	assert.Len(t, bus.named(EventUserStatus), 1)
	assert.True(t, e.Online("alice"))

	e.Disconnect(ctx, "alice", "tab-2")
	status = bus.named(EventUserStatus)
	require.Len(t, status, 2)
	assert.Equal(t, UserStatus{Username: "alice", Online: false}, status[1].Payload)
	assert.False(t, e.Online("alice"))

	left := bus.named(EventRoomLeft)
	require.Len(t, left, 1)
	assert.Equal(t, RoomMembership{Room: room.String(), Username: "alice"}, left[0].Payload)

	typing := bus.named(EventUserTyping)
	require.Len(t, typing, 2)
	assert.Equal(t, Typing{Username: "alice", Typing: false, Room: room.String()}, typing[1].Payload)

	e.Disconnect(ctx, "alice", "tab-2")
	assert.Len(t, bus.named(EventUserStatus), 2)
}

func TestRateLimitedCommandIsDropped(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t, func(o *Options) {
		o.Limiter = ratelimit.New(ratelimit.NewMemory(), map[string]int{ratelimit.ActionSendMessage: 1})
	})
	register(t, e, "alice", "bob")
	room := roomkey.DM("alice", "bob").String()
	raw := command(t, sendRequest{Room: room, Message: "hi"})

	require.NoError(t, e.HandleCommand(ctx, "alice", "c1", CmdSendMessage, raw))
	err := e.HandleCommand(ctx, "alice", "c1", CmdSendMessage, raw)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)

	assert.Len(t, bus.named(EventNewMessage), 1)
	assert.Empty(t, bus.named(EventPermissionError))
	assert.Equal(t, 1, e.Stats().Messages)
}

func TestDeleteAccount(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	register(t, e, "alice", "bob")
	gid, cid := defaultChannel(t, e, "bob")
	joinGuild(t, e, "bob", gid, "alice")
	_, err := e.SendMessage(ctx, "alice", roomkey.Channel(gid, cid).String(), "bye", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, e.DeleteAccount(ctx, "alice", "nope"), apperr.ErrBadCredentials)
	require.NoError(t, e.DeleteAccount(ctx, "alice", "secret-alice"))

	_, err = e.Profile("alice")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
	members, err := e.Members("bob", gid)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, members)

	page, err := e.Messages(ctx, "bob", roomkey.Channel(gid, cid).String(), 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, models.DeletedUser, page.Messages[0].Author)
}

func TestUploadsAndAssets(t *testing.T) {
	ctx := context.Background()
	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)
	e, _ := newTestEngine(t, func(o *Options) { o.Blobs = blobs })
	register(t, e, "alice", "bob")
	gid, _ := defaultChannel(t, e, "alice")

	att, err := e.Upload(ctx, "alice", "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	_, err = e.SendMessage(ctx, "alice", roomkey.DM("alice", "bob").String(), "", att)
	require.NoError(t, err)

	_, err = e.UploadAvatar(ctx, "alice", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	u, err := e.UploadAvatar(ctx, "alice", "me.png", "image/png", []byte("\x89PNG"))
	require.NoError(t, err)
	assert.Contains(t, u.AvatarURL, blob.URLPrefix)

	up := AssetUpload{Name: "party", FileName: "party.gif", ContentType: "image/gif", Data: []byte("GIF89a"), Animated: true}
	_, err = e.AddAsset(ctx, guild.Emoji, "bob", gid, up)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	a, err := e.AddAsset(ctx, guild.Emoji, "alice", gid, up)
	require.NoError(t, err)

	assets, err := e.Assets(guild.Emoji, "alice", gid)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.NoError(t, e.DeleteAsset(ctx, guild.Emoji, "alice", gid, a.ID))
}

func TestImportToleratesNullEntries(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, func(o *Options) { o.Admins = []string{"root"} })
	register(t, e, "root")

	data := []byte(`{
		"users": {"root": {"username": "root"}},
		"guilds": {
			"g1": {"name": "Team", "owner": "root", "channels": {"c1": null, "c2": {"name": "general"}}},
			"g2": null
		},
		"member_of_guild": {"g1": ["root"], "g2": ["root"]}
	}`)

	require.NotPanics(t, func() {
		require.NoError(t, e.Import(ctx, "root", data))
	})

	// the engine lock was released
	assert.Len(t, e.ListUsers(), 1)
	gs := e.ListGuilds("root")
	require.Len(t, gs, 1)
	assert.Equal(t, "g1", gs[0].ID)
	chans, err := e.ListChannels("root", "g1")
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, "c2", chans[0].ID)

	_, err = e.Export(ctx, "root")
	assert.NoError(t, err)
}

func TestDeletingLastGuildReprovisions(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice")
	gid, _ := defaultChannel(t, e, "alice")

	bus.reset()
	require.NoError(t, e.DeleteGuild(ctx, "alice", gid))

	gs := e.ListGuilds("alice")
	require.Len(t, gs, 1)
	assert.NotEqual(t, gid, gs[0].ID)
	assert.Equal(t, "alice's Server", gs[0].Name)
	assert.Len(t, bus.named(EventGuildsUpdated), 2)
}

func TestDeleteAccountReprovisionsMembers(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	register(t, e, "alice", "bob")
	aliceGuild, _ := defaultChannel(t, e, "alice")
	bobGuild, _ := defaultChannel(t, e, "bob")
	joinGuild(t, e, "alice", aliceGuild, "bob")

	require.NoError(t, e.DeleteGuild(ctx, "bob", bobGuild))
	gs := e.ListGuilds("bob")
	require.Len(t, gs, 1, "bob still belongs to alice's guild")
	assert.Equal(t, aliceGuild, gs[0].ID)

	require.NoError(t, e.DeleteAccount(ctx, "alice", "secret-alice"))
	gs = e.ListGuilds("bob")
	require.Len(t, gs, 1)
	assert.Equal(t, "bob's Server", gs[0].Name)
}

func TestPresenceFlagMatchesLastAnnouncement(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t)
	register(t, e, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(conn string) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				e.Connect(ctx, "alice", conn)
				e.Disconnect(ctx, "alice", conn)
			}
		}(fmt.Sprintf("tab-%d", i))
	}
	wg.Wait()
	e.Connect(ctx, "alice", "final")

	u, err := e.users.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, e.Online("alice"), u.Online)

	status := bus.named(EventUserStatus)
	require.NotEmpty(t, status)
	last := status[len(status)-1].Payload.(UserStatus)
	assert.Equal(t, e.Online("alice"), last.Online)
	for i := 1; i < len(status); i++ {
		prev, cur := status[i-1].Payload.(UserStatus), status[i].Payload.(UserStatus)
		require.NotEqual(t, prev.Online, cur.Online, "announcement %d repeats the previous state", i)
	}
}

func TestNotesArePrivateAndPersisted(t *testing.T) {
	ctx := context.Background()
	e, bus := newTestEngine(t, func(o *Options) { o.Admins = []string{"alice"} })
	register(t, e, "alice", "bob", "carol")

	bus.reset()
	require.NoError(t, e.SetNote(ctx, "alice", "bob", "plays bass"))
	require.NoError(t, e.SetNote(ctx, "alice", "carol", "owes me lunch"))
	assert.ErrorIs(t, e.SetNote(ctx, "alice", "nobody", "x"), apperr.ErrInvalidTarget)
	assert.Empty(t, bus.events, "notes are never broadcast")

	notes, err := e.Notes("alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bob": "plays bass", "carol": "owes me lunch"}, notes)
	notes, err = e.Notes("bob")
	require.NoError(t, err)
	assert.Empty(t, notes)

	doc, err := e.Export(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "plays bass", doc.Users["alice"].Notes["bob"])

	require.NoError(t, e.DeleteAccount(ctx, "carol", "secret-carol"))
	notes, err = e.Notes("alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bob": "plays bass"}, notes)
}

// orderBus records how many snapshots had been requested when each event went out.
type orderBus struct {
	*fakeBus
	e         *Engine
	requested []int64
}

func (b *orderBus) Emit(event string, payload any, to Target) {
	b.fakeBus.Emit(event, payload, to)
	b.mu.Lock()
	b.requested = append(b.requested, b.e.persister.Requested())
	b.mu.Unlock()
}

func TestSnapshotRequestedAfterBroadcast(t *testing.T) {
	ctx := context.Background()
	bus := &orderBus{fakeBus: newFakeBus()}
	e, _ := newTestEngine(t, func(o *Options) {
		o.Broadcaster = bus
		o.Sink = snapshot.NewFileSink(filepath.Join(t.TempDir(), "state.json"))
	})
	bus.e = e
	register(t, e, "alice", "bob")

	check := func(name string, op func()) {
		t.Helper()
		before := e.persister.Requested()
		bus.mu.Lock()
		bus.requested = nil
		bus.mu.Unlock()

		op()

		bus.mu.Lock()
		defer bus.mu.Unlock()
		require.NotEmpty(t, bus.requested, name)
		for _, v := range bus.requested {
			assert.Equal(t, before, v, "%s: snapshot requested before an event", name)
		}
		assert.Greater(t, e.persister.Requested(), before, name)
	}

	room := roomkey.DM("alice", "bob").String()
	check("send", func() {
		_, err := e.SendMessage(ctx, "alice", room, "hi", nil)
		require.NoError(t, err)
	})
	check("create guild", func() {
		_, err := e.CreateGuild(ctx, "alice", "Band")
		require.NoError(t, err)
	})
	check("friend request", func() {
		require.NoError(t, e.RequestFriend(ctx, "alice", "bob"))
	})
	check("connect", func() {
		e.Connect(ctx, "bob", "tab-1")
	})
}

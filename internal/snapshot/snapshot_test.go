package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/message"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/social"
)

func populated(t *testing.T) State {
	t.Helper()
	users := social.New()
	for _, n := range []string{"alice", "bob", "carol"} {
		require.NoError(t, users.Register(&models.User{Username: n, Credential: "hash-" + n}))
	}
	_, err := users.RequestFriend("alice", "bob")
	require.NoError(t, err)
	require.NoError(t, users.AcceptRequest("bob", "alice"))
	_, err = users.RequestFriend("carol", "alice")
	require.NoError(t, err)

	guilds := guild.New()
	g, err := guilds.EnsureDefault("alice")
	require.NoError(t, err)
	var cid string
	for id := range g.Channels {
		cid = id
	}
	require.NoError(t, guilds.AddMember(g.ID, "bob"))
	_, err = guilds.CreateInvite(g.ID, "alice")
	require.NoError(t, err)
	th, err := guilds.CreateThread(g.ID, cid, "topic", "bob", "")
	require.NoError(t, err)

	msgs := message.New()
	m, err := msgs.Send(roomkey.Channel(g.ID, cid), "alice", "hello", nil)
	require.NoError(t, err)
	_, err = msgs.AddReaction(roomkey.Channel(g.ID, cid), m.ID, "bob", "👍")
	require.NoError(t, err)
	_, err = msgs.Send(roomkey.ThreadOf(g.ID, cid, th.ID), "bob", "in thread", nil)
	require.NoError(t, err)
	_, err = msgs.Send(roomkey.DM("bob", "alice"), "bob", "psst", &models.Attachment{Name: "a.txt", URL: "/files/a", Type: "text/plain", Size: 3})
	require.NoError(t, err)
	msgs.Ensure(roomkey.Named("lobby"))

	return State{
		Social:   users.Export(),
		Guilds:   guilds.Export(),
		Messages: msgs.Export(),
		Admins:   []string{"root"},
	}
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	st := populated(t)
	doc := Capture(st)

	data, err := Encode(doc)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	restored := Restore(decoded)
	again, err := Encode(Capture(restored))
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	assert.Equal(t, []string{"lobby"}, doc.Rooms)
	assert.Len(t, restored.Messages, 4)
	assert.Equal(t, st.Social.Friendships, restored.Social.Friendships)
	assert.Equal(t, st.Guilds.Invites, restored.Guilds.Invites)
}

func TestDocumentShape(t *testing.T) {
	data, err := Encode(Capture(populated(t)))
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	want := []string{"users", "rooms", "messages", "friendships", "friend_requests_in",
		"friend_requests_out", "guilds", "member_of_guild", "invites", "threads_index", "admins"}
	assert.Len(t, top, len(want))
	for _, k := range want {
		assert.Contains(t, top, k)
	}

	var threads map[string]map[string]models.Thread
	require.NoError(t, json.Unmarshal(top["threads_index"], &threads))
	for key := range threads {
		assert.Regexp(t, `^[^:]+:[^:]+$`, key)
	}
}

func TestEmptyDocumentRestores(t *testing.T) {
	st := Empty()
	assert.NotNil(t, st.Social.Users)
	assert.NotNil(t, st.Guilds.Threads)
	assert.NotNil(t, st.Messages)

	data, err := Encode(Capture(st))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "[]", "not json", `{"users": 5}`} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrCorrupt, "input %q", in)
	}
}

func TestFileSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	sink := NewFileSink(path)

	_, err := sink.Read(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, sink.Write(ctx, []byte(`{"a":1}`)))
	require.NoError(t, sink.Write(ctx, []byte(`{"a":2}`)))
	data, err := sink.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLoadToleratesMissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "state.json")
	sink := NewFileSink(path)

	doc := Load(ctx, sink, logger)
	assert.Empty(t, doc.Users)

	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))
	doc = Load(ctx, sink, logger)
	assert.Empty(t, doc.Users)

	data, err := Encode(Capture(populated(t)))
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, data))
	doc = Load(ctx, sink, logger)
	assert.Len(t, doc.Users, 3)
}

// recordingSink remembers the version embedded in every write.
type recordingSink struct {
	mu     sync.Mutex
	writes []int
	fail   bool
}

func (s *recordingSink) Write(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	s.writes = append(s.writes, len(doc.Admins))
	return nil
}

func (s *recordingSink) Read(context.Context) ([]byte, error) { return nil, ErrNoSnapshot }

func TestPersisterNeverWritesOlderState(t *testing.T) {
	sink := &recordingSink{}
	var mu sync.Mutex
	admins := []string{}
	capture := func() Document {
		mu.Lock()
		defer mu.Unlock()
		return Capture(State{Admins: admins})
	}
	p := NewPersister(sink, capture, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for i := 0; i < 200; i++ {
		mu.Lock()
		admins = append(admins, "a")
		mu.Unlock()
		p.Trigger()
	}

	require.Eventually(t, func() bool { return p.Written() == p.Requested() }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.writes)
	for i := 1; i < len(sink.writes); i++ {
		assert.GreaterOrEqual(t, sink.writes[i], sink.writes[i-1], "write %d is older than its predecessor", i)
	}
	assert.Equal(t, 200, sink.writes[len(sink.writes)-1])
}

func TestPersisterFailureKeepsVersionPending(t *testing.T) {
	sink := &recordingSink{fail: true}
	p := NewPersister(sink, func() Document { return Capture(Empty()) }, zerolog.Nop())

	p.Trigger()
	assert.Error(t, p.Flush(context.Background()))
	assert.Equal(t, int64(0), p.Written())

	sink.fail = false
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, int64(1), p.Written())
	require.NoError(t, p.Flush(context.Background()))
	assert.Len(t, sink.writes, 1, "nothing pending means no write")
}

package permission

import (
	"errors"
	"testing"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/guild"
	"github.com/oleg-messenger/oleg/internal/roomkey"
)

type fixture struct {
	gate     *Gate
	guilds   *guild.Store
	general  roomkey.Key
	readOnly roomkey.Key
	thread   roomkey.Key
}

func setup(t *testing.T) fixture {
	t.Helper()
	guilds := guild.New()
	g, err := guilds.CreateGuild("alice", "Team")
	if err != nil {
		t.Fatal(err)
	}
	if err := guilds.AddMember(g.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	var generalID string
	for id := range g.Channels {
		generalID = id
	}
	ann, err := guilds.CreateChannel(g.ID, "announcements", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := guilds.SetChannelReadOnly(g.ID, ann.ID, true, "alice"); err != nil {
		t.Fatal(err)
	}
	th, err := guilds.CreateThread(g.ID, ann.ID, "notes", "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	return fixture{
		gate:     NewGate(guilds, NewAdmins("root")),
		guilds:   guilds,
		general:  roomkey.Channel(g.ID, generalID),
		readOnly: roomkey.Channel(g.ID, ann.ID),
		thread:   roomkey.ThreadOf(g.ID, ann.ID, th.ID),
	}
}

func TestCanSend(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		room roomkey.Key
		user string
		want error
	}{
		{"member in open channel", f.general, "bob", nil},
		{"owner in read-only channel", f.readOnly, "alice", nil},
		{"member in read-only channel", f.readOnly, "bob", apperr.ErrChannelReadOnly},
		{"member in thread of read-only channel", f.thread, "bob", apperr.ErrChannelReadOnly},
		{"owner in thread of read-only channel", f.thread, "alice", nil},
		{"stranger", f.general, "mallory", apperr.ErrNotMember},
		{"unknown channel", roomkey.Channel(f.general.GuildID(), "nope"), "alice", apperr.ErrChannelNotFound},
		{"unknown thread", roomkey.ThreadOf(f.general.GuildID(), f.general.ChannelID(), "nope"), "alice", apperr.ErrThreadNotFound},
		{"dm participant", roomkey.DM("bob", "alice"), "bob", nil},
		{"dm outsider", roomkey.DM("bob", "alice"), "mallory", apperr.ErrForbidden},
		{"legacy room", roomkey.Named("lobby"), "anyone", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.gate.CanSend(tt.room, tt.user)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCanPin(t *testing.T) {
	f := setup(t)

	if err := f.gate.CanPin(f.general, "alice"); err != nil {
		t.Fatalf("owner should pin: %v", err)
	}
	if err := f.gate.CanPin(f.general, "bob"); !errors.Is(err, apperr.ErrPinForbidden) {
		t.Fatalf("expected pin_forbidden, got %v", err)
	}
	if err := f.gate.CanPin(roomkey.DM("alice", "bob"), "bob"); err != nil {
		t.Fatalf("anyone may pin in a DM: %v", err)
	}
	if err := f.gate.CanPin(roomkey.Named("lobby"), "bob"); err != nil {
		t.Fatalf("anyone may pin in a legacy room: %v", err)
	}
}

func TestCanReadRejectsEmptyRoom(t *testing.T) {
	f := setup(t)
	if err := f.gate.CanRead(roomkey.Named(""), "alice"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestManageAndAdmin(t *testing.T) {
	f := setup(t)
	gid := f.general.GuildID()

	if err := f.gate.CanManageGuild(gid, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.gate.CanManageGuild(gid, "bob"); !errors.Is(err, apperr.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if !f.gate.IsAdmin("root") || f.gate.IsAdmin("alice") {
		t.Fatal("admin set mismatch")
	}
	if err := f.gate.RequireAdmin("alice"); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAdminsReplaceKeepsSeed(t *testing.T) {
	a := NewAdmins("root")
	a.Add("alice")
	a.Replace([]string{"bob"}, "root")
	got := a.List()
	if len(got) != 2 || got[0] != "bob" || got[1] != "root" {
		t.Fatalf("admins = %v", got)
	}
}

package guild

import (
	"strings"

	"github.com/oleg-messenger/oleg/internal/models"
)

// ThreadScopeKey flattens a (guild, channel) pair into a thread index key.
func ThreadScopeKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

func splitScopeKey(key string) (scope, bool) {
	gid, cid, ok := strings.Cut(key, ":")
	if !ok || gid == "" || cid == "" {
		return scope{}, false
	}
	return scope{guild: gid, channel: cid}, true
}

// State is a detached copy of the hierarchy.
type State struct {
	Guilds  map[string]*models.Guild
	Members map[string][]string
	Invites map[string]string
	Threads map[string]map[string]models.Thread // ThreadScopeKey -> thread id -> thread
}

// Export copies the hierarchy.
func (s *Store) Export() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{
		Guilds:  make(map[string]*models.Guild, len(s.guilds)),
		Members: make(map[string][]string, len(s.members)),
		Invites: make(map[string]string, len(s.invites)),
		Threads: make(map[string]map[string]models.Thread, len(s.threads)),
	}
	for id, g := range s.guilds {
		st.Guilds[id] = g.Clone()
	}
	for id, m := range s.members {
		st.Members[id] = m.sorted()
	}
	for code, gid := range s.invites {
		st.Invites[code] = gid
	}
	for sc, byID := range s.threads {
		out := make(map[string]models.Thread, len(byID))
		for id, th := range byID {
			out[id] = *th
		}
		st.Threads[ThreadScopeKey(sc.guild, sc.channel)] = out
	}
	return st
}

// Replace swaps the whole hierarchy for st. Entries pointing at unknown guilds
// are dropped.
func (s *Store) Replace(st State) {
	guilds := make(map[string]*models.Guild, len(st.Guilds))
	for id, g := range st.Guilds {
		if g == nil {
			continue
		}
		cp := g.Clone()
		cp.ID = id
		for chID, ch := range cp.Channels {
			ch.ID = chID
			ch.GuildID = id
		}
		guilds[id] = cp
	}

	members := make(map[string]set, len(st.Members))
	for id, list := range st.Members {
		if _, ok := guilds[id]; !ok {
			continue
		}
		m := make(set, len(list))
		for _, u := range list {
			m[u] = struct{}{}
		}
		members[id] = m
	}

	invites := make(map[string]string, len(st.Invites))
	for code, gid := range st.Invites {
		if _, ok := guilds[gid]; ok {
			invites[code] = gid
		}
	}

	threads := make(map[scope]map[string]*models.Thread, len(st.Threads))
	for key, byID := range st.Threads {
		sc, ok := splitScopeKey(key)
		if !ok {
			continue
		}
		if _, ok := guilds[sc.guild]; !ok {
			continue
		}
		out := make(map[string]*models.Thread, len(byID))
		for id, th := range byID {
			cp := th
			cp.ID = id
			cp.GuildID = sc.guild
			cp.ChannelID = sc.channel
			out[id] = &cp
		}
		threads[sc] = out
	}

	s.mu.Lock()
	s.guilds = guilds
	s.members = members
	s.invites = invites
	s.threads = threads
	s.mu.Unlock()
}

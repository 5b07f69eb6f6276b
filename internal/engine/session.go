package engine

import (
	"context"

	"github.com/oleg-messenger/oleg/internal/metrics"
)

// Connect registers a live connection. The first connection of a user marks
// them online and announces it to everyone.
func (e *Engine) Connect(ctx context.Context, user, conn string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.statusMu.Lock()
	defer e.statusMu.Unlock()

	if !e.presence.Connect(user, conn) {
		return
	}
	e.setOnline(ctx, user, true)
}

// Disconnect drops a live connection and its room subscriptions. When the
// user's last connection goes, their typing indicators are cleared and they
// are announced offline.
func (e *Engine) Disconnect(ctx context.Context, user, conn string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, room := range e.bus.Rooms(conn) {
		e.emit(EventRoomLeft, RoomMembership{Room: room.String(), Username: user}, ToRoom(room))
		e.bus.Leave(conn, room)
	}

	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if !e.presence.Disconnect(user, conn) {
		return
	}
	for _, room := range e.presence.ClearUser(user) {
		e.emit(EventUserTyping, Typing{Username: user, Typing: false, Room: room.String()}, ToRoom(room))
	}
	e.setOnline(ctx, user, false)
}

// setOnline records and announces a presence transition. Callers hold
// e.statusMu so the stored flag and the last announcement agree.
func (e *Engine) setOnline(ctx context.Context, user string, online bool) {
	metrics.OnlineUsers.Set(float64(len(e.presence.OnlineUsers())))
	_, err := e.users.SetOnline(user, online)
	if err != nil {
		e.logger.Warn().Err(err).Str("user", user).Msg("presence for unknown user")
	}
	e.emit(EventUserStatus, UserStatus{Username: user, Online: online}, ToAll())
	if err == nil {
		e.persist()
	}
	e.logger.Debug().Str("user", user).Bool("online", online).Msg("presence changed")
}

// Online reports whether user has a live connection.
func (e *Engine) Online(user string) bool {
	return e.presence.Online(user)
}

package engine

import (
	"context"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/snapshot"
)

// Export returns a consistent copy of the whole state. Administrators only.
func (e *Engine) Export(ctx context.Context, user string) (snapshot.Document, error) {
	if err := e.gate.RequireAdmin(user); err != nil {
		return snapshot.Document{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.captureLocked()
	e.logger.Info().Str("user", user).Int("users", len(doc.Users)).Msg("state exported")
	return doc, nil
}

// Import replaces the whole state with an encoded document. Administrators
// only. Commands never observe a mix of old and new state.
func (e *Engine) Import(ctx context.Context, user string, data []byte) error {
	if err := e.gate.RequireAdmin(user); err != nil {
		return err
	}
	doc, err := snapshot.Decode(data)
	if err != nil {
		return apperr.Invalid("import is not a valid snapshot")
	}

	e.replaceState(ctx, snapshot.Restore(doc))
	e.emit(EventGuildsUpdated, GuildsUpdated{}, ToAll())
	e.persist()
	e.logger.Info().Str("user", user).Int("users", len(doc.Users)).Int("guilds", len(doc.Guilds)).Msg("state imported")
	return nil
}

func (e *Engine) replaceState(ctx context.Context, st snapshot.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.install(ctx, st)
	e.resyncMirror()
}

// resyncMirror queues every user and guild for the relational mirror.
// Callers hold e.mu.
func (e *Engine) resyncMirror() {
	if !e.mirror.Enabled() {
		return
	}
	for _, pu := range e.users.List() {
		if u, err := e.users.Get(pu.Username); err == nil {
			e.mirrorUser(u)
		}
	}
	for _, id := range e.guilds.IDs() {
		e.mirrorGuild(id)
	}
}

package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/oleg-messenger/oleg/internal/apperr"
	"github.com/oleg-messenger/oleg/internal/blob"
	"github.com/oleg-messenger/oleg/internal/crypto"
	"github.com/oleg-messenger/oleg/internal/metrics"
	"github.com/oleg-messenger/oleg/internal/models"
	"github.com/oleg-messenger/oleg/internal/roomkey"
	"github.com/oleg-messenger/oleg/internal/social"
	"github.com/oleg-messenger/oleg/internal/store"
)

var avatarExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// Register creates an account and its default guild.
func (e *Engine) Register(ctx context.Context, username, password string) (models.PublicUser, error) {
	if err := social.ValidateUsername(username); err != nil {
		return models.PublicUser{}, err
	}
	hash, err := e.auth.Hash(password)
	if err != nil {
		return models.PublicUser{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	u := &models.User{
		ID:         crypto.NewUUIDv7(),
		Username:   username,
		Credential: hash,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.users.Register(u); err != nil {
		return models.PublicUser{}, err
	}
	metrics.UsersRegistered.Inc()
	e.mirrorUser(*u)
	e.provision(username)
	e.persist()

	e.logger.Info().Str("user", username).Msg("user registered")
	return u.Public(), nil
}

// provision creates the default guild when user belongs to none. It reports
// whether a guild was created.
func (e *Engine) provision(username string) bool {
	g, err := e.guilds.EnsureDefault(username)
	if err != nil {
		e.logger.Warn().Err(err).Str("user", username).Msg("default guild not created")
		return false
	}
	if g == nil {
		return false
	}
	e.mirrorGuild(g.ID)
	e.emit(EventGuildsUpdated, GuildsUpdated{GuildID: g.ID}, ToUsers(username))
	return true
}

// Login verifies a password and returns a session token.
func (e *Engine) Login(ctx context.Context, username, password string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u, err := e.users.Get(username)
	if err != nil {
		return "", apperr.ErrBadCredentials
	}
	if err := e.auth.Verify(u.Credential, password); err != nil {
		return "", err
	}

	if e.provision(username) {
		e.persist()
	}
	return e.auth.IssueToken(ctx, username)
}

// Logout revokes a session token.
func (e *Engine) Logout(ctx context.Context, token string) {
	e.auth.RevokeToken(ctx, token)
}

// Authenticate resolves a session token to a registered user.
func (e *Engine) Authenticate(ctx context.Context, token string) (string, error) {
	username, err := e.auth.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.users.Exists(username) {
		e.auth.RevokeToken(ctx, token)
		return "", apperr.ErrBadCredentials
	}
	return username, nil
}

// Profile returns the public view of a user.
func (e *Engine) Profile(username string) (models.PublicUser, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u, err := e.users.Get(username)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

// UpdateProfile changes profile fields and notifies the user's friends.
func (e *Engine) UpdateProfile(ctx context.Context, username string, upd models.ProfileUpdate) (models.PublicUser, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updateProfile(ctx, username, upd)
}

func (e *Engine) updateProfile(ctx context.Context, username string, upd models.ProfileUpdate) (models.PublicUser, error) {
	u, err := e.users.UpdateProfile(username, upd)
	if err != nil {
		return models.PublicUser{}, err
	}
	e.mirrorUser(u)

	if st, err := e.users.Status(username); err == nil && len(st.Friends) > 0 {
		e.emit(EventFriendsUpdate, FriendsUpdate{Username: username}, ToUsers(st.Friends...))
	}
	e.persist()
	return u.Public(), nil
}

// UploadAvatar stores an image and makes it the user's avatar.
func (e *Engine) UploadAvatar(ctx context.Context, username, name, contentType string, data []byte) (models.PublicUser, error) {
	if !avatarExtensions[extOf(name)] {
		return models.PublicUser{}, apperr.Invalid("avatar must be an image")
	}
	att, err := e.Upload(ctx, username, name, contentType, data)
	if err != nil {
		return models.PublicUser{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.updateProfile(ctx, username, models.ProfileUpdate{AvatarURL: &att.URL})
}

// Upload stores a file for use as a message attachment.
func (e *Engine) Upload(ctx context.Context, username, name, contentType string, data []byte) (*models.Attachment, error) {
	if e.blobs == nil {
		return nil, apperr.Invalid("uploads are disabled")
	}
	e.mu.RLock()
	err := e.requireUser(username)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	att, err := e.blobs.Save(ctx, data, blob.Meta{Name: name, Type: contentType})
	if err != nil {
		return nil, err
	}
	e.logger.Debug().Str("user", username).Str("url", att.URL).Int64("size", att.Size).Msg("file uploaded")
	return att, nil
}

// DeleteAccount removes a user after checking their password. Friendships,
// requests and memberships go away, owned guilds are deleted with their
// rooms, and the user's messages elsewhere are kept under a placeholder author.
func (e *Engine) DeleteAccount(ctx context.Context, username, password string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	u, err := e.users.Get(username)
	if err != nil {
		return err
	}
	if err := e.auth.Verify(u.Credential, password); err != nil {
		return err
	}

	notify := make(map[string][]string)
	for _, g := range e.guilds.ListForUser(username) {
		if g.Owner == username {
			members, _ := e.guilds.Members(g.ID)
			notify[g.ID] = members
		}
	}

	affected, err := e.users.Delete(username)
	if err != nil {
		return err
	}
	deleted := e.guilds.RemoveUser(username)
	dropped := e.dropGuildRooms(deleted)
	anonymized := e.messages.AnonymizeAuthor(username)
	e.presence.ClearUser(username)
	e.admins.Remove(username)

	e.invalidate(ctx, append(dropped, anonymized...)...)

	e.mirror.Enqueue("delete_user", func(ctx context.Context, m store.Mirror) error {
		return m.DeleteUser(ctx, username)
	})
	for _, id := range deleted {
		e.mirrorGuildDeleted(id)
		e.emit(EventGuildsUpdated, GuildsUpdated{GuildID: id}, ToUsers(notify[id]...))
		for _, member := range notify[id] {
			if member != username {
				e.provision(member)
			}
		}
	}
	if len(affected) > 0 {
		e.emit(EventFriendsUpdate, FriendsUpdate{Username: username}, ToUsers(affected...))
	}

	e.persist()

	e.logger.Info().Str("user", username).Int("guilds_deleted", len(deleted)).Msg("account deleted")
	return nil
}

// dropGuildRooms removes the message logs of every channel and thread of the given guilds.
func (e *Engine) dropGuildRooms(guildIDs []string) []roomkey.Key {
	if len(guildIDs) == 0 {
		return nil
	}
	gone := make(map[string]bool, len(guildIDs))
	for _, id := range guildIDs {
		gone[id] = true
	}
	return e.messages.DropRooms(func(k roomkey.Key) bool {
		return k.IsGuild() && gone[k.GuildID()]
	})
}

func (e *Engine) mirrorUser(u models.User) {
	e.mirror.Enqueue("upsert_user", func(ctx context.Context, m store.Mirror) error {
		return m.UpsertUser(ctx, u)
	})
}

func (e *Engine) mirrorGuild(id string) {
	if !e.mirror.Enabled() {
		return
	}
	g, err := e.guilds.Get(id)
	if err != nil {
		return
	}
	e.mirror.Enqueue("upsert_guild", func(ctx context.Context, m store.Mirror) error {
		return m.UpsertGuild(ctx, g)
	})
}

func (e *Engine) mirrorGuildDeleted(id string) {
	e.mirror.Enqueue("delete_guild", func(ctx context.Context, m store.Mirror) error {
		return m.DeleteGuild(ctx, id)
	})
}

func (e *Engine) mirrorMessage(msg *models.Message) {
	e.mirror.Enqueue("save_message", func(ctx context.Context, m store.Mirror) error {
		return m.SaveMessage(ctx, msg)
	})
}

func (e *Engine) mirrorMessageDeleted(id string) {
	e.mirror.Enqueue("delete_message", func(ctx context.Context, m store.Mirror) error {
		return m.DeleteMessage(ctx, id)
	})
}

func extOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// requireAttachment accepts only files produced by Upload.
func requireAttachment(f *models.Attachment) error {
	if f == nil {
		return nil
	}
	if !strings.HasPrefix(f.URL, blob.URLPrefix) {
		return apperr.Invalid(fmt.Sprintf("file url must start with %s", blob.URLPrefix))
	}
	return nil
}

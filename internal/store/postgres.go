package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oleg-messenger/oleg/internal/models"
)

// PostgresStore mirrors state into PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		id UUID NOT NULL,
		credential TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		status_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS guilds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		read_only BOOLEAN NOT NULL DEFAULT FALSE,
		category_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		pinned BOOLEAN NOT NULL DEFAULT FALSE,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author);
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUser inserts or updates a user row.
func (s *PostgresStore) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, id, credential, avatar_url, bio, status_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			credential = EXCLUDED.credential,
			avatar_url = EXCLUDED.avatar_url,
			bio = EXCLUDED.bio,
			status_text = EXCLUDED.status_text
	`, u.Username, u.ID, u.Credential, u.AvatarURL, u.Bio, u.StatusText, u.CreatedAt)
	return err
}

// DeleteUser removes a user and anonymizes the messages they wrote.
func (s *PostgresStore) DeleteUser(ctx context.Context, username string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE username = $1`, username); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE messages
			SET author = $2, payload = jsonb_set(payload, '{username}', to_jsonb($2::text))
			WHERE author = $1
		`, username, models.DeletedUser)
		return err
	})
}

// UpsertGuild writes a guild and replaces its channel rows.
func (s *PostgresStore) UpsertGuild(ctx context.Context, g *models.Guild) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO guilds (id, name, owner, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner = EXCLUDED.owner
		`, g.ID, g.Name, g.Owner, g.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE guild_id = $1`, g.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, ch := range g.Channels {
			batch.Queue(`
				INSERT INTO channels (id, guild_id, name, read_only, category_id, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, ch.ID, g.ID, ch.Name, ch.ReadOnly, ch.CategoryID, ch.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// DeleteGuild removes a guild, its channels and the messages of its rooms.
func (s *PostgresStore) DeleteGuild(ctx context.Context, guildID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM guilds WHERE id = $1`, guildID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM messages WHERE room LIKE $1`, guildRoomPattern(guildID))
		return err
	})
}

// SaveMessage inserts or replaces a message.
func (s *PostgresStore) SaveMessage(ctx context.Context, m *models.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, room, author, body, pinned, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			author = EXCLUDED.author,
			body = EXCLUDED.body,
			pinned = EXCLUDED.pinned,
			payload = EXCLUDED.payload
	`, m.ID, m.Room.String(), m.Author, m.Body, m.Pinned, payload, m.Timestamp)
	return err
}

// DeleteMessage removes a message.
func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

// Counts returns row counts per table.
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM guilds),
			(SELECT COUNT(*) FROM channels),
			(SELECT COUNT(*) FROM messages)
	`).Scan(&c.Users, &c.Guilds, &c.Channels, &c.Messages)
	return c, err
}

// guildRoomPattern matches the room keys of every channel and thread in a guild.
func guildRoomPattern(guildID string) string {
	return "g:" + guildID + ":%"
}

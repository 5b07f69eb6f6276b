package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oleg-messenger/oleg/internal/models"
)

// SQLiteStore mirrors state into a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/oleg.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/oleg.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		credential TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		status_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS guilds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		guild_id TEXT NOT NULL REFERENCES guilds(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		read_only INTEGER NOT NULL DEFAULT 0,
		category_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		pinned INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_author ON messages(author);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn inside a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertUser inserts or updates a user row.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, id, credential, avatar_url, bio, status_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET
			credential = excluded.credential,
			avatar_url = excluded.avatar_url,
			bio = excluded.bio,
			status_text = excluded.status_text
	`, u.Username, u.ID.String(), u.Credential, u.AvatarURL, u.Bio, u.StatusText, u.CreatedAt)
	return err
}

// DeleteUser removes a user and anonymizes the messages they wrote.
func (s *SQLiteStore) DeleteUser(ctx context.Context, username string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET author = ?, payload = json_set(payload, '$.username', ?)
			WHERE author = ?
		`, models.DeletedUser, models.DeletedUser, username)
		return err
	})
}

// UpsertGuild writes a guild and replaces its channel rows.
func (s *SQLiteStore) UpsertGuild(ctx context.Context, g *models.Guild) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO guilds (id, name, owner, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, owner = excluded.owner
		`, g.ID, g.Name, g.Owner, g.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE guild_id = ?`, g.ID); err != nil {
			return err
		}
		for _, ch := range g.Channels {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO channels (id, guild_id, name, read_only, category_id, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, ch.ID, g.ID, ch.Name, ch.ReadOnly, ch.CategoryID, ch.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteGuild removes a guild, its channels and the messages of its rooms.
func (s *SQLiteStore) DeleteGuild(ctx context.Context, guildID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM guilds WHERE id = ?`, guildID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE room LIKE ?`, guildRoomPattern(guildID))
		return err
	})
}

// SaveMessage inserts or replaces a message.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m *models.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room, author, body, pinned, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			author = excluded.author,
			body = excluded.body,
			pinned = excluded.pinned,
			payload = excluded.payload
	`, m.ID, m.Room.String(), m.Author, m.Body, m.Pinned, string(payload), m.Timestamp)
	return err
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	return err
}

// Counts returns row counts per table.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM guilds),
			(SELECT COUNT(*) FROM channels),
			(SELECT COUNT(*) FROM messages)
	`).Scan(&c.Users, &c.Guilds, &c.Channels, &c.Messages)
	return c, err
}

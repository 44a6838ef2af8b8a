package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chatline/internal/domain"
	"chatline/internal/mockapi"
)

// OpenSQLite opens a SQLite database with the given DSN.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// MigrateSQLite creates the schema. Idempotent.
func MigrateSQLite(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			email VARCHAR(100) UNIQUE,
			avatar TEXT DEFAULT '',
			is_online BOOLEAN DEFAULT FALSE,
			last_seen DATETIME DEFAULT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			name VARCHAR(100) DEFAULT '',
			created_at DATETIME NOT NULL,
			last_message_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversation_users (
			conversation_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			body TEXT DEFAULT '',
			image TEXT DEFAULT '',
			doc TEXT DEFAULT '',
			created_at DATETIME NOT NULL,
			conversation_id TEXT NOT NULL,
			sender_id INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id),
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_seen (
			message_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			seen_at DATETIME NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conv_users_user ON conversation_users(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SeedSQLite inserts the shared dev fixtures when the users table is empty.
func SeedSQLite(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	users, conversations, messages := mockapi.Fixtures()
	for _, u := range users {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO users (id, name, email, avatar, is_online) VALUES (?, ?, ?, ?, ?)
		`, u.ID, u.Name, u.Email, u.Avatar, u.IsOnline); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
	}
	for _, c := range conversations {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO conversations (id, name, created_at, last_message_at) VALUES (?, ?, ?, ?)
		`, c.ID, c.Name, c.CreatedAt, c.LastMessageAt); err != nil {
			return fmt.Errorf("seed conversation: %w", err)
		}
		for _, u := range c.Users {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO conversation_users (conversation_id, user_id) VALUES (?, ?)
			`, c.ID, u.ID); err != nil {
				return fmt.Errorf("seed participant: %w", err)
			}
		}
	}
	for _, m := range messages {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, body, image, doc, created_at, conversation_id, sender_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.Body, m.Image, m.Doc, m.CreatedAt, m.ConversationID, m.SenderID); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
		for _, u := range m.Seen {
			if _, err := db.ExecContext(ctx, `
				INSERT INTO message_seen (message_id, user_id, seen_at) VALUES (?, ?, ?)
			`, m.ID, u.ID, m.CreatedAt); err != nil {
				return fmt.Errorf("seed receipt: %w", err)
			}
		}
	}
	return nil
}

// NewSQLiteStore bundles the SQLite repositories.
func NewSQLiteStore(db *sql.DB) Store {
	return Store{
		Users:         &SQLiteUserRepo{db: db},
		Conversations: &SQLiteConversationRepo{db: db},
		Messages:      &SQLiteMessageRepo{db: db},
	}
}

type SQLiteUserRepo struct {
	db *sql.DB
}

var _ UserRepo = (*SQLiteUserRepo)(nil)

func (r *SQLiteUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT id, name, email, avatar, is_online, last_seen FROM users WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteUserRepo) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, avatar, is_online, last_seen FROM users ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*domain.User, error) {
	var u domain.User
	var lastSeen sql.NullTime
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &u.IsOnline, &lastSeen); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeen = &t
	}
	return &u, nil
}

type SQLiteConversationRepo struct {
	db *sql.DB
}

var _ ConversationRepo = (*SQLiteConversationRepo)(nil)

func (r *SQLiteConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, last_message_at FROM conversations WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if c.Users, err = r.participants(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLiteConversationRepo) ListForUser(ctx context.Context, userID int64) ([]domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.created_at, c.last_message_at
		FROM conversations c
		JOIN conversation_users cu ON cu.conversation_id = c.id
		WHERE cu.user_id = ?
		ORDER BY c.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Users, err = r.participants(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *SQLiteConversationRepo) FindDirect(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT a.conversation_id
		FROM conversation_users a
		JOIN conversation_users b ON a.conversation_id = b.conversation_id
		WHERE a.user_id = ? AND b.user_id = ?
		LIMIT 1
	`, userA, userB).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, name, created_at, last_message_at) VALUES (?, ?, ?, ?)
	`, c.ID, c.Name, c.CreatedAt, c.LastMessageAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	for _, u := range c.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_users (conversation_id, user_id) VALUES (?, ?)
		`, c.ID, u.ID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteConversationRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = ? WHERE id = ?
	`, at, id); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *SQLiteConversationRepo) participants(ctx context.Context, conversationID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.avatar, u.is_online, u.last_seen
		FROM users u
		JOIN conversation_users cu ON cu.user_id = u.id
		WHERE cu.conversation_id = ?
		ORDER BY u.id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

type SQLiteMessageRepo struct {
	db *sql.DB
}

var _ MessageRepo = (*SQLiteMessageRepo)(nil)

func (r *SQLiteMessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.body, m.image, m.doc, m.created_at, m.conversation_id, m.sender_id,
		       u.id, u.name, u.email, u.avatar, u.is_online, u.last_seen
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Seen, err = r.seenBy(ctx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *SQLiteMessageRepo) LastForConversation(ctx context.Context, conversationID string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, `
		SELECT m.id, m.body, m.image, m.doc, m.created_at, m.conversation_id, m.sender_id,
		       u.id, u.name, u.email, u.avatar, u.is_online, u.last_seen
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at DESC
		LIMIT 1
	`, conversationID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	if m.Seen, err = r.seenBy(ctx, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SQLiteMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, body, image, doc, created_at, conversation_id, sender_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Body, m.Image, m.Doc, m.CreatedAt, m.ConversationID, m.SenderID); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *SQLiteMessageRepo) MarkSeen(ctx context.Context, messageIDs []string, viewer domain.User) ([]domain.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(messageIDs)+2)
	args = append(args, viewer.ID, viewer.ID)
	for _, id := range messageIDs {
		args = append(args, id)
	}
	placeholders := "?" + strings.Repeat(",?", len(messageIDs)-1)

	// Only mark messages that exist, were written by someone else, and lack
	// a receipt from this viewer.
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id, m.body, m.image, m.doc, m.created_at, m.conversation_id, m.sender_id,
		       u.id, u.name, u.email, u.avatar, u.is_online, u.last_seen
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.sender_id != ?
		  AND m.id NOT IN (SELECT message_id FROM message_seen WHERE user_id = ?)
		  AND m.id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("select unmarked: %w", err)
	}
	defer rows.Close()

	var updated []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		updated = append(updated, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	for i := range updated {
		if _, err := r.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_seen (message_id, user_id, seen_at) VALUES (?, ?, ?)
		`, updated[i].ID, viewer.ID, now); err != nil {
			return nil, fmt.Errorf("insert receipt: %w", err)
		}
		if updated[i].Seen, err = r.seenBy(ctx, updated[i].ID); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (r *SQLiteMessageRepo) seenBy(ctx context.Context, messageID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.avatar, u.is_online, u.last_seen
		FROM users u
		JOIN message_seen ms ON ms.user_id = u.id
		WHERE ms.message_id = ?
		ORDER BY ms.seen_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func scanMessage(row scannable) (*domain.Message, error) {
	var m domain.Message
	var lastSeen sql.NullTime
	if err := row.Scan(
		&m.ID, &m.Body, &m.Image, &m.Doc, &m.CreatedAt, &m.ConversationID, &m.SenderID,
		&m.Sender.ID, &m.Sender.Name, &m.Sender.Email, &m.Sender.Avatar, &m.Sender.IsOnline, &lastSeen,
	); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		m.Sender.LastSeen = &t
	}
	m.Status = domain.StatusSent
	m.Seen = []domain.User{}
	return &m, nil
}

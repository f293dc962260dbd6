package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/telegram-agent/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage is the durable Storage implementation.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) UpsertUser(ctx context.Context, user *models.User) (UpsertResult, error) {
	existing, err := s.GetUser(ctx, user.ID)
	if err != nil {
		return ResultUnchanged, err
	}

	if existing == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, username, first_name, last_name) VALUES ($1, $2, $3, $4)`,
			user.ID, user.Username, user.FirstName, user.LastName)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("%w: inserting user: %v", ErrUnavailable, err)
		}
		return ResultInserted, nil
	}

	updated := *existing
	if user.Username != "" {
		updated.Username = user.Username
	}
	if user.FirstName != "" {
		updated.FirstName = user.FirstName
	}
	if user.LastName != "" {
		updated.LastName = user.LastName
	}
	if updated == *existing {
		return ResultUnchanged, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET username = $2, first_name = $3, last_name = $4 WHERE id = $1`,
		updated.ID, updated.Username, updated.FirstName, updated.LastName)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("%w: updating user: %v", ErrUnavailable, err)
	}
	return ResultUpdated, nil
}

func (s *PostgresStorage) UpsertChat(ctx context.Context, chat *models.Chat) (UpsertResult, error) {
	existing, err := s.GetChat(ctx, chat.ID)
	if err != nil {
		return ResultUnchanged, err
	}

	if existing == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO chats (id, type, title, username, first_name, last_name) VALUES ($1, $2, $3, $4, $5, $6)`,
			chat.ID, chat.Type, chat.Title, chat.Username, chat.FirstName, chat.LastName)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("%w: inserting chat: %v", ErrUnavailable, err)
		}
		return ResultInserted, nil
	}

	updated := *existing
	if chat.Type != "" {
		updated.Type = chat.Type
	}
	if chat.Title != "" {
		updated.Title = chat.Title
	}
	if chat.Username != "" {
		updated.Username = chat.Username
	}
	if chat.FirstName != "" {
		updated.FirstName = chat.FirstName
	}
	if chat.LastName != "" {
		updated.LastName = chat.LastName
	}
	if updated == *existing {
		return ResultUnchanged, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE chats SET type = $2, title = $3, username = $4, first_name = $5, last_name = $6 WHERE id = $1`,
		updated.ID, updated.Type, updated.Title, updated.Username, updated.FirstName, updated.LastName)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("%w: updating chat: %v", ErrUnavailable, err)
	}
	return ResultUpdated, nil
}

func (s *PostgresStorage) UpsertMessage(ctx context.Context, msg *models.Message) (UpsertResult, error) {
	if msg.ChatID == 0 {
		return ResultUnchanged, ErrInvalidScope
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, msg_id, user_id, chat_type, chat_title, thread_id, thread_name, date, text, deleted
		 FROM messages WHERE chat_id = $1 AND msg_id = $2`,
		msg.ChatID, msg.MsgID)

	existing, err := scanMessage(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ResultUnchanged, fmt.Errorf("%w: querying message: %v", ErrUnavailable, err)
	}

	if existing == nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO messages (chat_id, msg_id, user_id, chat_type, chat_title, thread_id, thread_name, date, text, deleted)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			msg.ChatID, msg.MsgID, msg.UserID, msg.ChatType, msg.ChatTitle,
			msg.ThreadID, msg.ThreadName, msg.Date, msg.Text, msg.Deleted)
		if err != nil {
			return ResultUnchanged, fmt.Errorf("%w: inserting message: %v", ErrUnavailable, err)
		}
		return ResultInserted, nil
	}

	if existing.FieldsEqual(msg) {
		return ResultUnchanged, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET user_id = $3, chat_type = $4, chat_title = $5, thread_id = $6,
		 thread_name = $7, date = $8, text = $9, deleted = $10
		 WHERE chat_id = $1 AND msg_id = $2`,
		msg.ChatID, msg.MsgID, msg.UserID, msg.ChatType, msg.ChatTitle,
		msg.ThreadID, msg.ThreadName, msg.Date, msg.Text, msg.Deleted)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("%w: updating message: %v", ErrUnavailable, err)
	}
	return ResultUpdated, nil
}

func (s *PostgresStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying user: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (s *PostgresStorage) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, title, username, first_name, last_name FROM chats WHERE id = $1`, id).
		Scan(&chat.ID, &chat.Type, &chat.Title, &chat.Username, &chat.FirstName, &chat.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying chat: %v", ErrUnavailable, err)
	}
	return chat, nil
}

func (s *PostgresStorage) History(ctx context.Context, scope models.Scope, includeDeleted bool) ([]*models.Message, error) {
	if !scope.IsValid() {
		return nil, ErrInvalidScope
	}

	query := `SELECT chat_id, msg_id, user_id, chat_type, chat_title, thread_id, thread_name, date, text, deleted
		FROM messages WHERE chat_id = $1`
	args := []any{scope.ChatID}
	if scope.ThreadID != 0 {
		query += ` AND thread_id = $2`
		args = append(args, scope.ThreadID)
	}
	if !includeDeleted {
		query += ` AND NOT deleted`
	}
	query += ` ORDER BY date, msg_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying history: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning message: %v", ErrUnavailable, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading history rows: %v", ErrUnavailable, err)
	}
	return messages, nil
}

func (s *PostgresStorage) Search(ctx context.Context, scope models.Scope, pattern string, includeDeleted bool) ([]*models.Message, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}

	messages, err := s.History(ctx, scope, includeDeleted)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{})
	var matches []*models.Message
	for _, msg := range messages {
		if msg.Text == "" || !regex.MatchString(msg.Text) {
			continue
		}
		if _, dup := seen[msg.MsgID]; dup {
			continue
		}
		seen[msg.MsgID] = struct{}{}
		matches = append(matches, msg)
	}
	return matches, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(&msg.ChatID, &msg.MsgID, &msg.UserID, &msg.ChatType, &msg.ChatTitle,
		&msg.ThreadID, &msg.ThreadName, &msg.Date, &msg.Text, &msg.Deleted)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

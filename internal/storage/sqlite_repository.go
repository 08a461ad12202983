// internal/storage/sqlite_repository.go
package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/narratica/narratica/internal/errors"
	"github.com/narratica/narratica/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// 固定宽度的时间格式，保证按字符串排序即按时间排序
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const storyColumns = `id, user_id, status, request_json, document_json, raw_text,
    provider, model, tokens_used, error_message, created_at, updated_at`

// SQLiteStoryRepository 基于 SQLite 的故事仓库
type SQLiteStoryRepository struct {
	db *sql.DB
}

// OpenSQLiteStoryRepository 打开或创建数据库并执行迁移
func OpenSQLiteStoryRepository(dbPath string) (*SQLiteStoryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("ensure db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	repo := &SQLiteStoryRepository{db: db}
	if err := repo.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *SQLiteStoryRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteStoryRepository) applyMigrations(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (r *SQLiteStoryRepository) Save(ctx context.Context, story *models.Story) error {
	if story == nil || story.ID == "" {
		return apperrors.NewValidationError("invalid story id", nil)
	}

	requestJSON, err := json.Marshal(story.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	documentJSON, err := json.Marshal(story.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	err = retryOnBusy(ctx, func() error {
		_, execErr := r.db.ExecContext(
			ctx,
			`INSERT INTO stories (
                id, user_id, status, title, request_json, document_json, raw_text,
                provider, model, tokens_used, error_message, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                user_id = excluded.user_id, status = excluded.status, title = excluded.title,
                request_json = excluded.request_json, document_json = excluded.document_json,
                raw_text = excluded.raw_text, provider = excluded.provider, model = excluded.model,
                tokens_used = excluded.tokens_used, error_message = excluded.error_message,
                updated_at = excluded.updated_at`,
			story.ID,
			story.UserID,
			string(story.Status),
			nullableString(story.Document.Title),
			string(requestJSON),
			string(documentJSON),
			nullableString(story.RawText),
			nullableString(story.Provider),
			nullableString(story.Model),
			story.TokensUsed,
			nullableString(story.Error),
			story.CreatedAt.UTC().Format(timestampLayout),
			story.UpdatedAt.UTC().Format(timestampLayout),
		)
		return execErr
	})
	if err != nil {
		return apperrors.NewProcessingError("保存故事失败", err)
	}
	return nil
}

func (r *SQLiteStoryRepository) Get(ctx context.Context, id string) (*models.Story, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	story, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storyNotFound(id, err)
	}
	if err != nil {
		return nil, apperrors.NewProcessingError("读取故事失败", err)
	}
	return story, nil
}

func (r *SQLiteStoryRepository) List(ctx context.Context, userID string) ([]*models.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewProcessingError("列出故事失败", err)
	}
	defer rows.Close()

	stories := []*models.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, apperrors.NewProcessingError("读取故事失败", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewProcessingError("列出故事失败", err)
	}
	return stories, nil
}

func (r *SQLiteStoryRepository) Delete(ctx context.Context, id string) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, execErr := r.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return apperrors.NewProcessingError("删除故事失败", err)
	}
	if affected == 0 {
		return storyNotFound(id, nil)
	}
	return nil
}

func scanStory(scanner interface{ Scan(dest ...any) error }) (*models.Story, error) {
	var (
		story                    models.Story
		status                   string
		requestJSON, documentRaw string
		rawText, provider, model sql.NullString
		errorMessage             sql.NullString
		createdAt, updatedAt     string
	)
	if err := scanner.Scan(
		&story.ID,
		&story.UserID,
		&status,
		&requestJSON,
		&documentRaw,
		&rawText,
		&provider,
		&model,
		&story.TokensUsed,
		&errorMessage,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	story.Status = models.StoryStatus(status)
	story.RawText = rawText.String
	story.Provider = provider.String
	story.Model = model.String
	story.Error = errorMessage.String

	if err := json.Unmarshal([]byte(requestJSON), &story.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if err := json.Unmarshal([]byte(documentRaw), &story.Document); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	var err error
	if story.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if story.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &story, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

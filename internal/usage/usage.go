// Package usage records the token counters of generative-model calls.
// Recording is fire-and-forget: it must never slow down or fail a request.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agendia/assistant/internal/provider"
)

// Logger writes usage rows keyed by the owning account.
type Logger struct {
	db *sql.DB
}

// NewLogger creates a usage Logger.
func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Record writes one usage row on a detached goroutine with its own
// timeout, so a slow or failing store cannot block the response path.
// Failures are logged and dropped.
func (l *Logger) Record(accountID string, u provider.Usage) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.write(ctx, accountID, u); err != nil {
			slog.Warn("usage logging failed", "account", accountID, "error", err)
		}
	}()
}

// write performs the synchronous insert. Split out so tests can assert the
// row without racing the detached goroutine.
func (l *Logger) write(ctx context.Context, accountID string, u provider.Usage) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO usage_log (id, account_id, prompt_tokens, completion_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), accountID, u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting usage row: %w", err)
	}
	return nil
}

// Totals aggregates the token counters recorded for an account.
func (l *Logger) Totals(ctx context.Context, accountID string) (provider.Usage, error) {
	var u provider.Usage
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_log WHERE account_id = ?`, accountID,
	).Scan(&u.PromptTokens, &u.CompletionTokens, &u.TotalTokens)
	if err != nil {
		return provider.Usage{}, fmt.Errorf("aggregating usage: %w", err)
	}
	return u, nil
}

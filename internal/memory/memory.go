// Package memory persists short-term conversation state per session: a
// sliding window of recent turns with TTL expiry.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Turn is one message in a conversation, user or assistant.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Memory is the stored conversation state for one session.
type Memory struct {
	SessionID    string
	UserID       string
	Turns        []Turn
	ActiveModule string
	ExpiresAt    time.Time
}

// Store reads and writes conversation memory rows.
type Store struct {
	db       *sql.DB
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a Store. maxTurns is the number of exchanges (user +
// assistant pairs) retained; ttl is how long an idle session survives.
func NewStore(db *sql.DB, maxTurns int, ttl time.Duration) *Store {
	return &Store{db: db, maxTurns: maxTurns, ttl: ttl, now: time.Now}
}

// Load fetches the memory for a session. Expired records are deleted and
// reported as absent (nil, nil). Returned turns are trimmed to the most
// recent maxTurns exchanges.
func (s *Store) Load(ctx context.Context, sessionID string) (*Memory, error) {
	var m Memory
	var turnsJSON, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, turns, active_module, expires_at
		FROM conversation_memory WHERE session_id = ?`, sessionID,
	).Scan(&m.SessionID, &m.UserID, &turnsJSON, &m.ActiveModule, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}

	m.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	if s.now().After(m.ExpiresAt) {
		// Lazy expiry: delete and report absent.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_memory WHERE session_id = ?`, sessionID); err != nil {
			return nil, fmt.Errorf("deleting expired memory: %w", err)
		}
		return nil, nil
	}

	if err := json.Unmarshal([]byte(turnsJSON), &m.Turns); err != nil {
		return nil, fmt.Errorf("unmarshaling turns: %w", err)
	}
	m.Turns = trim(m.Turns, s.maxTurns*2)
	return &m, nil
}

// Update appends one completed exchange (user then assistant turn) to the
// session, trims the window, resets the expiry, and upserts the row. The
// record is created if absent.
func (s *Store) Update(ctx context.Context, sessionID, userID, userMsg, assistantMsg, activeModule string) error {
	existing, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var turns []Turn
	if existing != nil {
		turns = existing.Turns
		if userID == "" {
			userID = existing.UserID
		}
		if activeModule == "" {
			activeModule = existing.ActiveModule
		}
	}
	turns = append(turns,
		Turn{Role: "user", Content: userMsg, Timestamp: now},
		Turn{Role: "assistant", Content: assistantMsg, Timestamp: now},
	)
	turns = trim(turns, s.maxTurns*2)

	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshaling turns: %w", err)
	}
	expiresAt := now.Add(s.ttl).Format(time.RFC3339)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_memory (session_id, user_id, turns, active_module, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			turns = excluded.turns,
			active_module = excluded.active_module,
			expires_at = excluded.expires_at`,
		sessionID, userID, string(turnsJSON), activeModule, expiresAt)
	if err != nil {
		return fmt.Errorf("upserting memory: %w", err)
	}
	return nil
}

// Clear removes a session's memory. Clearing an absent session is not an
// error.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_memory WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clearing memory: %w", err)
	}
	return nil
}

// trim keeps the most recent max entries, preserving chronological order.
func trim(turns []Turn, max int) []Turn {
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

// Format renders turns as alternating "Usuario:"/"Asistente:" lines in
// chronological order for prompt injection. Empty memory renders to the
// empty string so the assembler can omit the section entirely.
func Format(m *Memory) string {
	if m == nil || len(m.Turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range m.Turns {
		label := "Usuario"
		if t.Role == "assistant" {
			label = "Asistente"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

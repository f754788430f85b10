package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// LatestIDs is the per-conversation aggregate the scheduler diffs.
// LatestHistoricalMessageID is nil when no historical row exists yet.
type LatestIDs struct {
	LatestMessageID           int64
	LatestHistoricalMessageID *int64
}

// HistoricalMessage is the newest backfilled message of a conversation.
type HistoricalMessage struct {
	MessageID int64
	SentAt    time.Time
}

// ConversationLatestMessageIDs scans the messages table grouped by
// conversation. Used purely for scheduling decisions.
func (s *Store) ConversationLatestMessageIDs(ctx context.Context) (map[int64]LatestIDs, error) {
	if s.db == nil {
		return nil, ErrNotStarted
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			conversation_id,
			MAX(message_id) AS latest_message_id,
			MAX(CASE WHEN is_historical THEN message_id ELSE NULL END) AS latest_historical_message_id
		FROM messages
		GROUP BY conversation_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query latest message ids")
	}
	defer rows.Close()

	result := map[int64]LatestIDs{}
	for rows.Next() {
		var conversationID, latest int64
		var latestHistorical sql.NullInt64
		if err := rows.Scan(&conversationID, &latest, &latestHistorical); err != nil {
			return nil, errors.Wrap(err, "scan latest message ids")
		}
		ids := LatestIDs{LatestMessageID: latest}
		if latestHistorical.Valid {
			v := latestHistorical.Int64
			ids.LatestHistoricalMessageID = &v
		}
		result[conversationID] = ids
	}
	return result, rows.Err()
}

func (s *Store) HistoricalMessageCount(ctx context.Context, conversationID int64) (int, error) {
	if s.db == nil {
		return 0, ErrNotStarted
	}
	query := s.dialect.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND is_historical = TRUE`)
	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count historical messages")
	}
	return count, nil
}

// PersistedMessageCount counts every stored message of a conversation,
// historical or live.
func (s *Store) PersistedMessageCount(ctx context.Context, conversationID int64) (int, error) {
	if s.db == nil {
		return 0, ErrNotStarted
	}
	query := s.dialect.rebind(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`)
	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count messages")
	}
	return count, nil
}

// LatestHistoricalMessage returns nil when the conversation has no backfilled
// rows yet.
func (s *Store) LatestHistoricalMessage(ctx context.Context, conversationID int64) (*HistoricalMessage, error) {
	if s.db == nil {
		return nil, ErrNotStarted
	}
	query := s.dialect.rebind(`
		SELECT message_id, sent_at FROM messages
		WHERE conversation_id = ? AND is_historical = TRUE
		ORDER BY message_id DESC
		LIMIT 1`)
	var msg HistoricalMessage
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&msg.MessageID, &msg.SentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query latest historical message")
	}
	return &msg, nil
}

// ConversationTitle returns the empty string for unknown conversations.
func (s *Store) ConversationTitle(ctx context.Context, conversationID int64) (string, error) {
	if s.db == nil {
		return "", ErrNotStarted
	}
	query := s.dialect.rebind(`SELECT title FROM conversations WHERE conversation_id = ?`)
	var title string
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "query conversation title")
	}
	return title, nil
}

// BackfillCursor returns nil when no checkpoint has been written yet.
func (s *Store) BackfillCursor(ctx context.Context, conversationID int64) (*int64, error) {
	if s.db == nil {
		return nil, ErrNotStarted
	}
	query := s.dialect.rebind(`
		SELECT last_backfilled_message_id FROM backfill_cursors
		WHERE conversation_id = ?`)
	var messageID int64
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query backfill cursor")
	}
	return &messageID, nil
}

// SetBackfillCursor checkpoints backfill progress. Writes bypass the batch
// queue because the worker reads the cursor back right after a restart. The
// upsert refuses to move the cursor backwards.
func (s *Store) SetBackfillCursor(ctx context.Context, conversationID, messageID int64) error {
	if s.db == nil {
		return ErrNotStarted
	}
	query := s.dialect.rebind(`
		INSERT INTO backfill_cursors (conversation_id, last_backfilled_message_id)
		VALUES (?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET last_backfilled_message_id = excluded.last_backfilled_message_id
		WHERE excluded.last_backfilled_message_id > backfill_cursors.last_backfilled_message_id`)
	if _, err := s.db.ExecContext(ctx, query, conversationID, messageID); err != nil {
		return errors.Wrap(err, "set backfill cursor")
	}
	return nil
}

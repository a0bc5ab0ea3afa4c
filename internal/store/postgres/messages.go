package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/model"
	"github.com/johndosdos/skillxchange/internal/store"
)

const createMessage = `-- name: CreateMessage :one
INSERT INTO messages (id, from_ref, to_ref, content, created_at, read)
VALUES ($1, $2, $3, $4, $5, false)
RETURNING id, from_ref, to_ref, content, created_at, read`

// Each side of the pair is matched against every stored form of its id.
const listMessagesBetween = `-- name: ListMessagesBetween :many
SELECT id, from_ref, to_ref, content, created_at, read
FROM messages
WHERE (from_ref = ANY($1::text[]) AND to_ref = ANY($2::text[]))
   OR (from_ref = ANY($2::text[]) AND to_ref = ANY($1::text[]))
ORDER BY created_at, id`

const markMessagesRead = `-- name: MarkMessagesRead :execrows
UPDATE messages SET read = true
WHERE from_ref = ANY($1::text[]) AND to_ref = ANY($2::text[]) AND NOT read`

const countUnreadBySender = `-- name: CountUnreadBySender :many
SELECT from_ref, count(*)
FROM messages
WHERE to_ref = ANY($1::text[]) AND NOT read
GROUP BY from_ref`

const listCounterparts = `-- name: ListCounterparts :many
SELECT DISTINCT CASE WHEN from_ref = ANY($1::text[]) THEN to_ref ELSE from_ref END
FROM messages
WHERE from_ref = ANY($1::text[]) OR to_ref = ANY($1::text[])`

type messageRow struct {
	ID        string    `db:"id"`
	FromRef   string    `db:"from_ref"`
	ToRef     string    `db:"to_ref"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	Read      bool      `db:"read"`
}

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:        r.ID,
		From:      model.Canonical(r.FromRef),
		To:        model.Canonical(r.ToRef),
		Content:   r.Content,
		Timestamp: r.CreatedAt.UTC(),
		Read:      r.Read,
	}
}

func (s *Store) Append(ctx context.Context, from, to, content string) (model.Message, error) {
	msg, err := model.NewMessage(from, to, content, s.maxContent)
	if err != nil {
		return model.Message{}, err
	}

	rows, err := s.pool.Query(ctx, createMessage,
		store.NewMessageID(), msg.From, msg.To, msg.Content, store.Now())
	if err != nil {
		return model.Message{}, apperr.Persistence("Error sending message", err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return model.Message{}, apperr.Persistence("Error sending message", err)
	}

	return row.toModel(), nil
}

func (s *Store) ListBetween(ctx context.Context, userA, userB string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, listMessagesBetween, model.Forms(userA), model.Forms(userB))
	if err != nil {
		return nil, apperr.Persistence("Error fetching messages", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRow])
	if err != nil {
		return nil, apperr.Persistence("Error fetching messages", err)
	}

	return lo.Map(found, func(r messageRow, _ int) model.Message { return r.toModel() }), nil
}

func (s *Store) MarkRead(ctx context.Context, recipient, sender string) (int64, error) {
	tag, err := s.pool.Exec(ctx, markMessagesRead, model.Forms(sender), model.Forms(recipient))
	if err != nil {
		return 0, apperr.Persistence("Error marking messages as read", err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) UnreadCountsByRecipient(ctx context.Context, recipient string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, countUnreadBySender, model.Forms(recipient))
	if err != nil {
		return nil, apperr.Persistence("Error fetching unread counts", err)
	}

	raw := make(map[string]int)
	var (
		fromRef string
		count   int64
	)
	_, err = pgx.ForEachRow(rows, []any{&fromRef, &count}, func() error {
		raw[fromRef] += int(count)
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("Error fetching unread counts", err)
	}

	return store.MergeCounts(raw), nil
}

func (s *Store) Counterparts(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, listCounterparts, model.Forms(userID))
	if err != nil {
		return nil, apperr.Persistence("Error fetching chat contacts", err)
	}

	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperr.Persistence("Error fetching chat contacts", err)
	}

	self := model.Canonical(userID)
	ids := lo.Map(refs, func(ref string, _ int) string { return model.Canonical(ref) })
	return lo.Uniq(lo.Without(ids, self)), nil
}

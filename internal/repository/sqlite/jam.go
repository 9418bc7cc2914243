package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
)

var _ repository.JamRepository = (*JamDB)(nil)

// JamDB stores jam sessions.
type JamDB struct {
	conn *sql.DB
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// jamSelect joins the creator so CreatedBy carries the username.
const jamSelect = `
	SELECT j.id, j.title, j.description, j.genre, j.skill_level, j.location,
	       j.date_time, j.max_participants, j.created_by, a.username, j.created_at
	FROM jam_sessions j
	JOIN accounts a ON a.id = j.created_by`

func (j *JamDB) Create(ctx context.Context, jam *model.JamSession) error {
	jam.ID = xid.New().String()
	jam.CreatedAt = time.Now().UTC()
	jam.DateTime = jam.DateTime.UTC()

	_, err := j.conn.ExecContext(ctx,
		`INSERT INTO jam_sessions (id, title, description, genre, skill_level, location,
		                           date_time, max_participants, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jam.ID,
		jam.Title,
		jam.Description,
		jam.Genre,
		jam.SkillLevel,
		jam.Location,
		jam.DateTime,
		jam.MaxParticipants,
		jam.CreatedByID,
		jam.CreatedAt,
	)
	if err != nil {
		if foreignKeyViolation(err) {
			return apperror.NotFound("account", jam.CreatedByID)
		}
		return fmt.Errorf("sqlite: creating jam session: %w", err)
	}

	if err := j.conn.QueryRowContext(ctx,
		`SELECT username FROM accounts WHERE id = ?`, jam.CreatedByID,
	).Scan(&jam.CreatedBy); err != nil {
		return fmt.Errorf("sqlite: loading creator of jam %s: %w", jam.ID, err)
	}
	return nil
}

func (j *JamDB) GetByID(ctx context.Context, id string) (*model.JamSession, error) {
	row := j.conn.QueryRowContext(ctx, jamSelect+` WHERE j.id = ?`, id)
	jam, err := scanJam(row)
	if err != nil {
		if notFound(err) {
			return nil, apperror.NotFound("jam session", id)
		}
		return nil, fmt.Errorf("sqlite: getting jam session %s: %w", id, err)
	}
	return jam, nil
}

func (j *JamDB) List(ctx context.Context, opts repository.ListOptions) ([]model.JamSession, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := j.conn.QueryContext(ctx,
		jamSelect+` ORDER BY j.date_time ASC, j.id ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing jam sessions: %w", err)
	}
	return collectJams(rows, limit)
}

// ListForAccount is a single query: a session matches when the account
// created it or an EXISTS subquery finds a participation, so a creator who also
// has a participation row still yields one row.
func (j *JamDB) ListForAccount(ctx context.Context, accountID string) ([]model.JamSession, error) {
	rows, err := j.conn.QueryContext(ctx,
		jamSelect+`
		WHERE j.created_by = ?
		   OR EXISTS (SELECT 1 FROM participations p
		              WHERE p.jam_session_id = j.id AND p.account_id = ?)
		ORDER BY j.date_time ASC, j.id ASC`,
		accountID, accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing jams for account %s: %w", accountID, err)
	}
	return collectJams(rows, 0)
}

// Delete removes the session; participations and messages go with it via
// ON DELETE CASCADE.
func (j *JamDB) Delete(ctx context.Context, id string) error {
	result, err := j.conn.ExecContext(ctx, `DELETE FROM jam_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting jam session %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("jam session", id)
	}
	return nil
}

func collectJams(rows *sql.Rows, capacity int) ([]model.JamSession, error) {
	defer rows.Close()

	jams := make([]model.JamSession, 0, capacity)
	for rows.Next() {
		jam, err := scanJam(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning jam session row: %w", err)
		}
		jams = append(jams, *jam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating jam sessions: %w", err)
	}
	return jams, nil
}

func scanJam(row scanner) (*model.JamSession, error) {
	var jam model.JamSession
	if err := row.Scan(
		&jam.ID,
		&jam.Title,
		&jam.Description,
		&jam.Genre,
		&jam.SkillLevel,
		&jam.Location,
		&jam.DateTime,
		&jam.MaxParticipants,
		&jam.CreatedByID,
		&jam.CreatedBy,
		&jam.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &jam, nil
}

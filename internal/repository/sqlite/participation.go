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

var _ repository.ParticipationRepository = (*ParticipationDB)(nil)

// ParticipationDB stores who joined which jam session.
type ParticipationDB struct {
	conn *sql.DB
}

var participationConflicts = map[string]string{
	"participations.account_id": "participation",
}

// Create inserts the participation. The UNIQUE (account_id, jam_session_id)
// constraint turns a second join into apperror.Conflict{Field: "participation"};
// an unknown session or account is apperror.NotFound.
func (p *ParticipationDB) Create(ctx context.Context, part *model.Participation) error {
	part.ID = xid.New().String()
	part.JoinedAt = time.Now().UTC()

	_, err := p.conn.ExecContext(ctx,
		`INSERT INTO participations (id, account_id, jam_session_id, joined_at)
		 VALUES (?, ?, ?, ?)`,
		part.ID,
		part.AccountID,
		part.JamSessionID,
		part.JoinedAt,
	)
	if err != nil {
		if conflict := conflictFor("participation", err, participationConflicts); conflict != nil {
			return conflict
		}
		if foreignKeyViolation(err) {
			return apperror.NotFound("jam session", part.JamSessionID)
		}
		return fmt.Errorf("sqlite: creating participation: %w", err)
	}

	if err := p.conn.QueryRowContext(ctx,
		`SELECT username FROM accounts WHERE id = ?`, part.AccountID,
	).Scan(&part.Username); err != nil {
		return fmt.Errorf("sqlite: loading participant %s: %w", part.AccountID, err)
	}
	return nil
}

func (p *ParticipationDB) Exists(ctx context.Context, accountID, jamID string) (bool, error) {
	var n int
	err := p.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participations WHERE account_id = ? AND jam_session_id = ?`,
		accountID, jamID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking participation: %w", err)
	}
	return n > 0, nil
}

func (p *ParticipationDB) Delete(ctx context.Context, accountID, jamID string) error {
	result, err := p.conn.ExecContext(ctx,
		`DELETE FROM participations WHERE account_id = ? AND jam_session_id = ?`,
		accountID, jamID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting participation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("participation", accountID+"/"+jamID)
	}
	return nil
}

func (p *ParticipationDB) ListByJam(ctx context.Context, jamID string) ([]model.Participation, error) {
	rows, err := p.conn.QueryContext(ctx,
		`SELECT p.id, p.account_id, a.username, p.jam_session_id, p.joined_at
		 FROM participations p
		 JOIN accounts a ON a.id = p.account_id
		 WHERE p.jam_session_id = ?
		 ORDER BY p.joined_at ASC, p.id ASC`,
		jamID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing participants of %s: %w", jamID, err)
	}
	defer rows.Close()

	parts := []model.Participation{}
	for rows.Next() {
		var part model.Participation
		if err := rows.Scan(
			&part.ID, &part.AccountID, &part.Username, &part.JamSessionID, &part.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning participation row: %w", err)
		}
		parts = append(parts, part)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participations: %w", err)
	}
	return parts, nil
}

package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/identra/server/internal/model"
)

const sessionColumns = `id, user_id, start_time, end_time, login_method,
       remote_address, browser_info, ip_address, os_info, timezone, location, device_id`

// SessionRepo defines the interface for session repository operations.
// Sessions are historical records and are never deleted.
type SessionRepo interface {
	Create(ctx context.Context, q Querier, userID uuid.UUID, startTime, endTime time.Time, method model.LoginMethod, meta model.DeviceMetadata) (model.Session, error)
	LatestByUser(ctx context.Context, userID uuid.UUID) (model.Session, error)
	SetEndTime(ctx context.Context, id uuid.UUID, endTime time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Session, error)
	DistinctDeviceCount(ctx context.Context, userID uuid.UUID) (int, error)
	FirstLogin(ctx context.Context, userID uuid.UUID) (*time.Time, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a session row. The Querier lets login run the insert inside
// the same transaction as token issuance.
func (r *sessionRepo) Create(ctx context.Context, q Querier, userID uuid.UUID, startTime, endTime time.Time, method model.LoginMethod, meta model.DeviceMetadata) (model.Session, error) {
	if q == nil {
		q = r.db
	}
	query := `
		INSERT INTO sessions (
			user_id, start_time, end_time, login_method,
			remote_address, browser_info, ip_address, os_info, timezone, location, device_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + sessionColumns
	row := q.QueryRowContext(ctx, query,
		userID, startTime, endTime, method,
		meta.RemoteAddress, meta.BrowserInfo, meta.IPAddress, meta.OSInfo,
		meta.Timezone, meta.Location, meta.DeviceID)
	session, err := scanSession(row)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// LatestByUser returns the user's most recently started session. Ties on
// start_time break by highest id, so the result is deterministic.
func (r *sessionRepo) LatestByUser(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Session{}, ErrNoRows
		}
		return model.Session{}, fmt.Errorf("query latest session: %w", err)
	}
	return session, nil
}

// SetEndTime overwrites end_time for the session. Used both for refresh
// extension (now+1h) and logout finalization (now).
func (r *sessionRepo) SetEndTime(ctx context.Context, id uuid.UUID, endTime time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET end_time = $2 WHERE id = $1
	`, id, endTime)
	if err != nil {
		return fmt.Errorf("set session end time: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

// ListByUser returns a page of the user's sessions, most recent first.
func (r *sessionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.Session, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DistinctDeviceCount counts distinct non-null device IDs across all of the
// user's sessions, not just the current page.
func (r *sessionRepo) DistinctDeviceCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT device_id)
		FROM sessions
		WHERE user_id = $1 AND device_id IS NOT NULL
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count distinct devices: %w", err)
	}
	return count, nil
}

// FirstLogin returns the earliest session start for the user, or nil if the
// user has never logged in.
func (r *sessionRepo) FirstLogin(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var first sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(start_time) FROM sessions WHERE user_id = $1
	`, userID).Scan(&first)
	if err != nil {
		return nil, fmt.Errorf("query first login: %w", err)
	}
	if !first.Valid {
		return nil, nil
	}
	return &first.Time, nil
}

func scanSession(row rowScanner) (model.Session, error) {
	var s model.Session
	var idStr, userIDStr string
	err := row.Scan(
		&idStr,
		&userIDStr,
		&s.StartTime,
		&s.EndTime,
		&s.LoginMethod,
		&s.RemoteAddress,
		&s.BrowserInfo,
		&s.IPAddress,
		&s.OSInfo,
		&s.Timezone,
		&s.Location,
		&s.DeviceID,
	)
	if err != nil {
		return model.Session{}, err
	}
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session user ID: %w", err)
	}
	return s, nil
}
